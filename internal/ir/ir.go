package ir

// Design is the top-level hardware description consisting of one or more
// modules plus the designated top of the instance hierarchy.
type Design struct {
	Modules []*Module
	Top     *Module

	index map[string]*Module
}

// Module models a hardware module with ports, signals, continuous
// assignments, process blocks and submodule instances. Every structural
// element carries a stable first-definition ordinal so output ordering
// survives arbitrary pass reordering.
type Module struct {
	Name      string
	Ports     []Port
	Signals   []*Signal
	Assigns   []*ContAssign
	Processes []*ProcessBlock
	Instances []*Instance

	sigIndex map[string]*Signal
	nextOrd  int
}

// Port represents a module IO port.
type Port struct {
	Name      string
	Direction PortDirection
	Width     int
}

// PortDirection enumerates supported port directions.
type PortDirection int

const (
	Input PortDirection = iota
	Output
	InOut
)

// Signal captures a net or variable inside a module.
type Signal struct {
	Name    string
	Width   int
	Kind    SignalKind
	Ordinal int
}

// SignalKind classifies how a signal may be driven: a wire by at most one
// unconditional continuous driver, a variable by process blocks.
type SignalKind int

const (
	Wire SignalKind = iota
	Variable
)

// ContAssign is an unconditional continuous assignment driving a wire.
type ContAssign struct {
	Target  string
	Source  Expr
	Ordinal int
}

// ProcessBlock groups an ordered statement list under a sensitivity
// description. The domain (combinational vs sequential) is derived from the
// sensitivity, never stored.
type ProcessBlock struct {
	Name        string
	Sensitivity Sensitivity
	Body        []Stmt
	Ordinal     int
}

// Sensitivity is either level-sensitive-all ("*") or an explicit edge list.
type Sensitivity struct {
	All   bool
	Edges []Edge
}

// Edge names one edge-triggered wakeup condition.
type Edge struct {
	Signal   string
	Polarity EdgePolarity
}

// EdgePolarity selects the triggering transition.
type EdgePolarity int

const (
	Rising EdgePolarity = iota
	Falling
)

// Domain classifies a process block.
type Domain int

const (
	Combinational Domain = iota
	Sequential
)

// Domain derives the process domain from its sensitivity description.
func (p *ProcessBlock) Domain() Domain {
	if p.Sensitivity.All {
		return Combinational
	}
	return Sequential
}

// Instance references a module definition by name with ordered port
// bindings: an expression per input port, a signal per output port.
type Instance struct {
	Name       string
	ModuleName string
	Inputs     []PortBinding
	Outputs    []OutputBinding
	Ordinal    int
}

// PortBinding drives an instance input port with a parent-scope expression.
type PortBinding struct {
	Port   string
	Source Expr
}

// OutputBinding connects an instance output port to a parent-scope signal.
type OutputBinding struct {
	Port   string
	Signal string
}

// Module looks a module definition up by name.
func (d *Design) Module(name string) *Module {
	if d == nil || d.index == nil {
		return nil
	}
	return d.index[name]
}

// Signal looks a declared signal up by name.
func (m *Module) Signal(name string) *Signal {
	if m == nil || m.sigIndex == nil {
		return nil
	}
	return m.sigIndex[name]
}

// Port returns the named port, or nil.
func (m *Module) Port(name string) *Port {
	for i := range m.Ports {
		if m.Ports[i].Name == name {
			return &m.Ports[i]
		}
	}
	return nil
}

// AllocOrdinal hands out the next first-definition ordinal. Structures added
// by passes (flattening, instance specialization) sort after everything that
// existed when the module was built.
func (m *Module) AllocOrdinal() int {
	ord := m.nextOrd
	m.nextOrd++
	return ord
}

// AddSignal declares a signal with a fresh ordinal and indexes it.
func (m *Module) AddSignal(name string, width int, kind SignalKind) *Signal {
	sig := &Signal{Name: name, Width: width, Kind: kind, Ordinal: m.AllocOrdinal()}
	m.Signals = append(m.Signals, sig)
	if m.sigIndex == nil {
		m.sigIndex = make(map[string]*Signal)
	}
	m.sigIndex[name] = sig
	return sig
}

// RemoveSignal drops a signal from the declaration list and index.
func (m *Module) RemoveSignal(name string) {
	for i, sig := range m.Signals {
		if sig.Name == name {
			m.Signals = append(m.Signals[:i], m.Signals[i+1:]...)
			break
		}
	}
	delete(m.sigIndex, name)
}

// Instance returns the named submodule instance, or nil.
func (m *Module) Instance(name string) *Instance {
	for _, inst := range m.Instances {
		if inst.Name == name {
			return inst
		}
	}
	return nil
}

// OutputPorts lists the names of output and bidirectional ports. These are
// the observability roots for dead-logic elimination.
func (m *Module) OutputPorts() []string {
	var out []string
	for _, p := range m.Ports {
		if p.Direction == Output || p.Direction == InOut {
			out = append(out, p.Name)
		}
	}
	return out
}

func (m *Module) reindex() {
	m.sigIndex = make(map[string]*Signal, len(m.Signals))
	for _, sig := range m.Signals {
		m.sigIndex[sig.Name] = sig
	}
}
