package ir

// Clone deep-copies the design. Each pass invocation owns its input; no pass
// keeps references into the IR a previous pass produced.
func (d *Design) Clone() *Design {
	if d == nil {
		return nil
	}
	out := &Design{
		Modules: make([]*Module, len(d.Modules)),
		index:   make(map[string]*Module, len(d.Modules)),
	}
	for i, m := range d.Modules {
		c := m.Clone()
		out.Modules[i] = c
		out.index[c.Name] = c
		if m == d.Top {
			out.Top = c
		}
	}
	return out
}

// Clone deep-copies a module. Expression nodes are immutable, but statements
// and structural records are rebuilt so the copy is fully independent.
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	out := &Module{
		Name:    m.Name,
		Ports:   append([]Port(nil), m.Ports...),
		nextOrd: m.nextOrd,
	}
	out.Signals = make([]*Signal, len(m.Signals))
	for i, sig := range m.Signals {
		cp := *sig
		out.Signals[i] = &cp
	}
	out.reindex()
	out.Assigns = make([]*ContAssign, len(m.Assigns))
	for i, a := range m.Assigns {
		out.Assigns[i] = &ContAssign{Target: a.Target, Source: cloneExpr(a.Source), Ordinal: a.Ordinal}
	}
	out.Processes = make([]*ProcessBlock, len(m.Processes))
	for i, p := range m.Processes {
		out.Processes[i] = &ProcessBlock{
			Name: p.Name,
			Sensitivity: Sensitivity{
				All:   p.Sensitivity.All,
				Edges: append([]Edge(nil), p.Sensitivity.Edges...),
			},
			Body:    cloneStmts(p.Body),
			Ordinal: p.Ordinal,
		}
	}
	out.Instances = make([]*Instance, len(m.Instances))
	for i, inst := range m.Instances {
		ci := &Instance{
			Name:       inst.Name,
			ModuleName: inst.ModuleName,
			Ordinal:    inst.Ordinal,
			Inputs:     make([]PortBinding, len(inst.Inputs)),
			Outputs:    append([]OutputBinding(nil), inst.Outputs...),
		}
		for j, in := range inst.Inputs {
			ci.Inputs[j] = PortBinding{Port: in.Port, Source: cloneExpr(in.Source)}
		}
		out.Instances[i] = ci
	}
	return out
}

func cloneExpr(e Expr) Expr {
	return RewriteExpr(e, func(n Expr) Expr { return n })
}

func cloneStmts(stmts []Stmt) []Stmt {
	return RewriteStmts(stmts, func(n Expr) Expr { return n })
}

// Reattach rebuilds the design's module index after passes added or removed
// modules.
func (d *Design) Reattach() {
	d.index = make(map[string]*Module, len(d.Modules))
	for _, m := range d.Modules {
		d.index[m.Name] = m
	}
}
