package passes

import (
	"sort"

	"github.com/pkg/errors"

	"rtlopt/internal/ir"
)

// Flatten inlines the instance hierarchy into a single module. Child
// signals are renamed "<instance>__<signal>", port bindings become
// continuous assignments, and the flattened design keeps only the top
// module. Nested hierarchies are handled leaf-first, so a child is fully
// flat before it is spliced into its parent.
type Flatten struct{}

// NewFlatten constructs the pass.
func NewFlatten() *Flatten {
	return &Flatten{}
}

// Name implements the Pass interface.
func (f *Flatten) Name() string {
	return "flatten"
}

// Run replaces the design's module list with the flattened top module.
func (f *Flatten) Run(design *ir.Design) error {
	if design == nil {
		return errors.New("flatten requires a non-nil design")
	}
	if design.Top == nil {
		return errors.New("flatten: design has no top module")
	}
	memo := make(map[string]*ir.Module)
	flat, err := f.flattenModule(design, design.Top, memo)
	if err != nil {
		return err
	}
	design.Modules = []*ir.Module{flat}
	design.Top = flat
	design.Reattach()
	return nil
}

func (f *Flatten) flattenModule(design *ir.Design, m *ir.Module, memo map[string]*ir.Module) (*ir.Module, error) {
	if flat, ok := memo[m.Name]; ok {
		return flat, nil
	}
	out := m.Clone()
	if len(out.Instances) == 0 {
		memo[m.Name] = out
		return out, nil
	}

	insts := append([]*ir.Instance(nil), out.Instances...)
	sort.Slice(insts, func(i, j int) bool { return insts[i].Ordinal < insts[j].Ordinal })
	out.Instances = nil

	// Instance output references in the parent become plain reads of the
	// renamed child port signals. Rewrite those first so every expression
	// handled below is already in the flat namespace.
	instOut := func(x ir.Expr) ir.Expr {
		if io, ok := x.(*ir.InstanceOutput); ok {
			return &ir.SignalRef{Name: io.Instance + "__" + io.Port}
		}
		return x
	}
	for _, a := range out.Assigns {
		a.Source = ir.RewriteExpr(a.Source, instOut)
	}
	for _, p := range out.Processes {
		p.Body = ir.RewriteStmts(p.Body, instOut)
	}
	for _, inst := range insts {
		for i := range inst.Inputs {
			inst.Inputs[i].Source = ir.RewriteExpr(inst.Inputs[i].Source, instOut)
		}
	}

	for _, inst := range insts {
		child := design.Module(inst.ModuleName)
		if child == nil {
			return nil, errors.Errorf("flatten: instance %q of unknown module %q", inst.Name, inst.ModuleName)
		}
		flatChild, err := f.flattenModule(design, child, memo)
		if err != nil {
			return nil, err
		}
		if err := spliceInstance(out, inst, flatChild); err != nil {
			return nil, err
		}
	}
	memo[m.Name] = out
	return out, nil
}

// spliceInstance copies flatChild's contents into parent under the
// instance's name prefix and wires the port bindings with continuous
// assignments.
func spliceInstance(parent *ir.Module, inst *ir.Instance, flatChild *ir.Module) error {
	prefix := inst.Name + "__"
	for _, sig := range flatChild.Signals {
		name := prefix + sig.Name
		if parent.Signal(name) != nil {
			return errors.Errorf("flatten: signal %q already exists in module %q", name, parent.Name)
		}
		parent.AddSignal(name, sig.Width, sig.Kind)
	}

	renameExpr := func(e ir.Expr) ir.Expr {
		return ir.RewriteExpr(e, func(x ir.Expr) ir.Expr {
			if ref, ok := x.(*ir.SignalRef); ok {
				return &ir.SignalRef{Name: prefix + ref.Name}
			}
			return x
		})
	}

	for _, in := range inst.Inputs {
		parent.Assigns = append(parent.Assigns, &ir.ContAssign{
			Target:  prefix + in.Port,
			Source:  in.Source,
			Ordinal: parent.AllocOrdinal(),
		})
	}
	for _, a := range flatChild.Assigns {
		parent.Assigns = append(parent.Assigns, &ir.ContAssign{
			Target:  prefix + a.Target,
			Source:  renameExpr(a.Source),
			Ordinal: parent.AllocOrdinal(),
		})
	}
	for _, p := range flatChild.Processes {
		np := &ir.ProcessBlock{
			Name:    prefix + p.Name,
			Ordinal: parent.AllocOrdinal(),
		}
		np.Sensitivity.All = p.Sensitivity.All
		for _, e := range p.Sensitivity.Edges {
			np.Sensitivity.Edges = append(np.Sensitivity.Edges, ir.Edge{
				Signal:   prefix + e.Signal,
				Polarity: e.Polarity,
			})
		}
		np.Body = renameStmts(p.Body, prefix)
		parent.Processes = append(parent.Processes, np)
	}
	for _, ob := range inst.Outputs {
		parent.Assigns = append(parent.Assigns, &ir.ContAssign{
			Target:  ob.Signal,
			Source:  &ir.SignalRef{Name: prefix + ob.Port},
			Ordinal: parent.AllocOrdinal(),
		})
	}
	return nil
}

func renameStmts(stmts []ir.Stmt, prefix string) []ir.Stmt {
	renamed := ir.RewriteStmts(stmts, func(x ir.Expr) ir.Expr {
		if ref, ok := x.(*ir.SignalRef); ok {
			return &ir.SignalRef{Name: prefix + ref.Name}
		}
		return x
	})
	var walk func(s ir.Stmt)
	walk = func(s ir.Stmt) {
		switch x := s.(type) {
		case *ir.Assign:
			x.Target = prefix + x.Target
		case *ir.If:
			for _, b := range x.Then {
				walk(b)
			}
			for _, b := range x.Else {
				walk(b)
			}
		case *ir.Case:
			for _, arm := range x.Arms {
				for _, b := range arm.Body {
					walk(b)
				}
			}
			for _, b := range x.Default {
				walk(b)
			}
		case *ir.Loop:
			for _, b := range x.Body {
				walk(b)
			}
		}
	}
	for _, s := range renamed {
		walk(s)
	}
	return renamed
}
