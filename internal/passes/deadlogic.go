package passes

import (
	"github.com/pkg/errors"

	"rtlopt/internal/ir"
)

// DeadLogic removes every driver, process and instance that cannot reach an
// output port. Backward reachability starts at the declared outputs and
// walks the dependency edges, including through instance port bindings, so
// an unused register disappears together with its driving logic even when
// it feeds back into itself.
type DeadLogic struct {
	changed bool
}

// NewDeadLogic constructs the pass.
func NewDeadLogic() *DeadLogic {
	return &DeadLogic{}
}

// Name implements the Pass interface.
func (d *DeadLogic) Name() string {
	return "dead-logic"
}

// Changed reports whether the last Run removed anything.
func (d *DeadLogic) Changed() bool {
	return d.changed
}

// Run executes the pass over every module, iterating each module to its own
// fixpoint: removing one instance can make its inputs newly unobservable.
func (d *DeadLogic) Run(design *ir.Design) error {
	if design == nil {
		return errors.New("dead-logic elimination requires a non-nil design")
	}
	d.changed = false
	for _, m := range design.Modules {
		for d.runModule(m) {
			d.changed = true
		}
	}
	return nil
}

func (d *DeadLogic) runModule(m *ir.Module) bool {
	obs := make(map[string]bool)
	liveInst := make(map[string]bool)
	for _, name := range m.OutputPorts() {
		obs[name] = true
	}
	// Input and bidirectional ports stay declared regardless; they are part
	// of the module's interface.
	keepDecl := make(map[string]bool)
	for _, p := range m.Ports {
		keepDecl[p.Name] = true
	}

	markExpr := func(e ir.Expr) {
		ir.WalkRefs(e, func(name string) { obs[name] = true })
		ir.WalkInstanceRefs(e, func(instance, _ string) { liveInst[instance] = true })
	}

	for changed := true; changed; {
		changed = false
		before := len(obs) + len(liveInst)
		for _, a := range m.Assigns {
			if obs[a.Target] {
				markExpr(a.Source)
			}
		}
		for _, p := range m.Processes {
			live := false
			for _, t := range stmtListTargets(p.Body) {
				if obs[t] {
					live = true
					break
				}
			}
			if !live {
				continue
			}
			for _, s := range p.Body {
				ir.WalkStmtRefs(s, func(name string) { obs[name] = true })
				markStmtInstRefs(s, liveInst)
			}
			for _, e := range p.Sensitivity.Edges {
				obs[e.Signal] = true
			}
		}
		for _, inst := range m.Instances {
			live := liveInst[inst.Name]
			for _, ob := range inst.Outputs {
				if obs[ob.Signal] {
					live = true
				}
			}
			if !live {
				continue
			}
			liveInst[inst.Name] = true
			for _, in := range inst.Inputs {
				markExpr(in.Source)
			}
		}
		if len(obs)+len(liveInst) != before {
			changed = true
		}
	}

	pruned := false

	var assigns []*ir.ContAssign
	for _, a := range m.Assigns {
		if obs[a.Target] {
			assigns = append(assigns, a)
		} else {
			pruned = true
		}
	}
	m.Assigns = assigns

	var procs []*ir.ProcessBlock
	for _, p := range m.Processes {
		live := false
		for _, t := range stmtListTargets(p.Body) {
			if obs[t] {
				live = true
				break
			}
		}
		if live {
			procs = append(procs, p)
		} else {
			pruned = true
		}
	}
	m.Processes = procs

	var insts []*ir.Instance
	for _, inst := range m.Instances {
		if liveInst[inst.Name] {
			insts = append(insts, inst)
		} else {
			pruned = true
		}
	}
	m.Instances = insts

	for _, sig := range append([]*ir.Signal(nil), m.Signals...) {
		if !obs[sig.Name] && !keepDecl[sig.Name] {
			m.RemoveSignal(sig.Name)
			pruned = true
		}
	}
	return pruned
}

func markStmtInstRefs(s ir.Stmt, liveInst map[string]bool) {
	switch x := s.(type) {
	case *ir.Assign:
		ir.WalkInstanceRefs(x.Source, func(instance, _ string) { liveInst[instance] = true })
	case *ir.If:
		ir.WalkInstanceRefs(x.Cond, func(instance, _ string) { liveInst[instance] = true })
		for _, b := range x.Then {
			markStmtInstRefs(b, liveInst)
		}
		for _, b := range x.Else {
			markStmtInstRefs(b, liveInst)
		}
	case *ir.Case:
		ir.WalkInstanceRefs(x.Selector, func(instance, _ string) { liveInst[instance] = true })
		for _, arm := range x.Arms {
			for _, b := range arm.Body {
				markStmtInstRefs(b, liveInst)
			}
		}
		for _, b := range x.Default {
			markStmtInstRefs(b, liveInst)
		}
	case *ir.Loop:
		for _, b := range x.Body {
			markStmtInstRefs(b, liveInst)
		}
	}
}
