package passes

import (
	"github.com/pkg/errors"

	"rtlopt/internal/ir"
)

// ConstProp is the iterative constant propagation engine. It grows a
// monotone "known constant" set per module to fixpoint, folds every
// expression under that set, and specializes submodule instances whose
// inputs are all tied to constants.
type ConstProp struct {
	design  *ir.Design
	changed bool
}

// NewConstProp constructs the pass.
func NewConstProp() *ConstProp {
	return &ConstProp{}
}

// Name implements the Pass interface.
func (c *ConstProp) Name() string {
	return "const-prop"
}

// Changed reports whether the last Run rewrote anything. The pipeline uses
// it to drive the propagation/elimination fixpoint loop.
func (c *ConstProp) Changed() bool {
	return c.changed
}

// Run executes the pass over every module in the design.
func (c *ConstProp) Run(design *ir.Design) error {
	if design == nil {
		return errors.New("constant propagation requires a non-nil design")
	}
	c.design = design
	c.changed = false
	for _, m := range design.Modules {
		if err := c.runModule(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConstProp) runModule(m *ir.Module) error {
	ev := newEvaluator(c.design, m)
	ev.discover()
	c.apply(m, ev)
	return nil
}

// evaluator carries the per-module constant facts while they are being
// discovered. Submodule specialization builds a nested evaluator against
// the submodule definition without mutating it.
type evaluator struct {
	design *ir.Design
	module *ir.Module

	known    map[string]ir.BitVector
	instOuts map[string]map[string]ir.BitVector
}

func newEvaluator(d *ir.Design, m *ir.Module) *evaluator {
	return &evaluator{
		design:   d,
		module:   m,
		known:    make(map[string]ir.BitVector),
		instOuts: make(map[string]map[string]ir.BitVector),
	}
}

// discover grows the known set until a full pass adds nothing. A signal is
// never revisited once constant, so the loop is bounded by the signal count.
func (ev *evaluator) discover() {
	for round := 0; round <= len(ev.module.Signals); round++ {
		if !ev.discoverRound() {
			return
		}
	}
}

func (ev *evaluator) discoverRound() bool {
	changed := false
	for _, a := range ev.module.Assigns {
		if _, ok := ev.known[a.Target]; ok {
			continue
		}
		sig := ev.module.Signal(a.Target)
		if sig == nil || sig.Kind != ir.Wire {
			continue
		}
		if v, ok := asLiteral(ev.fold(a.Source)); ok {
			ev.known[a.Target] = v.Trunc(sig.Width)
			changed = true
		}
	}
	for _, p := range ev.module.Processes {
		if p.Domain() != ir.Combinational {
			continue
		}
		for _, target := range stmtListTargets(p.Body) {
			if _, ok := ev.known[target]; ok {
				continue
			}
			sig := ev.module.Signal(target)
			if sig == nil {
				continue
			}
			st := ev.applyStmts(constState{}, p.Body, target)
			if st.kind == stConst {
				ev.known[target] = st.value.Trunc(sig.Width)
				changed = true
			}
		}
	}
	for _, inst := range ev.module.Instances {
		if _, ok := ev.instOuts[inst.Name]; ok {
			continue
		}
		if outs, ok := ev.specialize(inst); ok {
			ev.instOuts[inst.Name] = outs
			for _, ob := range inst.Outputs {
				if v, ok := outs[ob.Port]; ok {
					if sig := ev.module.Signal(ob.Signal); sig != nil {
						if _, seen := ev.known[ob.Signal]; !seen {
							ev.known[ob.Signal] = v.Trunc(sig.Width)
						}
					}
				}
			}
			changed = true
		}
	}
	return changed
}

// specialize re-evaluates the instantiated module with every input port
// bound to its constant value. All outputs constant means the instance can
// be replaced by direct constant assignments.
func (ev *evaluator) specialize(inst *ir.Instance) (map[string]ir.BitVector, bool) {
	sub := ev.design.Module(inst.ModuleName)
	if sub == nil {
		return nil, false
	}
	bound := make(map[string]ir.BitVector, len(inst.Inputs))
	for _, in := range inst.Inputs {
		v, ok := asLiteral(ev.fold(in.Source))
		if !ok {
			return nil, false
		}
		if port := sub.Port(in.Port); port != nil {
			bound[in.Port] = v.Trunc(port.Width)
		}
	}
	for _, p := range sub.Ports {
		if p.Direction != ir.Input {
			continue
		}
		if _, ok := bound[p.Name]; !ok {
			return nil, false
		}
	}

	nested := newEvaluator(ev.design, sub)
	for name, v := range bound {
		nested.known[name] = v
	}
	nested.discover()

	outs := make(map[string]ir.BitVector)
	for _, p := range sub.Ports {
		if p.Direction == ir.Input {
			continue
		}
		v, ok := nested.known[p.Name]
		if !ok {
			return nil, false
		}
		outs[p.Name] = v
	}
	return outs, true
}

// apply rewrites the module under the discovered facts: folded expressions
// everywhere, constant drivers for known wires, and fully constant
// instances replaced by direct assignments.
func (c *ConstProp) apply(m *ir.Module, ev *evaluator) {
	for _, a := range m.Assigns {
		var next ir.Expr
		if v, ok := ev.known[a.Target]; ok {
			next = &ir.Literal{Value: v}
		} else {
			next = ev.fold(a.Source)
		}
		if ir.ExprString(next) != ir.ExprString(a.Source) {
			a.Source = next
			c.changed = true
		}
	}
	for _, p := range m.Processes {
		before := p.Body
		after := pruneStmts(ir.RewriteStmts(before, ev.foldNode))
		if !stmtsEqual(before, after) {
			p.Body = after
			c.changed = true
		}
	}
	for _, inst := range m.Instances {
		for i, in := range inst.Inputs {
			next := ev.fold(in.Source)
			if ir.ExprString(next) != ir.ExprString(in.Source) {
				inst.Inputs[i].Source = next
				c.changed = true
			}
		}
	}

	// Replace instances whose outputs all folded to constants. The classic
	// collapse: a gate with every input tied becomes a constant driver.
	var kept []*ir.Instance
	for _, inst := range m.Instances {
		outs, ok := ev.instOuts[inst.Name]
		if !ok {
			kept = append(kept, inst)
			continue
		}
		for _, ob := range inst.Outputs {
			v := outs[ob.Port]
			if sig := m.Signal(ob.Signal); sig != nil {
				v = v.Trunc(sig.Width)
			}
			m.Assigns = append(m.Assigns, &ir.ContAssign{
				Target:  ob.Signal,
				Source:  &ir.Literal{Value: v},
				Ordinal: m.AllocOrdinal(),
			})
		}
		c.changed = true
	}
	m.Instances = kept
}

// pruneStmts removes control flow the folder already decided: constant
// branch predicates, constant case selectors and zero-trip loops.
func pruneStmts(stmts []ir.Stmt) []ir.Stmt {
	var out []ir.Stmt
	for _, s := range stmts {
		switch x := s.(type) {
		case *ir.If:
			if v, ok := asLiteral(x.Cond); ok {
				branch := x.Then
				if v.IsZero() {
					branch = x.Else
				}
				out = append(out, pruneStmts(branch)...)
				continue
			}
			out = append(out, &ir.If{Cond: x.Cond, Then: pruneStmts(x.Then), Else: pruneStmts(x.Else)})
		case *ir.Case:
			if v, ok := asLiteral(x.Selector); ok {
				taken := x.Default
				for _, arm := range x.Arms {
					if ir.MatchesPattern(v, arm.Pattern, arm.Mask) {
						taken = arm.Body
						break
					}
				}
				out = append(out, pruneStmts(taken)...)
				continue
			}
			next := &ir.Case{Selector: x.Selector}
			for _, arm := range x.Arms {
				next.Arms = append(next.Arms, ir.CaseArm{
					Pattern: arm.Pattern,
					Mask:    arm.Mask,
					Body:    pruneStmts(arm.Body),
				})
			}
			if x.Default != nil {
				def := pruneStmts(x.Default)
				if def == nil {
					def = []ir.Stmt{}
				}
				next.Default = def
			}
			out = append(out, next)
		case *ir.Loop:
			if x.Count <= 0 {
				continue
			}
			out = append(out, &ir.Loop{Count: x.Count, Body: pruneStmts(x.Body)})
		default:
			out = append(out, s)
		}
	}
	return out
}

func stmtsEqual(a, b []ir.Stmt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !stmtEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func stmtEqual(a, b ir.Stmt) bool {
	switch x := a.(type) {
	case *ir.Assign:
		y, ok := b.(*ir.Assign)
		return ok && x.Target == y.Target && x.Kind == y.Kind &&
			ir.ExprString(x.Source) == ir.ExprString(y.Source)
	case *ir.If:
		y, ok := b.(*ir.If)
		return ok && ir.ExprString(x.Cond) == ir.ExprString(y.Cond) &&
			stmtsEqual(x.Then, y.Then) && stmtsEqual(x.Else, y.Else)
	case *ir.Case:
		y, ok := b.(*ir.Case)
		if !ok || ir.ExprString(x.Selector) != ir.ExprString(y.Selector) || len(x.Arms) != len(y.Arms) {
			return false
		}
		for i := range x.Arms {
			if !x.Arms[i].Pattern.Equal(y.Arms[i].Pattern) || !x.Arms[i].Mask.Equal(y.Arms[i].Mask) ||
				!stmtsEqual(x.Arms[i].Body, y.Arms[i].Body) {
				return false
			}
		}
		return stmtsEqual(x.Default, y.Default)
	case *ir.Loop:
		y, ok := b.(*ir.Loop)
		return ok && x.Count == y.Count && stmtsEqual(x.Body, y.Body)
	default:
		return false
	}
}

func stmtListTargets(stmts []ir.Stmt) []string {
	var targets []string
	seen := make(map[string]bool)
	for _, s := range stmts {
		ir.WalkStmtTargets(s, func(name string) {
			if !seen[name] {
				seen[name] = true
				targets = append(targets, name)
			}
		})
	}
	return targets
}
