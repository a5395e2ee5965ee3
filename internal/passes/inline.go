package passes

import (
	"github.com/pkg/errors"

	"rtlopt/internal/ir"
)

// InlineWires forward-substitutes single-fanout wires into their one
// reader. A chain of two-input gates collapses into a single expression
// this way; the now-unread intermediate wires fall to dead-logic
// elimination afterwards. Ports and multi-fanout wires are left alone so
// no logic is ever duplicated.
type InlineWires struct {
	changed bool
}

// NewInlineWires constructs the pass.
func NewInlineWires() *InlineWires {
	return &InlineWires{}
}

// Name implements the Pass interface.
func (p *InlineWires) Name() string {
	return "inline-wires"
}

// Changed reports whether the last Run substituted anything.
func (p *InlineWires) Changed() bool {
	return p.changed
}

// Run executes the pass over every module.
func (p *InlineWires) Run(design *ir.Design) error {
	if design == nil {
		return errors.New("wire inlining requires a non-nil design")
	}
	p.changed = false
	for _, m := range design.Modules {
		if p.runModule(m) {
			p.changed = true
		}
	}
	return nil
}

func (p *InlineWires) runModule(m *ir.Module) bool {
	ports := make(map[string]bool, len(m.Ports))
	for _, port := range m.Ports {
		ports[port.Name] = true
	}

	reads := make(map[string]int)
	countExpr := func(e ir.Expr) {
		ir.WalkRefs(e, func(name string) { reads[name]++ })
	}
	for _, a := range m.Assigns {
		countExpr(a.Source)
	}
	for _, proc := range m.Processes {
		for _, s := range proc.Body {
			ir.WalkStmtRefs(s, func(name string) { reads[name]++ })
		}
		for _, e := range proc.Sensitivity.Edges {
			reads[e.Signal] += 2 // sensed signals must stay named
		}
	}
	for _, inst := range m.Instances {
		for _, in := range inst.Inputs {
			countExpr(in.Source)
		}
	}

	// A wire is inlinable when it has exactly one continuous driver, no
	// other driver of any kind, exactly one read, and is not a port.
	drivers := make(map[string]*ir.ContAssign)
	multi := make(map[string]bool)
	for _, a := range m.Assigns {
		if drivers[a.Target] != nil {
			multi[a.Target] = true
		}
		drivers[a.Target] = a
	}
	for _, proc := range m.Processes {
		for _, target := range stmtListTargets(proc.Body) {
			multi[target] = true
		}
	}
	for _, inst := range m.Instances {
		for _, out := range inst.Outputs {
			multi[out.Signal] = true
		}
	}
	inlinable := make(map[string]bool)
	for name, a := range drivers {
		sig := m.Signal(name)
		if sig == nil || sig.Kind != ir.Wire || ports[name] || multi[name] {
			continue
		}
		if reads[name] != 1 || a.Source == nil {
			continue
		}
		inlinable[name] = true
	}
	if len(inlinable) == 0 {
		return false
	}

	changed := false
	var resolve func(e ir.Expr) ir.Expr
	resolve = func(e ir.Expr) ir.Expr {
		return ir.RewriteExpr(e, func(x ir.Expr) ir.Expr {
			if ref, ok := x.(*ir.SignalRef); ok && inlinable[ref.Name] {
				changed = true
				return resolve(drivers[ref.Name].Source)
			}
			return x
		})
	}
	for _, a := range m.Assigns {
		if inlinable[a.Target] {
			continue // its body moves to the reader; the assign itself dies
		}
		a.Source = resolve(a.Source)
	}
	for _, proc := range m.Processes {
		proc.Body = ir.RewriteStmts(proc.Body, func(x ir.Expr) ir.Expr {
			if ref, ok := x.(*ir.SignalRef); ok && inlinable[ref.Name] {
				changed = true
				return resolve(drivers[ref.Name].Source)
			}
			return x
		})
	}
	for _, inst := range m.Instances {
		for i := range inst.Inputs {
			inst.Inputs[i].Source = resolve(inst.Inputs[i].Source)
		}
	}
	return changed
}
