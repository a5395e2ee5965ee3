// Package graph derives the signal-level dependency graph of a module and
// enforces the structural invariants the optimizer relies on: at most one
// unconditional driver per wire, one writing process domain per variable,
// and no combinational cycles.
package graph

import (
	"sort"
	"strings"

	"rtlopt/internal/diag"
	"rtlopt/internal/ir"
)

// CombinationalLoopError reports a cycle of wires with no sequential element
// in between. A cycle through an edge-triggered process is legal feedback
// and is not reported.
type CombinationalLoopError struct {
	Module string
	Cycle  []string
}

func (e *CombinationalLoopError) Error() string {
	return "combinational loop in " + e.Module + ": " + strings.Join(e.Cycle, " -> ")
}

// MultipleDriverConflict reports a signal with conflicting drivers.
type MultipleDriverConflict struct {
	Module string
	Signal string
	Detail string
}

func (e *MultipleDriverConflict) Error() string {
	return "multiple drivers for " + e.Module + "." + e.Signal + ": " + e.Detail
}

// Graph is the signal-level dependency graph of one module. Edges run from
// each read signal to the signals it can influence. Combinational edges are
// the subset introduced by continuous assignments, combinational processes
// and instance port bindings; sequential process edges are tracked but break
// combinational cycles.
type Graph struct {
	Module *ir.Module

	preds     map[string][]string // target -> signals it depends on (all edges)
	combSuccs map[string][]string // source -> targets, combinational edges only
}

// Preds returns the signals the target depends on, in insertion order.
func (g *Graph) Preds(target string) []string {
	return g.preds[target]
}

// Build derives the dependency graph and checks the driver and acyclicity
// invariants, reporting violations before returning the typed error.
func Build(m *ir.Module, d *ir.Design, reporter *diag.Reporter) (*Graph, error) {
	g := &Graph{
		Module:    m,
		preds:     make(map[string][]string),
		combSuccs: make(map[string][]string),
	}

	if err := g.checkDrivers(m, reporter); err != nil {
		return nil, err
	}

	for _, a := range m.Assigns {
		g.addEdges(m, a.Source, []string{a.Target}, true)
	}
	for _, p := range m.Processes {
		comb := p.Domain() == ir.Combinational
		g.addStmtEdges(m, p.Body, nil, comb)
	}
	for _, inst := range m.Instances {
		var targets []string
		for _, out := range inst.Outputs {
			targets = append(targets, out.Signal)
		}
		for _, in := range inst.Inputs {
			g.addEdges(m, in.Source, targets, false)
		}
	}

	if cycle := g.findCombCycle(); cycle != nil {
		err := &CombinationalLoopError{Module: m.Name, Cycle: cycle}
		if reporter != nil {
			reporter.Errorf(diag.CombinationalLoop, m.Name, cycle[0], "%s", strings.Join(cycle, " -> "))
		}
		return nil, err
	}
	return g, nil
}

// addStmtEdges adds one edge set per assignment: the assignment's own reads
// plus the reads of every enclosing branch condition feed its target.
// Sibling assignments in the same process stay independent.
func (g *Graph) addStmtEdges(m *ir.Module, stmts []ir.Stmt, conds []ir.Expr, comb bool) {
	for _, s := range stmts {
		switch st := s.(type) {
		case *ir.Assign:
			targets := []string{st.Target}
			g.addEdges(m, st.Source, targets, comb)
			for _, c := range conds {
				g.addEdges(m, c, targets, comb)
			}
		case *ir.If:
			inner := append(append([]ir.Expr{}, conds...), st.Cond)
			g.addStmtEdges(m, st.Then, inner, comb)
			g.addStmtEdges(m, st.Else, inner, comb)
		case *ir.Case:
			inner := append(append([]ir.Expr{}, conds...), st.Selector)
			for _, arm := range st.Arms {
				g.addStmtEdges(m, arm.Body, inner, comb)
			}
			g.addStmtEdges(m, st.Default, inner, comb)
		case *ir.Loop:
			g.addStmtEdges(m, st.Body, conds, comb)
		}
	}
}

func (g *Graph) addEdges(m *ir.Module, src ir.Expr, targets []string, comb bool) {
	ir.WalkRefs(src, func(name string) {
		g.addEdge(name, targets, comb)
	})
	ir.WalkInstanceRefs(src, func(instance, port string) {
		// An instance output read depends on everything feeding that
		// instance's inputs.
		inst := m.Instance(instance)
		if inst == nil {
			return
		}
		for _, in := range inst.Inputs {
			ir.WalkRefs(in.Source, func(name string) {
				g.addEdge(name, targets, comb)
			})
		}
	})
}

func (g *Graph) addEdge(src string, targets []string, comb bool) {
	for _, t := range targets {
		if !contains(g.preds[t], src) {
			g.preds[t] = append(g.preds[t], src)
		}
		if comb && !contains(g.combSuccs[src], t) {
			g.combSuccs[src] = append(g.combSuccs[src], t)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// checkDrivers enforces one unconditional continuous driver per wire and a
// single writing process domain per variable.
func (g *Graph) checkDrivers(m *ir.Module, reporter *diag.Reporter) error {
	contDrivers := make(map[string]int)
	for _, a := range m.Assigns {
		contDrivers[a.Target]++
	}
	for _, inst := range m.Instances {
		for _, out := range inst.Outputs {
			contDrivers[out.Signal]++
		}
	}
	procDomains := make(map[string]map[ir.Domain]bool)
	for _, p := range m.Processes {
		for _, t := range processTargets(p) {
			if procDomains[t] == nil {
				procDomains[t] = make(map[ir.Domain]bool)
			}
			procDomains[t][p.Domain()] = true
		}
	}

	names := make([]string, 0, len(contDrivers)+len(procDomains))
	for name := range contDrivers {
		names = append(names, name)
	}
	for name := range procDomains {
		if _, ok := contDrivers[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var detail string
		switch {
		case contDrivers[name] > 1:
			detail = "more than one unconditional continuous driver"
		case contDrivers[name] == 1 && len(procDomains[name]) > 0:
			detail = "driven by both a continuous assignment and a process"
		case len(procDomains[name]) > 1:
			detail = "written from both a combinational and a sequential process"
		default:
			continue
		}
		err := &MultipleDriverConflict{Module: m.Name, Signal: name, Detail: detail}
		if reporter != nil {
			reporter.Errorf(diag.MultipleDriver, m.Name, name, "%s", detail)
		}
		return err
	}
	return nil
}

// findCombCycle runs Tarjan's strongly-connected-components algorithm over
// the combinational edge subset and returns the first multi-node component
// (or self loop) as a signal sequence.
func (g *Graph) findCombCycle() []string {
	nodes := make([]string, 0, len(g.combSuccs))
	for n := range g.combSuccs {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, succ := range g.combSuccs[v] {
			if _, ok := indices[succ]; !ok {
				strongConnect(succ)
				if lowlink[succ] < lowlink[v] {
					lowlink[v] = lowlink[succ]
				}
			} else if onStack[succ] && indices[succ] < lowlink[v] {
				lowlink[v] = indices[succ]
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for len(stack) > 0 {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if cycle != nil {
				return
			}
			if len(component) > 1 {
				sort.Strings(component)
				cycle = append(component, component[0])
			} else if contains(g.combSuccs[v], v) {
				cycle = []string{v, v}
			}
		}
	}

	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			strongConnect(n)
		}
		if cycle != nil {
			return cycle
		}
	}
	return nil
}

func processTargets(p *ir.ProcessBlock) []string {
	var targets []string
	seen := make(map[string]bool)
	for _, s := range p.Body {
		ir.WalkStmtTargets(s, func(name string) {
			if !seen[name] {
				seen[name] = true
				targets = append(targets, name)
			}
		})
	}
	return targets
}
