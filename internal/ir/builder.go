package ir

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"rtlopt/internal/diag"
)

// HierarchyCycleError reports a module that instantiates itself directly or
// transitively. The instance hierarchy must be a DAG.
type HierarchyCycleError struct {
	Path []string
}

func (e *HierarchyCycleError) Error() string {
	return "instance hierarchy cycle: " + strings.Join(e.Path, " -> ")
}

// BuildDesign links a set of parsed modules into a Design: it indexes the
// module arena, declares port signals, verifies every signal and module
// reference against the declarations, assigns first-definition ordinals, and
// proves the instance hierarchy acyclic. The optimizer rejects a malformed
// IR here rather than guessing later.
func BuildDesign(modules []*Module, top string, reporter *diag.Reporter) (*Design, error) {
	if len(modules) == 0 {
		return nil, errors.New("no modules provided")
	}
	design := &Design{
		Modules: modules,
		index:   make(map[string]*Module, len(modules)),
	}
	for _, m := range modules {
		if m == nil || m.Name == "" {
			return nil, errors.New("unnamed module in input IR")
		}
		if design.index[m.Name] != nil {
			return nil, errors.Errorf("module %q defined twice", m.Name)
		}
		design.index[m.Name] = m
	}
	design.Top = design.index[top]
	if design.Top == nil {
		if top != "" {
			return nil, errors.Errorf("top module %q not found", top)
		}
		design.Top = modules[0]
	}

	b := &linker{design: design, reporter: reporter}
	for _, m := range modules {
		if err := b.linkModule(m); err != nil {
			return nil, err
		}
	}
	if err := b.checkHierarchy(); err != nil {
		return nil, err
	}
	return design, nil
}

type linker struct {
	design   *Design
	reporter *diag.Reporter
}

func (b *linker) linkModule(m *Module) error {
	portNames := make(map[string]bool, len(m.Ports))
	for _, p := range m.Ports {
		if portNames[p.Name] {
			return errors.Errorf("module %s: port %q declared twice", m.Name, p.Name)
		}
		portNames[p.Name] = true
	}
	sigNames := make(map[string]bool, len(m.Signals))
	for _, sig := range m.Signals {
		if sigNames[sig.Name] {
			return errors.Errorf("module %s: signal %q declared twice", m.Name, sig.Name)
		}
		sigNames[sig.Name] = true
	}
	instNames := make(map[string]bool, len(m.Instances))
	for _, inst := range m.Instances {
		if instNames[inst.Name] {
			return errors.Errorf("module %s: instance %q declared twice", m.Name, inst.Name)
		}
		instNames[inst.Name] = true
	}

	m.reindex()
	for _, p := range m.Ports {
		if p.Width <= 0 || p.Width > MaxWidth {
			return errors.Errorf("module %s: port %s width %d out of range 1..%d", m.Name, p.Name, p.Width, MaxWidth)
		}
		if m.Signal(p.Name) == nil {
			// Ports are usable as plain signals inside the module body.
			m.Signals = append(m.Signals, &Signal{Name: p.Name, Width: p.Width, Kind: Wire})
		}
	}
	m.reindex()
	for _, sig := range m.Signals {
		if sig.Width <= 0 || sig.Width > MaxWidth {
			return errors.Errorf("module %s: signal %s width %d out of range 1..%d", m.Name, sig.Name, sig.Width, MaxWidth)
		}
	}

	// First-definition ordinals: declaration order of signals, then
	// assignments, processes and instances in input order.
	ord := 0
	for _, sig := range m.Signals {
		sig.Ordinal = ord
		ord++
	}
	for _, a := range m.Assigns {
		a.Ordinal = ord
		ord++
	}
	for _, p := range m.Processes {
		p.Ordinal = ord
		ord++
	}
	for _, inst := range m.Instances {
		inst.Ordinal = ord
		ord++
	}
	m.nextOrd = ord

	for _, a := range m.Assigns {
		if m.Signal(a.Target) == nil {
			return errors.Errorf("module %s: continuous assignment targets undeclared signal %q", m.Name, a.Target)
		}
		if err := b.checkExpr(m, a.Source, "assign "+a.Target); err != nil {
			return err
		}
	}
	for i, p := range m.Processes {
		if p.Name == "" {
			p.Name = fmt.Sprintf("proc_%d", i)
		}
		for _, e := range p.Sensitivity.Edges {
			if m.Signal(e.Signal) == nil {
				return errors.Errorf("module %s: process %s senses undeclared signal %q", m.Name, p.Name, e.Signal)
			}
		}
		if err := b.checkStmts(m, p.Body, "process "+p.Name); err != nil {
			return err
		}
	}
	for _, inst := range m.Instances {
		sub := b.design.Module(inst.ModuleName)
		if sub == nil {
			return errors.Errorf("module %s: instance %s references unknown module %q", m.Name, inst.Name, inst.ModuleName)
		}
		for _, in := range inst.Inputs {
			port := sub.Port(in.Port)
			if port == nil || port.Direction == Output {
				return errors.Errorf("module %s: instance %s binds missing input port %q of %s", m.Name, inst.Name, in.Port, inst.ModuleName)
			}
			if err := b.checkExpr(m, in.Source, "instance "+inst.Name); err != nil {
				return err
			}
		}
		for _, out := range inst.Outputs {
			port := sub.Port(out.Port)
			if port == nil || port.Direction == Input {
				return errors.Errorf("module %s: instance %s binds missing output port %q of %s", m.Name, inst.Name, out.Port, inst.ModuleName)
			}
			if m.Signal(out.Signal) == nil {
				return errors.Errorf("module %s: instance %s output %s bound to undeclared signal %q", m.Name, inst.Name, out.Port, out.Signal)
			}
		}
	}
	return nil
}

func (b *linker) checkExpr(m *Module, e Expr, where string) error {
	if e == nil {
		return errors.Errorf("module %s: %s has no source expression", m.Name, where)
	}
	var err error
	WalkRefs(e, func(name string) {
		if err == nil && m.Signal(name) == nil {
			err = errors.Errorf("module %s: %s references undeclared signal %q", m.Name, where, name)
		}
	})
	if err != nil {
		return err
	}
	WalkInstanceRefs(e, func(instance, port string) {
		if err != nil {
			return
		}
		inst := m.Instance(instance)
		if inst == nil {
			err = errors.Errorf("module %s: %s references unknown instance %q", m.Name, where, instance)
			return
		}
		sub := b.design.Module(inst.ModuleName)
		if sub == nil {
			return // reported by the instance check
		}
		if p := sub.Port(port); p == nil || p.Direction == Input {
			err = errors.Errorf("module %s: %s references missing output %s.%s", m.Name, where, instance, port)
		}
	})
	return err
}

func (b *linker) checkStmts(m *Module, stmts []Stmt, where string) error {
	for _, s := range stmts {
		switch x := s.(type) {
		case *Assign:
			if m.Signal(x.Target) == nil {
				return errors.Errorf("module %s: %s assigns undeclared signal %q", m.Name, where, x.Target)
			}
			if err := b.checkExpr(m, x.Source, where); err != nil {
				return err
			}
		case *If:
			if err := b.checkExpr(m, x.Cond, where); err != nil {
				return err
			}
			if err := b.checkStmts(m, x.Then, where); err != nil {
				return err
			}
			if err := b.checkStmts(m, x.Else, where); err != nil {
				return err
			}
		case *Case:
			if err := b.checkExpr(m, x.Selector, where); err != nil {
				return err
			}
			for _, arm := range x.Arms {
				if err := b.checkStmts(m, arm.Body, where); err != nil {
					return err
				}
			}
			if err := b.checkStmts(m, x.Default, where); err != nil {
				return err
			}
		case *Loop:
			if x.Count < 0 {
				return errors.Errorf("module %s: %s has a loop with negative trip count %d", m.Name, where, x.Count)
			}
			if err := b.checkStmts(m, x.Body, where); err != nil {
				return err
			}
		default:
			return errors.Errorf("module %s: %s contains unsupported statement %T", m.Name, where, s)
		}
	}
	return nil
}

// checkHierarchy walks the instantiation graph once with a visited set and
// an on-path set, so recursion is caught without relying on stack depth.
func (b *linker) checkHierarchy() error {
	const (
		unseen = 0
		onPath = 1
		done   = 2
	)
	state := make(map[string]int, len(b.design.Modules))
	var path []string

	var visit func(m *Module) error
	visit = func(m *Module) error {
		switch state[m.Name] {
		case done:
			return nil
		case onPath:
			cycle := append(append([]string{}, path...), m.Name)
			err := &HierarchyCycleError{Path: cycle}
			if b.reporter != nil {
				b.reporter.Errorf(diag.HierarchyCycle, m.Name, "", "%s", err.Error())
			}
			return err
		}
		state[m.Name] = onPath
		path = append(path, m.Name)
		for _, inst := range m.Instances {
			sub := b.design.Module(inst.ModuleName)
			if sub == nil {
				continue
			}
			if err := visit(sub); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[m.Name] = done
		return nil
	}

	for _, m := range b.design.Modules {
		if err := visit(m); err != nil {
			return err
		}
	}
	return nil
}
