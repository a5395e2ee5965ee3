package validate

import (
	"fmt"
	"sort"
	"strings"

	"rtlopt/internal/diag"
	"rtlopt/internal/ir"
)

// maxPaths bounds control-flow path enumeration per process. Beyond the
// bound the analyzer still reports incomplete targets but without a
// per-path predicate.
const maxPaths = 4096

// maxEnumWidth bounds exhaustive case-coverage enumeration. Wider
// selectors need an explicit default arm to count as covered.
const maxEnumWidth = 16

// AnalyzeModule runs every read-only analyzer over a single module and
// returns the findings. It never mutates the module, so callers may fan
// analysis out across modules concurrently.
func AnalyzeModule(m *ir.Module) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, p := range m.Processes {
		out = append(out, analyzeCases(m, p)...)
		out = append(out, analyzeSensitivity(m, p)...)
		out = append(out, analyzeOrdering(m, p)...)
		if p.Domain() == ir.Combinational {
			out = append(out, analyzeCompleteness(m, p)...)
		}
	}
	return out
}

// execPath is one control-flow path through a process body: the branch
// predicates taken and the signals assigned along the way.
type execPath struct {
	conds    []string
	assigned map[string]bool
}

func (p execPath) fork(cond string) execPath {
	np := execPath{
		conds:    append(append([]string(nil), p.conds...), cond),
		assigned: make(map[string]bool, len(p.assigned)),
	}
	for k := range p.assigned {
		np.assigned[k] = true
	}
	return np
}

// analyzeCompleteness flags every target of a combinational process that
// some control-flow path leaves unassigned. Such a path holds the previous
// value, which in combinational logic means storage the author almost
// certainly did not intend.
func analyzeCompleteness(m *ir.Module, p *ir.ProcessBlock) []diag.Diagnostic {
	targets := make(map[string]bool)
	for _, s := range p.Body {
		ir.WalkStmtTargets(s, func(name string) { targets[name] = true })
	}
	if len(targets) == 0 {
		return nil
	}

	paths, full := enumeratePaths(m, p.Body)
	var out []diag.Diagnostic
	names := sortedKeys(targets)
	for _, name := range names {
		var witness *execPath
		for i := range paths {
			if !paths[i].assigned[name] {
				witness = &paths[i]
				break
			}
		}
		if witness == nil {
			continue
		}
		detail := fmt.Sprintf("signal %q is not assigned on every path; latch inferred", name)
		if full && len(witness.conds) > 0 {
			detail = fmt.Sprintf("signal %q is not assigned when %s; latch inferred",
				name, strings.Join(witness.conds, " && "))
		}
		out = append(out, diag.Diagnostic{
			Category: diag.LatchInferred,
			Severity: diag.Warning,
			Module:   m.Name,
			Loc:      p.Name,
			Detail:   detail,
		})
	}
	return out
}

// enumeratePaths expands the control flow of a statement list into
// individual paths. The second result is false when the path count hit
// maxPaths and enumeration was truncated conservatively: truncated paths
// carry no further assignments, so completeness findings stay sound but
// lose their predicate strings.
func enumeratePaths(m *ir.Module, body []ir.Stmt) ([]execPath, bool) {
	return runList(m, []execPath{{assigned: make(map[string]bool)}}, body, true)
}

func runList(m *ir.Module, paths []execPath, body []ir.Stmt, full bool) ([]execPath, bool) {
	for _, s := range body {
		paths, full = stepPaths(m, paths, s, full)
	}
	return paths, full
}

func stepPaths(m *ir.Module, paths []execPath, s ir.Stmt, full bool) ([]execPath, bool) {
	switch x := s.(type) {
	case *ir.Assign:
		for i := range paths {
			paths[i].assigned[x.Target] = true
		}
		return paths, full
	case *ir.If:
		if len(paths)*2 > maxPaths {
			return paths, false
		}
		var out []execPath
		for _, p := range paths {
			taken := []execPath{p.fork(condString(x.Cond))}
			taken, full = runList(m, taken, x.Then, full)
			out = append(out, taken...)
			skipped := []execPath{p.fork(negString(x.Cond))}
			skipped, full = runList(m, skipped, x.Else, full)
			out = append(out, skipped...)
		}
		return out, full
	case *ir.Case:
		branches := len(x.Arms) + 1
		if len(paths)*branches > maxPaths {
			return paths, false
		}
		sel := ir.ExprString(x.Selector)
		var out []execPath
		for _, p := range paths {
			for _, arm := range x.Arms {
				sub := []execPath{p.fork(fmt.Sprintf("%s matches %s", sel, arm.Pattern))}
				sub, full = runList(m, sub, arm.Body, full)
				out = append(out, sub...)
			}
			if x.Default != nil {
				sub := []execPath{p.fork(fmt.Sprintf("%s matches no arm", sel))}
				sub, full = runList(m, sub, x.Default, full)
				out = append(out, sub...)
			} else if !caseCovered(m, x) {
				out = append(out, p.fork(fmt.Sprintf("%s matches no arm", sel)))
			}
		}
		return out, full
	case *ir.Loop:
		if x.Count <= 0 {
			return paths, full
		}
		for _, b := range x.Body {
			paths, full = stepPaths(m, paths, b, full)
		}
		return paths, full
	default:
		return paths, full
	}
}

// caseCovered reports whether the arms alone cover the whole selector
// space. Wide selectors are never considered covered without a default.
func caseCovered(m *ir.Module, c *ir.Case) bool {
	width := selectorWidth(m, c.Selector)
	if width <= 0 || width > maxEnumWidth {
		return false
	}
	for v := uint64(0); v < 1<<uint(width); v++ {
		bv := ir.NewBitVector(width, v)
		matched := false
		for _, arm := range c.Arms {
			if ir.MatchesPattern(bv, arm.Pattern, arm.Mask) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// analyzeCases flags case statements whose arms overlap: two arms both
// match some selector value, so arm order silently decides the winner.
func analyzeCases(m *ir.Module, p *ir.ProcessBlock) []diag.Diagnostic {
	var out []diag.Diagnostic
	var walk func(s ir.Stmt)
	walk = func(s ir.Stmt) {
		switch x := s.(type) {
		case *ir.If:
			for _, b := range x.Then {
				walk(b)
			}
			for _, b := range x.Else {
				walk(b)
			}
		case *ir.Case:
			for i := 0; i < len(x.Arms); i++ {
				for j := i + 1; j < len(x.Arms); j++ {
					if ir.PatternsOverlap(x.Arms[i].Pattern, x.Arms[i].Mask, x.Arms[j].Pattern, x.Arms[j].Mask) {
						out = append(out, diag.Diagnostic{
							Category: diag.AmbiguousCaseOverlap,
							Severity: diag.Warning,
							Module:   m.Name,
							Loc:      p.Name,
							Detail: fmt.Sprintf("case arms %d and %d on %s overlap; arm %d wins for shared values",
								i, j, ir.ExprString(x.Selector), i),
						})
					}
				}
			}
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
	for _, s := range p.Body {
		walk(s)
	}
	return out
}

// analyzeSensitivity flags edge-triggered processes whose branch decisions
// depend on signals outside the edge list. Reads on assignment right-hand
// sides are sampled at the clock edge and are fine; a condition on an
// unlisted signal changes which branch runs without a triggering edge.
func analyzeSensitivity(m *ir.Module, p *ir.ProcessBlock) []diag.Diagnostic {
	if p.Sensitivity.All || len(p.Sensitivity.Edges) == 0 {
		return nil
	}
	listed := make(map[string]bool)
	for _, e := range p.Sensitivity.Edges {
		listed[e.Signal] = true
	}
	missing := make(map[string]bool)
	var walk func(s ir.Stmt)
	walk = func(s ir.Stmt) {
		switch x := s.(type) {
		case *ir.If:
			ir.WalkRefs(x.Cond, func(name string) {
				if !listed[name] {
					missing[name] = true
				}
			})
			for _, b := range x.Then {
				walk(b)
			}
			for _, b := range x.Else {
				walk(b)
			}
		case *ir.Case:
			ir.WalkRefs(x.Selector, func(name string) {
				if !listed[name] {
					missing[name] = true
				}
			})
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
	for _, s := range p.Body {
		walk(s)
	}
	var out []diag.Diagnostic
	for _, name := range sortedKeys(missing) {
		out = append(out, diag.Diagnostic{
			Category: diag.SensitivityMismatch,
			Severity: diag.Warning,
			Module:   m.Name,
			Loc:      p.Name,
			Detail:   fmt.Sprintf("branch condition reads %q, which is not in the sensitivity list", name),
		})
	}
	return out
}

func selectorWidth(m *ir.Module, e ir.Expr) int {
	switch x := e.(type) {
	case *ir.Literal:
		return x.Value.Width()
	case *ir.SignalRef:
		if sig := m.Signal(x.Name); sig != nil {
			return sig.Width
		}
	case *ir.Slice:
		return x.High - x.Low + 1
	case *ir.Concat:
		sum := 0
		for _, part := range x.Parts {
			w := selectorWidth(m, part)
			if w <= 0 {
				return 0
			}
			sum += w
		}
		return sum
	case *ir.Unary:
		return selectorWidth(m, x.X)
	}
	return 0
}

func condString(e ir.Expr) string {
	return ir.ExprString(e)
}

func negString(e ir.Expr) string {
	if ref, ok := e.(*ir.SignalRef); ok {
		return "!" + ref.Name
	}
	return "!(" + ir.ExprString(e) + ")"
}

func sortedKeys(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
