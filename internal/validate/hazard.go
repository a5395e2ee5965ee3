package validate

import (
	"fmt"

	"rtlopt/internal/diag"
	"rtlopt/internal/ir"
)

// analyzeOrdering flags blocking assignments whose right-hand side reads a
// variable that a later blocking assignment in the same (or an enclosing)
// statement list overwrites. Swapping the two statements changes the
// computed value, so the author should assign the producer first.
func analyzeOrdering(m *ir.Module, p *ir.ProcessBlock) []diag.Diagnostic {
	var out []diag.Diagnostic
	checkOrdering(m, p, p.Body, nil, &out)
	return out
}

// checkOrdering walks one statement list. later holds the blocking-assign
// targets of everything that runs after this list in enclosing scopes.
func checkOrdering(m *ir.Module, p *ir.ProcessBlock, body []ir.Stmt, later map[string]bool, out *[]diag.Diagnostic) {
	for i, s := range body {
		after := make(map[string]bool, len(later))
		for k := range later {
			after[k] = true
		}
		for _, rest := range body[i+1:] {
			blockingTargets(rest, after)
		}
		switch x := s.(type) {
		case *ir.Assign:
			if x.Kind != ir.Blocking {
				continue
			}
			flagged := make(map[string]bool)
			ir.WalkRefs(x.Source, func(name string) {
				if after[name] && !flagged[name] {
					flagged[name] = true
					*out = append(*out, diag.Diagnostic{
						Category: diag.OrderDependentAssignment,
						Severity: diag.Warning,
						Module:   m.Name,
						Loc:      p.Name,
						Detail: fmt.Sprintf("%q reads %q before a later blocking assignment writes it; assign %q first",
							x.Target, name, name),
					})
				}
			})
		case *ir.If:
			checkOrdering(m, p, x.Then, after, out)
			checkOrdering(m, p, x.Else, after, out)
		case *ir.Case:
			for _, arm := range x.Arms {
				checkOrdering(m, p, arm.Body, after, out)
			}
			checkOrdering(m, p, x.Default, after, out)
		case *ir.Loop:
			// Reads of a previous iteration's writes are the point of a
			// loop; only writes after the loop count.
			checkOrdering(m, p, x.Body, after, out)
		}
	}
}

// blockingTargets adds every blocking-assign target inside s to set.
func blockingTargets(s ir.Stmt, set map[string]bool) {
	switch x := s.(type) {
	case *ir.Assign:
		if x.Kind == ir.Blocking {
			set[x.Target] = true
		}
	case *ir.If:
		for _, b := range x.Then {
			blockingTargets(b, set)
		}
		for _, b := range x.Else {
			blockingTargets(b, set)
		}
	case *ir.Case:
		for _, arm := range x.Arms {
			for _, b := range arm.Body {
				blockingTargets(b, set)
			}
		}
		for _, b := range x.Default {
			blockingTargets(b, set)
		}
	case *ir.Loop:
		for _, b := range x.Body {
			blockingTargets(b, set)
		}
	}
}
