package passes

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"rtlopt/internal/diag"
	"rtlopt/internal/graph"
	"rtlopt/internal/ir"
	"rtlopt/internal/validate"
)

// DefaultMaxRounds bounds the constant-propagation / dead-logic fixpoint.
// A well-formed design converges in a handful of rounds; hitting the cap
// means the passes are oscillating and the result cannot be trusted.
const DefaultMaxRounds = 1000

// Options configures an Optimize invocation.
type Options struct {
	// Flatten inlines the instance hierarchy into the top module after the
	// optimization fixpoint, then re-runs the fixpoint over the flat design.
	Flatten bool
	// MaxRounds overrides DefaultMaxRounds when positive.
	MaxRounds int
}

// NonConvergenceError reports that the optimization fixpoint was still
// making changes when the round cap was reached.
type NonConvergenceError struct {
	Rounds int
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("optimization did not converge after %d rounds", e.Rounds)
}

// Optimize runs the full pipeline over a design: structural validation,
// read-only analysis, the constprop/dead-logic fixpoint, and optional
// flattening. The input design is never mutated; the optimized copy is
// returned. A returned error is fatal and the returned design, if any,
// must not be used.
func Optimize(design *ir.Design, reporter *diag.Reporter, opts Options) (*ir.Design, error) {
	if design == nil {
		return nil, fmt.Errorf("optimize requires a non-nil design")
	}
	work := design.Clone()

	if err := validateStructure(work, reporter); err != nil {
		return nil, err
	}
	if err := Analyze(work, reporter); err != nil {
		return nil, err
	}

	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	if err := runFixpoint(work, reporter, maxRounds); err != nil {
		return nil, err
	}

	if opts.Flatten {
		if err := NewFlatten().Run(work); err != nil {
			return nil, err
		}
		if err := validateStructure(work, reporter); err != nil {
			return nil, err
		}
		if err := runFixpoint(work, reporter, maxRounds); err != nil {
			return nil, err
		}
	}
	return work, nil
}

// Check runs structural validation and the read-only analyzers without
// optimizing. The design is not mutated.
func Check(design *ir.Design, reporter *diag.Reporter) error {
	if design == nil {
		return fmt.Errorf("check requires a non-nil design")
	}
	if err := validateStructure(design, reporter); err != nil {
		return err
	}
	return Analyze(design, reporter)
}

// validateStructure builds the per-module dependency graph, which rejects
// combinational loops and multiple-driver conflicts.
func validateStructure(design *ir.Design, reporter *diag.Reporter) error {
	for _, m := range design.Modules {
		if _, err := graph.Build(m, design, reporter); err != nil {
			return err
		}
	}
	return nil
}

// Analyze runs the read-only analyzers over every module concurrently.
// Diagnostics are merged into the reporter in sorted module-name order so
// the output is stable regardless of scheduling.
func Analyze(design *ir.Design, reporter *diag.Reporter) error {
	results := make([][]diag.Diagnostic, len(design.Modules))
	var g errgroup.Group
	for i, m := range design.Modules {
		i, m := i, m
		g.Go(func() error {
			results[i] = validate.AnalyzeModule(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	order := make([]int, len(design.Modules))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return design.Modules[order[a]].Name < design.Modules[order[b]].Name
	})
	for _, i := range order {
		for _, d := range results[i] {
			reporter.Report(d)
		}
	}
	return nil
}

func runFixpoint(design *ir.Design, reporter *diag.Reporter, maxRounds int) error {
	cp := NewConstProp()
	dl := NewDeadLogic()
	inl := NewInlineWires()
	mgr := NewManager()
	mgr.Add(cp)
	mgr.Add(dl)
	mgr.Add(inl)
	for round := 1; ; round++ {
		if round > maxRounds {
			reporter.Errorf(diag.NonConvergence, topName(design), "",
				"optimization still changing after %d rounds", maxRounds)
			return &NonConvergenceError{Rounds: maxRounds}
		}
		if err := mgr.Run(design); err != nil {
			return err
		}
		if !cp.Changed() && !dl.Changed() && !inl.Changed() {
			return nil
		}
	}
}

func topName(design *ir.Design) string {
	if design.Top != nil {
		return design.Top.Name
	}
	return ""
}
