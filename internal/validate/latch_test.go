package validate

import (
	"strings"
	"testing"

	"rtlopt/internal/diag"
	"rtlopt/internal/ir"
)

func linkModule(t *testing.T, m *ir.Module) *ir.Module {
	t.Helper()
	if _, err := ir.BuildDesign([]*ir.Module{m}, m.Name, nil); err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	return m
}

func lit(width int, v uint64) *ir.Literal {
	return &ir.Literal{Value: ir.NewBitVector(width, v)}
}

func ref(name string) *ir.SignalRef {
	return &ir.SignalRef{Name: name}
}

func findAll(ds []diag.Diagnostic, cat diag.Category) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, d := range ds {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

func TestLatchInferredOnMissingElse(t *testing.T) {
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "i0", Direction: ir.Input, Width: 1},
			{Name: "i1", Direction: ir.Input, Width: 1},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "drive",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.If{
						Cond: ref("i0"),
						Then: []ir.Stmt{&ir.Assign{Target: "y", Source: ref("i1")}},
					},
				},
			},
		},
	})
	latches := findAll(AnalyzeModule(m), diag.LatchInferred)
	if len(latches) != 1 {
		t.Fatalf("expected exactly one latch finding, got %d", len(latches))
	}
	if !strings.Contains(latches[0].Detail, `"y"`) {
		t.Fatalf("finding must name the signal: %s", latches[0].Detail)
	}
	if !strings.Contains(latches[0].Detail, "!i0") {
		t.Fatalf("finding must carry the unmet path predicate !i0: %s", latches[0].Detail)
	}
}

func TestNoLatchWithCompleteBranches(t *testing.T) {
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "i0", Direction: ir.Input, Width: 1},
			{Name: "i1", Direction: ir.Input, Width: 1},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "drive",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.If{
						Cond: ref("i0"),
						Then: []ir.Stmt{&ir.Assign{Target: "y", Source: ref("i1")}},
						Else: []ir.Stmt{&ir.Assign{Target: "y", Source: lit(1, 0)}},
					},
				},
			},
		},
	})
	if latches := findAll(AnalyzeModule(m), diag.LatchInferred); len(latches) != 0 {
		t.Fatalf("complete if/else must not infer a latch: %v", latches)
	}
}

func TestNoLatchWithDefaultPreassignment(t *testing.T) {
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "i0", Direction: ir.Input, Width: 1},
			{Name: "i1", Direction: ir.Input, Width: 1},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "drive",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.Assign{Target: "y", Source: lit(1, 0)},
					&ir.If{
						Cond: ref("i0"),
						Then: []ir.Stmt{&ir.Assign{Target: "y", Source: ref("i1")}},
					},
				},
			},
		},
	})
	if latches := findAll(AnalyzeModule(m), diag.LatchInferred); len(latches) != 0 {
		t.Fatalf("default assignment before the if covers every path: %v", latches)
	}
}

func TestLatchOnUncoveredCaseWithoutDefault(t *testing.T) {
	allOnes := ir.NewBitVector(2, 0).Not()
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "sel", Direction: ir.Input, Width: 2},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "decode",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.Case{
						Selector: ref("sel"),
						Arms: []ir.CaseArm{
							{Pattern: ir.NewBitVector(2, 0), Mask: allOnes, Body: []ir.Stmt{&ir.Assign{Target: "y", Source: lit(1, 0)}}},
							{Pattern: ir.NewBitVector(2, 1), Mask: allOnes, Body: []ir.Stmt{&ir.Assign{Target: "y", Source: lit(1, 1)}}},
						},
					},
				},
			},
		},
	})
	if latches := findAll(AnalyzeModule(m), diag.LatchInferred); len(latches) != 1 {
		t.Fatalf("uncovered selector values must infer a latch, got %v", latches)
	}
}

func TestNoLatchOnFullyEnumeratedCase(t *testing.T) {
	// Two arms with a one-bit don't-care each cover all four values.
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "sel", Direction: ir.Input, Width: 2},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "decode",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.Case{
						Selector: ref("sel"),
						Arms: []ir.CaseArm{
							{Pattern: ir.NewBitVector(2, 0b00), Mask: ir.NewBitVector(2, 0b10), Body: []ir.Stmt{&ir.Assign{Target: "y", Source: lit(1, 0)}}},
							{Pattern: ir.NewBitVector(2, 0b10), Mask: ir.NewBitVector(2, 0b10), Body: []ir.Stmt{&ir.Assign{Target: "y", Source: lit(1, 1)}}},
						},
					},
				},
			},
		},
	})
	if latches := findAll(AnalyzeModule(m), diag.LatchInferred); len(latches) != 0 {
		t.Fatalf("exhaustive don't-care arms cover the space: %v", latches)
	}
}

func TestAmbiguousCaseOverlap(t *testing.T) {
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "sel", Direction: ir.Input, Width: 4},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "decode",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.Assign{Target: "y", Source: lit(1, 0)},
					&ir.Case{
						Selector: ref("sel"),
						Arms: []ir.CaseArm{
							// 10xx and 1x00 both admit 1000.
							{Pattern: ir.NewBitVector(4, 0b1000), Mask: ir.NewBitVector(4, 0b1100), Body: []ir.Stmt{&ir.Assign{Target: "y", Source: lit(1, 0)}}},
							{Pattern: ir.NewBitVector(4, 0b1000), Mask: ir.NewBitVector(4, 0b1011), Body: []ir.Stmt{&ir.Assign{Target: "y", Source: lit(1, 1)}}},
						},
					},
				},
			},
		},
	})
	overlaps := findAll(AnalyzeModule(m), diag.AmbiguousCaseOverlap)
	if len(overlaps) != 1 {
		t.Fatalf("expected one overlap finding, got %d", len(overlaps))
	}
	if !strings.Contains(overlaps[0].Detail, "arm 0 wins") {
		t.Fatalf("finding must state the winner: %s", overlaps[0].Detail)
	}
}

func TestSensitivityMismatchOnConditionRead(t *testing.T) {
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "clk", Direction: ir.Input, Width: 1},
			{Name: "mode", Direction: ir.Input, Width: 1},
			{Name: "d", Direction: ir.Input, Width: 1},
			{Name: "q", Direction: ir.Output, Width: 1},
		},
		Signals: []*ir.Signal{{Name: "r", Width: 1, Kind: ir.Variable}},
		Assigns: []*ir.ContAssign{{Target: "q", Source: ref("r")}},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "sample",
				Sensitivity: ir.Sensitivity{Edges: []ir.Edge{{Signal: "clk", Polarity: ir.Rising}}},
				Body: []ir.Stmt{
					&ir.If{
						Cond: ref("mode"),
						Then: []ir.Stmt{&ir.Assign{Target: "r", Kind: ir.NonBlocking, Source: ref("d")}},
						Else: []ir.Stmt{&ir.Assign{Target: "r", Kind: ir.NonBlocking, Source: lit(1, 0)}},
					},
				},
			},
		},
	})
	found := findAll(AnalyzeModule(m), diag.SensitivityMismatch)
	if len(found) != 1 || !strings.Contains(found[0].Detail, `"mode"`) {
		t.Fatalf("expected a mismatch naming mode, got %v", found)
	}
}

func TestNoSensitivityMismatchOnDataRead(t *testing.T) {
	// d is read on an assignment right-hand side only; it is sampled at the
	// clock edge and needs no list entry.
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "clk", Direction: ir.Input, Width: 1},
			{Name: "d", Direction: ir.Input, Width: 1},
			{Name: "q", Direction: ir.Output, Width: 1},
		},
		Signals: []*ir.Signal{{Name: "r", Width: 1, Kind: ir.Variable}},
		Assigns: []*ir.ContAssign{{Target: "q", Source: ref("r")}},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "sample",
				Sensitivity: ir.Sensitivity{Edges: []ir.Edge{{Signal: "clk", Polarity: ir.Rising}}},
				Body: []ir.Stmt{
					&ir.Assign{Target: "r", Kind: ir.NonBlocking, Source: ref("d")},
				},
			},
		},
	})
	if found := findAll(AnalyzeModule(m), diag.SensitivityMismatch); len(found) != 0 {
		t.Fatalf("data reads must not be flagged: %v", found)
	}
}

func TestSequentialProcessInfersNoLatch(t *testing.T) {
	m := linkModule(t, &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "clk", Direction: ir.Input, Width: 1},
			{Name: "en", Direction: ir.Input, Width: 1},
			{Name: "d", Direction: ir.Input, Width: 1},
			{Name: "q", Direction: ir.Output, Width: 1},
		},
		Signals: []*ir.Signal{{Name: "r", Width: 1, Kind: ir.Variable}},
		Assigns: []*ir.ContAssign{{Target: "q", Source: ref("r")}},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "sample",
				Sensitivity: ir.Sensitivity{Edges: []ir.Edge{{Signal: "clk", Polarity: ir.Rising}}},
				Body: []ir.Stmt{
					&ir.If{
						Cond: ref("en"),
						Then: []ir.Stmt{&ir.Assign{Target: "r", Kind: ir.NonBlocking, Source: ref("d")}},
					},
				},
			},
		},
	})
	// Holding state across edges is what a register does.
	if latches := findAll(AnalyzeModule(m), diag.LatchInferred); len(latches) != 0 {
		t.Fatalf("sequential processes never infer latches: %v", latches)
	}
}
