package graph

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"rtlopt/internal/diag"
	"rtlopt/internal/ir"
)

func buildTestDesign(t *testing.T, modules ...*ir.Module) *ir.Design {
	t.Helper()
	design, err := ir.BuildDesign(modules, modules[0].Name, nil)
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	return design
}

func TestCombinationalLoopDetected(t *testing.T) {
	m := &ir.Module{
		Name:  "top",
		Ports: []ir.Port{{Name: "y", Direction: ir.Output, Width: 1}},
		Signals: []*ir.Signal{
			{Name: "a", Width: 1},
			{Name: "b", Width: 1},
		},
		Assigns: []*ir.ContAssign{
			{Target: "a", Source: &ir.Unary{Op: ir.OpNot, X: &ir.SignalRef{Name: "b"}}},
			{Target: "b", Source: &ir.SignalRef{Name: "a"}},
			{Target: "y", Source: &ir.SignalRef{Name: "a"}},
		},
	}
	design := buildTestDesign(t, m)
	var buf strings.Builder
	reporter := diag.NewReporter(&buf, "text")
	_, err := Build(m, design, reporter)
	var loopErr *CombinationalLoopError
	if !errors.As(err, &loopErr) {
		t.Fatalf("expected CombinationalLoopError, got %v", err)
	}
	if len(loopErr.Cycle) < 2 {
		t.Fatalf("expected cycle naming both wires, got %v", loopErr.Cycle)
	}
	if !strings.Contains(buf.String(), "combinational-loop") {
		t.Fatalf("expected combinational-loop diagnostic, got %q", buf.String())
	}
}

func TestRegisterFeedbackIsLegal(t *testing.T) {
	m := &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "clk", Direction: ir.Input, Width: 1},
			{Name: "q", Direction: ir.Output, Width: 8},
		},
		Signals: []*ir.Signal{{Name: "q_r", Width: 8, Kind: ir.Variable}},
		Assigns: []*ir.ContAssign{{Target: "q", Source: &ir.SignalRef{Name: "q_r"}}},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "count",
				Sensitivity: ir.Sensitivity{Edges: []ir.Edge{{Signal: "clk", Polarity: ir.Rising}}},
				Body: []ir.Stmt{
					&ir.Assign{
						Target: "q_r",
						Kind:   ir.NonBlocking,
						Source: &ir.Binary{Op: ir.OpAdd, X: &ir.SignalRef{Name: "q_r"}, Y: &ir.Literal{Value: ir.NewBitVector(8, 1)}},
					},
				},
			},
		},
	}
	design := buildTestDesign(t, m)
	g, err := Build(m, design, nil)
	if err != nil {
		t.Fatalf("register feedback must not be a combinational loop: %v", err)
	}
	preds := g.Preds("q_r")
	found := false
	for _, p := range preds {
		if p == "q_r" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected q_r to depend on itself through the register, got %v", preds)
	}
}

func TestMultipleUnconditionalDrivers(t *testing.T) {
	m := &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "a", Direction: ir.Input, Width: 1},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Assigns: []*ir.ContAssign{
			{Target: "y", Source: &ir.SignalRef{Name: "a"}},
			{Target: "y", Source: &ir.Unary{Op: ir.OpNot, X: &ir.SignalRef{Name: "a"}}},
		},
	}
	design := buildTestDesign(t, m)
	_, err := Build(m, design, nil)
	var conflict *MultipleDriverConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected MultipleDriverConflict, got %v", err)
	}
	if conflict.Signal != "y" {
		t.Fatalf("expected conflict on y, got %q", conflict.Signal)
	}
}

func TestMixedDomainWritersConflict(t *testing.T) {
	m := &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "clk", Direction: ir.Input, Width: 1},
			{Name: "d", Direction: ir.Input, Width: 1},
			{Name: "q", Direction: ir.Output, Width: 1},
		},
		Signals: []*ir.Signal{{Name: "r", Width: 1, Kind: ir.Variable}},
		Assigns: []*ir.ContAssign{{Target: "q", Source: &ir.SignalRef{Name: "r"}}},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "seq",
				Sensitivity: ir.Sensitivity{Edges: []ir.Edge{{Signal: "clk", Polarity: ir.Rising}}},
				Body:        []ir.Stmt{&ir.Assign{Target: "r", Kind: ir.NonBlocking, Source: &ir.SignalRef{Name: "d"}}},
			},
			{
				Name:        "comb",
				Sensitivity: ir.Sensitivity{All: true},
				Body:        []ir.Stmt{&ir.Assign{Target: "r", Source: &ir.SignalRef{Name: "d"}}},
			},
		},
	}
	design := buildTestDesign(t, m)
	_, err := Build(m, design, nil)
	var conflict *MultipleDriverConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected domain conflict, got %v", err)
	}
	if conflict.Signal != "r" {
		t.Fatalf("expected conflict on r, got %q", conflict.Signal)
	}
}

func TestIndependentProcessAssignmentsStayIndependent(t *testing.T) {
	m := &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "r", Direction: ir.Input, Width: 1},
			{Name: "out", Direction: ir.Output, Width: 1},
		},
		Signals: []*ir.Signal{
			{Name: "t", Width: 1, Kind: ir.Variable},
			{Name: "p", Width: 1, Kind: ir.Variable},
			{Name: "q", Width: 1},
		},
		Assigns: []*ir.ContAssign{
			{Target: "q", Source: &ir.SignalRef{Name: "p"}},
			{Target: "out", Source: &ir.SignalRef{Name: "t"}},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "comb",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.Assign{Target: "t", Source: &ir.SignalRef{Name: "q"}},
					&ir.Assign{Target: "p", Source: &ir.SignalRef{Name: "r"}},
				},
			},
		},
	}
	design := buildTestDesign(t, m)
	g, err := Build(m, design, nil)
	if err != nil {
		t.Fatalf("acyclic design rejected: %v", err)
	}
	if preds := g.Preds("t"); len(preds) != 1 || preds[0] != "q" {
		t.Fatalf("t must depend only on q, got %v", preds)
	}
	if preds := g.Preds("p"); len(preds) != 1 || preds[0] != "r" {
		t.Fatalf("p must depend only on r, got %v", preds)
	}
}

func TestBranchConditionLoopDetected(t *testing.T) {
	m := &ir.Module{
		Name:  "top",
		Ports: []ir.Port{{Name: "y", Direction: ir.Output, Width: 1}},
		Signals: []*ir.Signal{
			{Name: "x", Width: 1},
			{Name: "g", Width: 1, Kind: ir.Variable},
		},
		Assigns: []*ir.ContAssign{
			{Target: "x", Source: &ir.SignalRef{Name: "g"}},
			{Target: "y", Source: &ir.SignalRef{Name: "g"}},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "gate",
				Sensitivity: ir.Sensitivity{All: true},
				Body: []ir.Stmt{
					&ir.If{
						Cond: &ir.SignalRef{Name: "x"},
						Then: []ir.Stmt{&ir.Assign{Target: "g", Source: &ir.Literal{Value: ir.NewBitVector(1, 1)}}},
						Else: []ir.Stmt{&ir.Assign{Target: "g", Source: &ir.Literal{Value: ir.NewBitVector(1, 0)}}},
					},
				},
			},
		},
	}
	design := buildTestDesign(t, m)
	_, err := Build(m, design, nil)
	var loopErr *CombinationalLoopError
	if !errors.As(err, &loopErr) {
		t.Fatalf("feedback through a branch condition must be a combinational loop, got %v", err)
	}
}

func TestInstanceEdgesAreSequentialBoundaries(t *testing.T) {
	child := &ir.Module{
		Name: "inv",
		Ports: []ir.Port{
			{Name: "a", Direction: ir.Input, Width: 1},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Assigns: []*ir.ContAssign{{Target: "y", Source: &ir.Unary{Op: ir.OpNot, X: &ir.SignalRef{Name: "a"}}}},
	}
	top := &ir.Module{
		Name:    "top",
		Ports:   []ir.Port{{Name: "out", Direction: ir.Output, Width: 1}},
		Signals: []*ir.Signal{{Name: "w", Width: 1}},
		Assigns: []*ir.ContAssign{{Target: "out", Source: &ir.SignalRef{Name: "w"}}},
		Instances: []*ir.Instance{
			{
				Name:       "u0",
				ModuleName: "inv",
				Inputs:     []ir.PortBinding{{Port: "a", Source: &ir.SignalRef{Name: "w"}}},
				Outputs:    []ir.OutputBinding{{Port: "y", Signal: "w"}},
			},
		},
	}
	design := buildTestDesign(t, top, child)
	if _, err := Build(top, design, nil); err != nil {
		t.Fatalf("module-boundary feedback is resolved per module, got %v", err)
	}
}
