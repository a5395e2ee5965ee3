package emit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rtlopt/internal/ir"
)

func sampleDesign(t *testing.T) *ir.Design {
	t.Helper()
	child := &ir.Module{
		Name: "inv",
		Ports: []ir.Port{
			{Name: "a", Direction: ir.Input, Width: 1},
			{Name: "y", Direction: ir.Output, Width: 1},
		},
		Assigns: []*ir.ContAssign{
			{Target: "y", Source: &ir.Unary{Op: ir.OpNot, X: &ir.SignalRef{Name: "a"}}},
		},
	}
	top := &ir.Module{
		Name: "top",
		Ports: []ir.Port{
			{Name: "clk", Direction: ir.Input, Width: 1},
			{Name: "d", Direction: ir.Input, Width: 4},
			{Name: "q", Direction: ir.Output, Width: 4},
		},
		Signals: []*ir.Signal{
			{Name: "state", Width: 4, Kind: ir.Variable},
			{Name: "nbit", Width: 1},
		},
		Assigns: []*ir.ContAssign{
			{Target: "q", Source: &ir.SignalRef{Name: "state"}},
		},
		Processes: []*ir.ProcessBlock{
			{
				Name:        "step",
				Sensitivity: ir.Sensitivity{Edges: []ir.Edge{{Signal: "clk", Polarity: ir.Rising}}},
				Body: []ir.Stmt{
					&ir.If{
						Cond: &ir.SignalRef{Name: "nbit"},
						Then: []ir.Stmt{
							&ir.Assign{Target: "state", Kind: ir.NonBlocking, Source: &ir.SignalRef{Name: "d"}},
						},
						Else: []ir.Stmt{
							&ir.Assign{
								Target: "state",
								Kind:   ir.NonBlocking,
								Source: &ir.Binary{Op: ir.OpAdd, X: &ir.SignalRef{Name: "state"}, Y: &ir.Literal{Value: ir.NewBitVector(4, 1)}},
							},
						},
					},
				},
			},
		},
		Instances: []*ir.Instance{
			{
				Name:       "u0",
				ModuleName: "inv",
				Inputs:     []ir.PortBinding{{Port: "a", Source: &ir.Slice{X: &ir.SignalRef{Name: "d"}, High: 0, Low: 0}}},
				Outputs:    []ir.OutputBinding{{Port: "y", Signal: "nbit"}},
			},
		},
	}
	design, err := ir.BuildDesign([]*ir.Module{child, top}, "top", nil)
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	return design
}

const sampleNetlist = `module top(input clk:1, input d:4, output q:4) {
  var state:4
  wire nbit:1
  assign q = state
  process step @(posedge clk) {
    if nbit {
      state <= d
    } else {
      state <= state + 4'h1
    }
  }
  instance u0 of inv {
    .a <- d[0]
    .y -> nbit
  }
}

module inv(input a:1, output y:1) {
  assign y = ~a
}
`

func TestWriteGolden(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(sampleDesign(t), &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if diff := cmp.Diff(sampleNetlist, buf.String()); diff != "" {
		t.Fatalf("netlist mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	design := sampleDesign(t)
	var first, second bytes.Buffer
	if err := Write(design, &first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Write(design.Clone(), &second); err != nil {
		t.Fatalf("Write clone: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatalf("clone must emit byte-identical output")
	}
}

func TestEmitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nl")
	if err := Emit(sampleDesign(t), path); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if diff := cmp.Diff(sampleNetlist, string(data)); diff != "" {
		t.Fatalf("file netlist mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteOrdersByOrdinal(t *testing.T) {
	design := sampleDesign(t)
	top := design.Top
	// Reorder the in-memory slices; emission order must not change.
	top.Signals[0], top.Signals[1] = top.Signals[1], top.Signals[0]
	design.Modules[0], design.Modules[1] = design.Modules[1], design.Modules[0]
	var buf bytes.Buffer
	if err := Write(design, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if diff := cmp.Diff(sampleNetlist, buf.String()); diff != "" {
		t.Fatalf("emission must follow ordinals, not slice order (-want +got):\n%s", diff)
	}
}
