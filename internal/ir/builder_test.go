package ir

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"rtlopt/internal/diag"
)

func TestBuildDesignDeclaresPortSignals(t *testing.T) {
	m := &Module{
		Name: "top",
		Ports: []Port{
			{Name: "a", Direction: Input, Width: 8},
			{Name: "y", Direction: Output, Width: 8},
		},
		Assigns: []*ContAssign{
			{Target: "y", Source: &SignalRef{Name: "a"}},
		},
	}
	design, err := BuildDesign([]*Module{m}, "top", nil)
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	if design.Top == nil || design.Top.Name != "top" {
		t.Fatalf("expected top module, got %+v", design.Top)
	}
	if sig := m.Signal("a"); sig == nil || sig.Width != 8 {
		t.Fatalf("port a not usable as signal: %+v", sig)
	}
	if m.Assigns[0].Ordinal <= m.Signal("y").Ordinal {
		t.Fatalf("assign ordinal %d must follow signal ordinals", m.Assigns[0].Ordinal)
	}
}

func TestBuildDesignRejectsUndeclaredSignal(t *testing.T) {
	m := &Module{
		Name:  "top",
		Ports: []Port{{Name: "y", Direction: Output, Width: 1}},
		Assigns: []*ContAssign{
			{Target: "y", Source: &SignalRef{Name: "ghost"}},
		},
	}
	_, err := BuildDesign([]*Module{m}, "top", nil)
	if err == nil || !strings.Contains(err.Error(), `"ghost"`) {
		t.Fatalf("expected undeclared-signal error, got %v", err)
	}
}

func TestBuildDesignRejectsDuplicateModules(t *testing.T) {
	a := &Module{Name: "m", Ports: []Port{{Name: "y", Direction: Output, Width: 1}}}
	b := &Module{Name: "m", Ports: []Port{{Name: "y", Direction: Output, Width: 1}}}
	if _, err := BuildDesign([]*Module{a, b}, "m", nil); err == nil {
		t.Fatalf("expected duplicate-module error")
	}
}

func TestBuildDesignRejectsDuplicateDeclarations(t *testing.T) {
	cases := []struct {
		name string
		mod  *Module
		want string
	}{
		{
			name: "signal",
			mod: &Module{
				Name:  "top",
				Ports: []Port{{Name: "y", Direction: Output, Width: 1}},
				Signals: []*Signal{
					{Name: "s", Width: 1},
					{Name: "s", Width: 2},
				},
			},
			want: `signal "s" declared twice`,
		},
		{
			name: "port",
			mod: &Module{
				Name: "top",
				Ports: []Port{
					{Name: "y", Direction: Output, Width: 1},
					{Name: "y", Direction: Input, Width: 1},
				},
			},
			want: `port "y" declared twice`,
		},
		{
			name: "instance",
			mod: &Module{
				Name:  "top",
				Ports: []Port{{Name: "y", Direction: Output, Width: 1}},
				Instances: []*Instance{
					{Name: "u", ModuleName: "top"},
					{Name: "u", ModuleName: "top"},
				},
			},
			want: `instance "u" declared twice`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildDesign([]*Module{tc.mod}, "top", nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestBuildDesignRejectsWidthOutOfRange(t *testing.T) {
	m := &Module{
		Name:  "top",
		Ports: []Port{{Name: "y", Direction: Output, Width: MaxWidth + 1}},
	}
	if _, err := BuildDesign([]*Module{m}, "top", nil); err == nil {
		t.Fatalf("expected width-range error")
	}
}

func TestBuildDesignHierarchyCycle(t *testing.T) {
	parent := &Module{
		Name:  "a",
		Ports: []Port{{Name: "y", Direction: Output, Width: 1}},
		Instances: []*Instance{
			{Name: "u", ModuleName: "b", Outputs: []OutputBinding{{Port: "y", Signal: "y"}}},
		},
	}
	child := &Module{
		Name:  "b",
		Ports: []Port{{Name: "y", Direction: Output, Width: 1}},
		Instances: []*Instance{
			{Name: "u", ModuleName: "a", Outputs: []OutputBinding{{Port: "y", Signal: "y"}}},
		},
	}
	var buf strings.Builder
	reporter := diag.NewReporter(&buf, "text")
	_, err := BuildDesign([]*Module{parent, child}, "a", reporter)
	var cycleErr *HierarchyCycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected HierarchyCycleError, got %v", err)
	}
	if len(cycleErr.Path) < 3 {
		t.Fatalf("expected cycle path through both modules, got %v", cycleErr.Path)
	}
	if !strings.Contains(buf.String(), "hierarchy-cycle") {
		t.Fatalf("expected hierarchy-cycle diagnostic, got %q", buf.String())
	}
}

func TestBuildDesignRejectsUnknownInstanceModule(t *testing.T) {
	m := &Module{
		Name:  "top",
		Ports: []Port{{Name: "y", Direction: Output, Width: 1}},
		Instances: []*Instance{
			{Name: "u", ModuleName: "missing", Outputs: []OutputBinding{{Port: "q", Signal: "y"}}},
		},
	}
	_, err := BuildDesign([]*Module{m}, "top", nil)
	if err == nil || !strings.Contains(err.Error(), `"missing"`) {
		t.Fatalf("expected unknown-module error, got %v", err)
	}
}
