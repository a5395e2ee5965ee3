package diag

import (
	"encoding/json"
	"fmt"
	"io"
)

// Severity ranks a diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Category classifies a diagnostic. Fatal categories abort the pipeline at
// the pass that raised them; warning categories accompany optimized output.
type Category int

const (
	CombinationalLoop Category = iota
	MultipleDriver
	HierarchyCycle
	NonConvergence
	LatchInferred
	AmbiguousCaseOverlap
	SensitivityMismatch
	OrderDependentAssignment
)

var categoryNames = map[Category]string{
	CombinationalLoop:        "combinational-loop",
	MultipleDriver:           "multiple-driver",
	HierarchyCycle:           "hierarchy-cycle",
	NonConvergence:           "non-convergence",
	LatchInferred:            "latch-inferred",
	AmbiguousCaseOverlap:     "ambiguous-case-overlap",
	SensitivityMismatch:      "sensitivity-mismatch",
	OrderDependentAssignment: "order-dependent-assignment",
}

// String returns the stable category name used in text and JSON output.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// Diagnostic is a single finding attached to a signal or process location.
type Diagnostic struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Module   string   `json:"module"`
	Loc      string   `json:"loc"`
	Detail   string   `json:"detail"`
}

func (d Diagnostic) String() string {
	loc := d.Module
	if d.Loc != "" {
		loc = d.Module + ":" + d.Loc
	}
	return fmt.Sprintf("%s[%s] %s: %s", d.Severity, d.Category, loc, d.Detail)
}

// MarshalJSON renders enum fields as their stable names.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
		Module   string `json:"module"`
		Loc      string `json:"loc"`
		Detail   string `json:"detail"`
	}{d.Category.String(), d.Severity.String(), d.Module, d.Loc, d.Detail})
}

// Reporter accumulates diagnostics and renders them as text or JSON. In text
// mode findings are written as they arrive; JSON output is produced by Flush
// so the result is a single well-formed array.
type Reporter struct {
	w      io.Writer
	format string
	strict bool
	items  []Diagnostic
}

// NewReporter returns a reporter writing to w in the given format
// ("text" or "json").
func NewReporter(w io.Writer, format string) *Reporter {
	return &Reporter{w: w, format: format}
}

// SetStrict promotes subsequently reported warnings to errors.
func (r *Reporter) SetStrict(strict bool) {
	r.strict = strict
}

// Report records d, applying strict-mode promotion.
func (r *Reporter) Report(d Diagnostic) {
	if r.strict && d.Severity == Warning {
		d.Severity = Error
	}
	r.items = append(r.items, d)
	if r.format != "json" && r.w != nil {
		fmt.Fprintln(r.w, d.String())
	}
}

// Warningf records a warning-severity diagnostic.
func (r *Reporter) Warningf(cat Category, module, loc, format string, args ...any) {
	r.Report(Diagnostic{
		Category: cat,
		Severity: Warning,
		Module:   module,
		Loc:      loc,
		Detail:   fmt.Sprintf(format, args...),
	})
}

// Errorf records an error-severity diagnostic.
func (r *Reporter) Errorf(cat Category, module, loc, format string, args ...any) {
	r.Report(Diagnostic{
		Category: cat,
		Severity: Error,
		Module:   module,
		Loc:      loc,
		Detail:   fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (r *Reporter) HasErrors() bool {
	for _, d := range r.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// All returns every recorded diagnostic in report order.
func (r *Reporter) All() []Diagnostic {
	return r.items
}

// Count returns the number of recorded diagnostics.
func (r *Reporter) Count() int {
	return len(r.items)
}

// Flush writes the JSON array when the reporter was created with the "json"
// format. Text output is already written incrementally.
func (r *Reporter) Flush() error {
	if r.format != "json" || r.w == nil {
		return nil
	}
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.items)
}
