package passes

import (
	"github.com/pkg/errors"

	"rtlopt/internal/ir"
)

// Pass is a single design transformation or analysis.
type Pass interface {
	Name() string
	Run(design *ir.Design) error
}

// Manager runs passes in registration order, stopping at the first failure.
type Manager struct {
	passes []Pass
}

// NewManager returns an empty pass manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers a pass.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Run executes every registered pass against the design.
func (m *Manager) Run(design *ir.Design) error {
	if design == nil {
		return errors.New("pass manager requires a non-nil design")
	}
	for _, p := range m.passes {
		if err := p.Run(design); err != nil {
			return errors.Wrapf(err, "pass %s", p.Name())
		}
	}
	return nil
}
