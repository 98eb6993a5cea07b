// Package catalog holds the immutable list of step definitions a procedure is
// run from.
//
// A catalog is loaded once per session and never mutated afterwards. The
// orchestrator creates one step record per catalog entry, in the same order,
// and that 1:1 correspondence is the session's central invariant.
//
// Key types:
//   - [Step] is a single step definition (budget, input kind, bounds)
//   - [Catalog] is the validated, ordered list of steps
//   - [InputKind] is the closed set of input requirements
//
// Catalog documents are YAML or JSON (see [Load] and [Parse]):
//
//	name: Power supply acceptance
//	steps:
//	  - id: 1
//	    name: Measure output voltage
//	    budget: 120
//	    input: number
//	    bounds: {min: 11.5, max: 12.5}
//	  - id: 2
//	    name: Visual inspection
//	    budget: 60
//	    input: pass_fail
package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidCatalog is returned when a catalog fails its integrity checks.
// Callers should treat it as fatal for session creation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// InputKind is the input requirement of a step.
type InputKind string

const (
	// InputNone steps need no value; submitting them always passes.
	InputNone InputKind = "none"

	// InputNumber steps take a numeric measurement checked against [Bounds].
	InputNumber InputKind = "number"

	// InputPassFail steps take a pass or fail token.
	InputPassFail InputKind = "pass_fail"
)

// IsValid reports whether k is one of the known input kinds.
func (k InputKind) IsValid() bool {
	switch k {
	case InputNone, InputNumber, InputPassFail:
		return true
	}
	return false
}

// String returns the string representation of the input kind.
func (k InputKind) String() string {
	return string(k)
}

// Bounds are the inclusive limits for a numeric step. A nil limit is open.
type Bounds struct {
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// NewBounds returns closed bounds [lo, hi].
func NewBounds(lo, hi float64) Bounds {
	return Bounds{Min: &lo, Max: &hi}
}

// Contains reports whether v lies within the bounds, limits included.
func (b Bounds) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// String renders the bounds as an interval, e.g. "[0, 10]".
func (b Bounds) String() string {
	lo, hi := "-inf", "+inf"
	if b.Min != nil {
		lo = fmt.Sprintf("%g", *b.Min)
	}
	if b.Max != nil {
		hi = fmt.Sprintf("%g", *b.Max)
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}

// Step is a single step definition.
type Step struct {
	// ID is unique within the catalog and stable across sessions.
	ID int `yaml:"id" json:"id"`

	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Budget is the time allotted to the step, in seconds. Always > 0.
	Budget int `yaml:"budget" json:"budget"`

	// Image is an optional reference to an illustration shown with the step.
	Image string `yaml:"image,omitempty" json:"image,omitempty"`

	// Input is the input requirement. Empty is read as [InputNone].
	Input InputKind `yaml:"input,omitempty" json:"input,omitempty"`

	// Label is the caption of the input field, e.g. "Output voltage (V)".
	Label string `yaml:"label,omitempty" json:"label,omitempty"`

	// Bounds only apply when Input is [InputNumber].
	Bounds Bounds `yaml:"bounds,omitempty" json:"bounds,omitempty"`
}

// RequiresInput reports whether the step needs an operator value.
func (s Step) RequiresInput() bool {
	return s.Input != InputNone
}

// Catalog is an immutable, validated, ordered list of steps.
//
// Create with [New], [Parse] or [Load]. The zero value is an empty catalog
// and is not usable to start a session.
type Catalog struct {
	name  string
	steps []Step
}

// New validates steps and returns a catalog that owns a copy of them.
//
// The checks are defensive: the loader is expected to hand over valid data,
// and any violation here means an upstream bug. All violations wrap
// [ErrInvalidCatalog].
func New(name string, steps []Step) (*Catalog, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidCatalog)
	}

	own := make([]Step, len(steps))
	seen := make(map[int]bool, len(steps))
	for i, s := range steps {
		if s.Input == "" {
			s.Input = InputNone
		}
		if err := validateStep(s); err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrInvalidCatalog, i+1, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: step %d: duplicate id %d", ErrInvalidCatalog, i+1, s.ID)
		}
		seen[s.ID] = true
		own[i] = s
	}

	return &Catalog{name: name, steps: own}, nil
}

func validateStep(s Step) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Budget <= 0 {
		return fmt.Errorf("budget must be > 0, got %d", s.Budget)
	}
	if !s.Input.IsValid() {
		return fmt.Errorf("unknown input kind %q", s.Input)
	}
	if s.Input == InputNumber && s.Bounds.Min != nil && s.Bounds.Max != nil && *s.Bounds.Min >= *s.Bounds.Max {
		return fmt.Errorf("bounds min must be < max, got %s", s.Bounds)
	}
	return nil
}

// Name returns the procedure name, possibly empty.
func (c *Catalog) Name() string {
	return c.name
}

// Len returns the number of steps.
func (c *Catalog) Len() int {
	return len(c.steps)
}

// Step returns the step at index i and whether i is in range.
func (c *Catalog) Step(i int) (Step, bool) {
	if i < 0 || i >= len(c.steps) {
		return Step{}, false
	}
	return c.steps[i], true
}

// Steps returns a copy of all steps in order.
func (c *Catalog) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}
