package calibration

import (
	"fmt"
	"math"
	"strings"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

// maxSampleAttempts bounds rejection sampling against inter-parameter constraints.
const maxSampleAttempts = 1000

// Parameter is one decision variable with its closed bounds.
type Parameter struct {
	Name        string  `json:"name" yaml:"name" mapstructure:"name"`
	Lower       float64 `json:"lower" yaml:"lower" mapstructure:"lower"`
	Upper       float64 `json:"upper" yaml:"upper" mapstructure:"upper"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
}

// LessEqual requires the parameter named Lower to not exceed the one named Upper.
type LessEqual struct {
	Lower string `json:"lower" yaml:"lower" mapstructure:"lower"`
	Upper string `json:"upper" yaml:"upper" mapstructure:"upper"`
}

func (c LessEqual) String() string {
	return c.Lower + " <= " + c.Upper
}

type resolvedConstraint struct {
	lower, upper int
}

// ParameterSpace is the immutable feasible region explored by the optimizer.
type ParameterSpace struct {
	params      []Parameter
	constraints []resolvedConstraint
	raw         []LessEqual
}

// NewParameterSpace validates bounds and resolves constraints by name.
func NewParameterSpace(params []Parameter, constraints ...LessEqual) (*ParameterSpace, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: no parameters", ErrInvalidSpace)
	}
	index := make(map[string]int, len(params))
	for i, p := range params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: parameter %d has no name", ErrInvalidSpace, i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidSpace, name)
		}
		if !utils.IsFinite(p.Lower) || !utils.IsFinite(p.Upper) {
			return nil, fmt.Errorf("%w: parameter %q has non-finite bounds", ErrInvalidSpace, name)
		}
		if p.Lower > p.Upper {
			return nil, fmt.Errorf("%w: parameter %q lower bound %g exceeds upper bound %g", ErrInvalidSpace, name, p.Lower, p.Upper)
		}
		index[name] = i
	}

	space := &ParameterSpace{
		params: append([]Parameter(nil), params...),
		raw:    append([]LessEqual(nil), constraints...),
	}
	for _, c := range constraints {
		lo, ok := index[c.Lower]
		if !ok {
			return nil, fmt.Errorf("%w: constraint %s names unknown parameter %q", ErrInvalidSpace, c, c.Lower)
		}
		hi, ok := index[c.Upper]
		if !ok {
			return nil, fmt.Errorf("%w: constraint %s names unknown parameter %q", ErrInvalidSpace, c, c.Upper)
		}
		if params[lo].Lower > params[hi].Upper {
			return nil, fmt.Errorf("%w: constraint %s cannot be satisfied within bounds", ErrInvalidSpace, c)
		}
		space.constraints = append(space.constraints, resolvedConstraint{lower: lo, upper: hi})
	}
	return space, nil
}

// Dim returns the number of parameters
func (s *ParameterSpace) Dim() int {
	return len(s.params)
}

// Names returns the parameter names in vector order
func (s *ParameterSpace) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

// Parameters returns a copy of the parameter definitions
func (s *ParameterSpace) Parameters() []Parameter {
	return append([]Parameter(nil), s.params...)
}

// Constraints returns a copy of the inter-parameter constraints
func (s *ParameterSpace) Constraints() []LessEqual {
	return append([]LessEqual(nil), s.raw...)
}

// Sample draws every component independently and uniformly within its bounds.
// With constraints present it retries until a feasible draw is found or the
// attempt budget is spent, in which case the last draw is returned.
func (s *ParameterSpace) Sample(rng *utils.RandSource) []float64 {
	v := make([]float64, len(s.params))
	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		for i, p := range s.params {
			v[i] = rng.UniformFloat64(p.Lower, p.Upper)
		}
		if s.satisfiesConstraints(v) {
			break
		}
	}
	return v
}

// Clip projects v component-wise onto the bounding box. The result is a new slice.
func (s *ParameterSpace) Clip(v []float64) []float64 {
	out := make([]float64, len(s.params))
	for i, p := range s.params {
		x := math.NaN()
		if i < len(v) {
			x = v[i]
		}
		if math.IsNaN(x) {
			x = (p.Lower + p.Upper) / 2
		}
		out[i] = utils.ClampFloat64(x, p.Lower, p.Upper)
	}
	return out
}

// IsFeasible reports whether v lies in the box and satisfies every constraint.
func (s *ParameterSpace) IsFeasible(v []float64) bool {
	if len(v) != len(s.params) {
		return false
	}
	for i, p := range s.params {
		if math.IsNaN(v[i]) || v[i] < p.Lower || v[i] > p.Upper {
			return false
		}
	}
	return s.satisfiesConstraints(v)
}

func (s *ParameterSpace) satisfiesConstraints(v []float64) bool {
	for _, c := range s.constraints {
		if v[c.lower] > v[c.upper] {
			return false
		}
	}
	return true
}

// Named pairs a vector with parameter names.
func (s *ParameterSpace) Named(v []float64) map[string]float64 {
	out := make(map[string]float64, len(s.params))
	for i, p := range s.params {
		if i < len(v) {
			out[p.Name] = v[i]
		}
	}
	return out
}
