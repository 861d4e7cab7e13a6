package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyCurve       = errors.New("curve has no points")
	ErrNonMonotonic     = errors.New("settlement axis is not strictly increasing")
	ErrNonFiniteSamples = errors.New("curve contains non-finite values")
)

// Point is one (settlement, load) pair. Settlement in metres, load in newtons.
type Point struct {
	Settlement float64 `json:"settlement" yaml:"settlement"`
	Load       float64 `json:"load" yaml:"load"`
}

// ResponseCurve is an ordered load-settlement relationship, measured or simulated.
type ResponseCurve struct {
	Points []Point `json:"points"`
}

// NewResponseCurve copies points and validates the settlement axis.
func NewResponseCurve(points []Point) (ResponseCurve, error) {
	c := ResponseCurve{Points: append([]Point(nil), points...)}
	if err := c.Validate(); err != nil {
		return ResponseCurve{}, err
	}
	return c, nil
}

// Validate checks that the curve is non-empty, finite and strictly increasing in settlement.
func (c ResponseCurve) Validate() error {
	return validatePoints(c.Points)
}

func validatePoints(points []Point) error {
	if len(points) == 0 {
		return ErrEmptyCurve
	}
	for i, p := range points {
		if math.IsNaN(p.Settlement) || math.IsInf(p.Settlement, 0) || math.IsNaN(p.Load) || math.IsInf(p.Load, 0) {
			return fmt.Errorf("%w: point %d", ErrNonFiniteSamples, i)
		}
		if i > 0 && p.Settlement <= points[i-1].Settlement {
			return fmt.Errorf("%w: point %d (%g) follows %g", ErrNonMonotonic, i, p.Settlement, points[i-1].Settlement)
		}
	}
	return nil
}

// Len returns the number of points
func (c ResponseCurve) Len() int {
	return len(c.Points)
}

// Settlements returns the abscissas of the curve
func (c ResponseCurve) Settlements() []float64 {
	return settlements(c.Points)
}

// Loads returns the ordinates of the curve
func (c ResponseCurve) Loads() []float64 {
	return loads(c.Points)
}

// LoadTestRecord is an immutable measured load-settlement record.
type LoadTestRecord struct {
	name   string
	points []Point
}

// NewLoadTestRecord validates and copies the measured points.
func NewLoadTestRecord(name string, points []Point) (*LoadTestRecord, error) {
	if err := validatePoints(points); err != nil {
		return nil, fmt.Errorf("load test %q: %w", name, err)
	}
	return &LoadTestRecord{
		name:   name,
		points: append([]Point(nil), points...),
	}, nil
}

// Name returns the record's name
func (r *LoadTestRecord) Name() string {
	return r.name
}

// Len returns the number of measured points
func (r *LoadTestRecord) Len() int {
	return len(r.points)
}

// Points returns a copy of the measured points
func (r *LoadTestRecord) Points() []Point {
	return append([]Point(nil), r.points...)
}

// Settlements returns the measured settlements
func (r *LoadTestRecord) Settlements() []float64 {
	return settlements(r.points)
}

// Loads returns the measured loads
func (r *LoadTestRecord) Loads() []float64 {
	return loads(r.points)
}

// MaxLoad returns the largest absolute measured load
func (r *LoadTestRecord) MaxLoad() float64 {
	max := 0.0
	for _, p := range r.points {
		max = math.Max(max, math.Abs(p.Load))
	}
	return max
}

// Curve returns the record as a ResponseCurve
func (r *LoadTestRecord) Curve() ResponseCurve {
	return ResponseCurve{Points: r.Points()}
}

type loadTestJSON struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

func (r *LoadTestRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(loadTestJSON{Name: r.name, Points: r.points})
}

func (r *LoadTestRecord) UnmarshalJSON(data []byte) error {
	var raw loadTestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec, err := NewLoadTestRecord(raw.Name, raw.Points)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

func settlements(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Settlement
	}
	return out
}

func loads(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Load
	}
	return out
}
