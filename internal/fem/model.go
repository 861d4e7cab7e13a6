// Package fem solves the axial response of a single pile discretised into
// truss elements, with nonlinear shaft springs at every node and a bilinear
// base spring at the tip.
package fem

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/soil"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

var (
	// ErrDiverged means Newton iterations hit the cap without reaching equilibrium.
	ErrDiverged = errors.New("solver diverged")
	// ErrUnstable means the tangent lost positive definiteness or the state became non-finite.
	ErrUnstable = errors.New("solver numerically unstable")
	// ErrInvalidModel means the geometry cannot be meshed.
	ErrInvalidModel = errors.New("invalid pile model")
)

// Options controls discretisation and the nonlinear solve.
type Options struct {
	Elements      int     `json:"elements"`
	LoadSteps     int     `json:"load_steps"`
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
}

// DefaultOptions returns the solver settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		Elements:      40,
		LoadSteps:     20,
		MaxIterations: 50,
		Tolerance:     1e-6,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Elements <= 0 {
		o.Elements = d.Elements
	}
	if o.LoadSteps <= 0 {
		o.LoadSteps = d.LoadSteps
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	return o
}

// Model is a meshed pile in a soil profile. It is immutable and safe for concurrent Solve calls.
type Model struct {
	pile    soil.Pile
	profile *soil.Profile
	opts    Options

	depths   []float64
	trib     []float64
	axialK   float64
	rm       float64
	tipK1Raw float64
}

// NewModel meshes the pile into opts.Elements truss elements.
func NewModel(pile soil.Pile, profile *soil.Profile, opts Options) (*Model, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: soil profile is required", ErrInvalidModel)
	}
	if err := pile.Validate(profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	opts = opts.withDefaults()

	rm := profile.InfluenceRadius(pile.Length)
	if rm <= pile.Radius {
		return nil, fmt.Errorf("%w: influence radius %g does not exceed pile radius %g", ErrInvalidModel, rm, pile.Radius)
	}

	n := opts.Elements + 1
	h := pile.Length / float64(opts.Elements)
	depths := make([]float64, n)
	trib := make([]float64, n)
	for i := range depths {
		depths[i] = float64(i) * h
		trib[i] = h
	}
	trib[0], trib[n-1] = h/2, h/2

	gTip := profile.ShearModulus(pile.Length)
	nuTip := profile.PoissonRatio(pile.Length)

	return &Model{
		pile:     pile,
		profile:  profile,
		opts:     opts,
		depths:   depths,
		trib:     trib,
		axialK:   pile.AxialStiffness() / h,
		rm:       rm,
		tipK1Raw: 4 * gTip / (math.Pi * pile.Radius * (1 - nuTip)) * pile.TipArea(),
	}, nil
}

// Options returns the effective solver options
func (m *Model) Options() Options {
	return m.opts
}

// Depths returns the node depths
func (m *Model) Depths() []float64 {
	return append([]float64(nil), m.depths...)
}

// Solution is the converged response to a head load ramp.
type Solution struct {
	Curve         models.ResponseCurve `json:"curve"`
	Depths        []float64            `json:"depths"`
	Displacements []float64            `json:"displacements"`
	ShaftLoad     float64              `json:"shaft_load"`
	TipLoad       float64              `json:"tip_load"`
	Iterations    int                  `json:"iterations"`
}

func (m *Model) springs(p Params) []nodeSprings {
	n := len(m.depths)
	out := make([]nodeSprings, n)
	r := m.pile.Radius
	logTerm := r * math.Log(m.rm/r)
	for i, z := range m.depths {
		surface := m.pile.Perimeter() * m.trib[i]
		out[i].shaft = hyperbolicSpring{
			ke:   m.profile.ShearModulus(z) / logTerm * surface,
			fult: m.profile.TauF(z) / p.Rfs * surface,
		}
	}
	k1 := m.tipK1Raw / p.Rfb
	out[n-1].tip = bilinearSpring{k1: k1, k2: p.Alpha21 * k1, yield: p.Sbu}
	return out
}

// Solve ramps the head load from zero to load in equal steps and returns the
// head settlement at each converged step.
func (m *Model) Solve(ctx context.Context, p Params, load float64) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !(load > 0) || math.IsInf(load, 0) {
		return nil, fmt.Errorf("%w: head load must be positive, got %g", ErrInvalidModel, load)
	}

	springs := m.springs(p)
	n := len(m.depths)
	u := make([]float64, n)
	points := make([]models.Point, 0, m.opts.LoadSteps+1)
	points = append(points, models.Point{})

	total := 0
	for step := 1; step <= m.opts.LoadSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target := load * float64(step) / float64(m.opts.LoadSteps)
		iters, err := m.equilibrate(ctx, springs, u, target)
		total += iters
		if err != nil {
			return nil, fmt.Errorf("load step %d/%d: %w", step, m.opts.LoadSteps, err)
		}
		points = append(points, models.Point{Settlement: u[0], Load: target})
	}

	curve, err := models.NewResponseCurve(points)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnstable, err)
	}

	sol := &Solution{
		Curve:         curve,
		Depths:        m.Depths(),
		Displacements: u,
		Iterations:    total,
	}
	for i, s := range springs {
		fs, ft, _ := s.response(u[i])
		sol.ShaftLoad += fs
		sol.TipLoad += ft
	}
	return sol, nil
}

// equilibrate runs Newton-Raphson on u in place until the residual falls below tolerance.
func (m *Model) equilibrate(ctx context.Context, springs []nodeSprings, u []float64, target float64) (int, error) {
	n := len(u)
	residual := make([]float64, n)
	du := mat.NewVecDense(n, nil)
	limit := m.opts.Tolerance * math.Max(math.Abs(target), 1)

	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return iter, err
		}
		tangent := m.assemble(springs, u, residual)
		residual[0] += target

		norm := floats.Norm(residual, 2)
		if math.IsNaN(norm) || math.IsInf(norm, 0) {
			return iter, fmt.Errorf("%w: non-finite residual", ErrUnstable)
		}
		if norm <= limit {
			return iter, nil
		}
		if iter >= m.opts.MaxIterations {
			return iter, fmt.Errorf("%w: residual %.3e after %d iterations", ErrDiverged, norm, iter)
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(tangent); !ok {
			return iter, fmt.Errorf("%w: tangent stiffness not positive definite", ErrUnstable)
		}
		if err := chol.SolveVecTo(du, mat.NewVecDense(n, residual)); err != nil {
			return iter, fmt.Errorf("%w: %v", ErrUnstable, err)
		}
		for i := range u {
			u[i] += du.AtVec(i)
		}
		if !utils.AllFinite(u) {
			return iter, fmt.Errorf("%w: non-finite displacement", ErrUnstable)
		}
	}
}

// assemble builds the tangent stiffness and writes the negated internal force into residual.
func (m *Model) assemble(springs []nodeSprings, u, residual []float64) *mat.SymDense {
	n := len(u)
	data := make([]float64, n*n)
	for i := range residual {
		residual[i] = 0
	}

	k := m.axialK
	for e := 0; e < n-1; e++ {
		f := k * (u[e] - u[e+1])
		residual[e] -= f
		residual[e+1] += f
		data[e*n+e] += k
		data[(e+1)*n+e+1] += k
		data[e*n+e+1] -= k
		data[(e+1)*n+e] -= k
	}
	for i, s := range springs {
		fs, ft, kt := s.response(u[i])
		residual[i] -= fs + ft
		data[i*n+i] += kt
	}
	return mat.NewSymDense(n, data)
}
