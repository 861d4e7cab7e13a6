package simulation

import (
	"context"
	"errors"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/fem"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/soil"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// ErrUnavailable means a remote solver could not be reached.
var ErrUnavailable = errors.New("solver unavailable")

// Case is the fixed physical setting of a calibration: geometry, soil and the head load to ramp to.
type Case struct {
	Pile       soil.Pile
	Profile    *soil.Profile
	TargetLoad float64
}

// Request is a single simulation call.
type Request struct {
	Names  []string
	Values []float64
	Case   Case
}

// Solver turns parameters into a load-settlement curve.
type Solver interface {
	Simulate(ctx context.Context, req Request) (models.ResponseCurve, error)
}

// LocalSolver runs the in-process finite-element model.
type LocalSolver struct {
	opts fem.Options
}

// NewLocalSolver creates a solver with the given discretisation and iteration settings.
func NewLocalSolver(opts fem.Options) *LocalSolver {
	return &LocalSolver{opts: opts}
}

// Simulate meshes the pile and solves the head-load ramp.
func (s *LocalSolver) Simulate(ctx context.Context, req Request) (models.ResponseCurve, error) {
	params, err := fem.ParamsFromVector(req.Names, req.Values)
	if err != nil {
		return models.ResponseCurve{}, err
	}
	model, err := fem.NewModel(req.Case.Pile, req.Case.Profile, s.opts)
	if err != nil {
		return models.ResponseCurve{}, err
	}
	sol, err := model.Solve(ctx, params, req.Case.TargetLoad)
	if err != nil {
		return models.ResponseCurve{}, err
	}
	return sol.Curve, nil
}
