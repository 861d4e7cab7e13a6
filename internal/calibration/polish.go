package calibration

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

// DefaultPolishEvaluations bounds the local refinement after the global search.
const DefaultPolishEvaluations = 200

// PolishOutcome reports the local refinement of the best candidate
type PolishOutcome struct {
	Start       Candidate `json:"start"`
	Best        Candidate `json:"best"`
	Improved    bool      `json:"improved"`
	Evaluations int       `json:"evaluations"`
	Status      string    `json:"status"`
}

// Polish refines start with Nelder-Mead. Points outside the box are clipped
// before evaluation and penalised by their squared distance to the box.
// At most maxEvaluations candidates are scored, and the best feasible clipped
// point replaces start only when it is strictly better.
func Polish(ctx context.Context, space *ParameterSpace, evaluate EvaluateFunc, start Candidate, maxEvaluations int) (*PolishOutcome, error) {
	if space == nil || evaluate == nil {
		return nil, fmt.Errorf("%w: polish needs a space and an evaluate function", ErrConfiguration)
	}
	if len(start.Params) != space.Dim() {
		return nil, fmt.Errorf("%w: start vector has %d components, space has %d", ErrConfiguration, len(start.Params), space.Dim())
	}
	if maxEvaluations <= 0 {
		maxEvaluations = DefaultPolishEvaluations
	}

	out := &PolishOutcome{Start: start.clone(), Best: start.clone()}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if ctx.Err() != nil || out.Evaluations >= maxEvaluations {
				return FailurePenalty
			}
			out.Evaluations++
			clipped := space.Clip(x)
			if !space.IsFeasible(clipped) {
				return FailurePenalty
			}
			ev := evaluate(ctx, clipped)
			if ev.Failed || !utils.IsFinite(ev.Fitness) {
				return FailurePenalty
			}
			// The score belongs to the clipped point, which is what we keep.
			if ev.Fitness < out.Best.Fitness {
				out.Best = Candidate{Params: clipped, Fitness: ev.Fitness}
				out.Improved = true
			}
			return ev.Fitness + boxDistance(x, clipped)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvaluations,
		Concurrent:      1,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 50,
		},
	}

	res, err := optimize.Minimize(problem, utils.CopyFloats(start.Params), settings, &optimize.NelderMead{})
	if res != nil {
		out.Status = res.Status.String()
	}
	if err != nil {
		return out, fmt.Errorf("polish: %w", err)
	}
	return out, nil
}

func boxDistance(x, clipped []float64) float64 {
	var d float64
	for i := range x {
		diff := x[i] - clipped[i]
		d += diff * diff
	}
	if math.IsNaN(d) {
		return FailurePenalty
	}
	return d
}
