package calibration

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

const (
	// FailurePenalty is assigned to every failed simulation. It exceeds any finite score.
	FailurePenalty = 1e6
	// MaxCurveError caps finite scores.
	MaxCurveError = 1e5
	// ExtrapolationPenalty is scaled by the fraction of measured points outside the simulated range.
	ExtrapolationPenalty = 1.0
)

// ObjectiveType names a discrepancy norm
type ObjectiveType string

const (
	ObjectiveNRMSE  ObjectiveType = "nrmse"
	ObjectiveL2     ObjectiveType = "l2"
	ObjectiveMaxAbs ObjectiveType = "max_abs"
)

// ObjectiveFunction maps a simulation result and the measured record to a scalar error.
// Lower is better and zero is an exact match.
type ObjectiveFunction interface {
	Score(result simulation.Result, measured *models.LoadTestRecord) float64
	Name() string
}

// NewObjectiveFunction creates an objective function for the given norm. An empty name selects nrmse.
func NewObjectiveFunction(objectiveType string) (ObjectiveFunction, error) {
	switch ObjectiveType(objectiveType) {
	case "", ObjectiveNRMSE:
		return &curveObjective{norm: ObjectiveNRMSE, reduce: rootMeanSquare}, nil
	case ObjectiveL2:
		return &curveObjective{norm: ObjectiveL2, reduce: euclidean}, nil
	case ObjectiveMaxAbs:
		return &curveObjective{norm: ObjectiveMaxAbs, reduce: maxAbsolute}, nil
	default:
		return nil, &UnknownObjectiveError{ObjectiveType: objectiveType}
	}
}

type curveObjective struct {
	norm   ObjectiveType
	reduce func(residuals []float64) float64
}

func (o *curveObjective) Name() string {
	return string(o.norm)
}

func (o *curveObjective) Score(result simulation.Result, measured *models.LoadTestRecord) float64 {
	curve, ok := result.Curve()
	if !ok || measured == nil || curve.Len() == 0 {
		return FailurePenalty
	}

	residuals, outside := residualsAt(curve, measured.Settlements(), measured.Loads())
	scale := measured.MaxLoad()
	if scale == 0 {
		scale = 1
	}

	score := o.reduce(residuals) / scale
	if len(residuals) > 0 {
		score += ExtrapolationPenalty * float64(outside) / float64(len(residuals))
	}
	if math.IsNaN(score) {
		return FailurePenalty
	}
	return math.Min(score, MaxCurveError)
}

// residualsAt evaluates sim(s_i) - P_i. Settlements outside the simulated
// range take the nearest end value and are counted in outside.
func residualsAt(curve models.ResponseCurve, settlements, loads []float64) ([]float64, int) {
	xs := curve.Settlements()
	ys := curve.Loads()

	var pl interp.PiecewiseLinear
	fitted := len(xs) >= 2 && pl.Fit(xs, ys) == nil

	residuals := make([]float64, len(settlements))
	outside := 0
	lo, hi := xs[0], xs[len(xs)-1]
	for i, s := range settlements {
		var sim float64
		switch {
		case s < lo:
			sim = ys[0]
			outside++
		case s > hi:
			sim = ys[len(ys)-1]
			outside++
		case !fitted:
			sim = ys[0]
		default:
			sim = pl.Predict(s)
		}
		residuals[i] = sim - loads[i]
	}
	return residuals, outside
}

func rootMeanSquare(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	return floats.Norm(residuals, 2) / math.Sqrt(float64(len(residuals)))
}

func euclidean(residuals []float64) float64 {
	return floats.Norm(residuals, 2)
}

func maxAbsolute(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	return floats.Norm(residuals, math.Inf(1))
}
