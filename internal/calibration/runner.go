package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/metrics"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

// Result is the outcome of a calibration run
type Result struct {
	Names       []string           `json:"names"`
	BestParams  []float64          `json:"best_params"`
	Parameters  map[string]float64 `json:"parameters"`
	Fitness     float64            `json:"fitness"`
	Evaluations int                `json:"evaluations"`
	Generations int                `json:"generations"`
	Trace       []float64          `json:"trace"`
	History     []GenerationStats  `json:"history,omitempty"`
	Termination State              `json:"termination"`
	Reason      string             `json:"reason"`
	Seed        int64              `json:"seed"`
	Objective   string             `json:"objective"`
	// BestCurve is the simulated response at BestParams, when it could be recomputed.
	BestCurve  *models.ResponseCurve `json:"best_curve,omitempty"`
	Polish     *PolishOutcome        `json:"polish,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Runner wires a parameter space, a simulation adapter and an objective into a
// differential evolution run against one measured load test.
type Runner struct {
	space     *ParameterSpace
	adapter   *simulation.Adapter
	objective ObjectiveFunction
	settings  Settings

	polish            bool
	polishEvaluations int
	logger            *zap.Logger
	collector         *metrics.Collector
	hook              func(GenerationStats)
}

// NewRunner validates the configuration. All errors wrap ErrConfiguration.
func NewRunner(space *ParameterSpace, adapter *simulation.Adapter, objective ObjectiveFunction, settings Settings) (*Runner, error) {
	if space == nil {
		return nil, fmt.Errorf("%w: nil parameter space", ErrConfiguration)
	}
	if adapter == nil {
		return nil, fmt.Errorf("%w: nil simulation adapter", ErrConfiguration)
	}
	if objective == nil {
		return nil, fmt.Errorf("%w: nil objective function", ErrConfiguration)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	names := adapter.Names()
	if len(names) != space.Dim() {
		return nil, fmt.Errorf("%w: adapter expects %d parameters, space has %d", ErrConfiguration, len(names), space.Dim())
	}
	for i, name := range space.Names() {
		if names[i] != name {
			return nil, fmt.Errorf("%w: parameter %d is %q in the space but %q in the adapter", ErrConfiguration, i, name, names[i])
		}
	}
	return &Runner{
		space:     space,
		adapter:   adapter,
		objective: objective,
		settings:  settings,
		logger:    zap.NewNop(),
	}, nil
}

// WithLogger sets the run logger
func (r *Runner) WithLogger(logger *zap.Logger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithPolish enables Nelder-Mead refinement of the best candidate
func (r *Runner) WithPolish(enabled bool, maxEvaluations int) *Runner {
	r.polish = enabled
	r.polishEvaluations = maxEvaluations
	return r
}

// WithMetrics records evaluation latency and the generation trace into collector
func (r *Runner) WithMetrics(collector *metrics.Collector) *Runner {
	r.collector = collector
	return r
}

// WithGenerationHook registers a callback invoked after every generation
func (r *Runner) WithGenerationHook(hook func(GenerationStats)) *Runner {
	r.hook = hook
	return r
}

// Space returns the parameter space
func (r *Runner) Space() *ParameterSpace {
	return r.space
}

// Run calibrates against record. Converged, budget-exhausted and cancelled
// runs return a nil error; a failed run returns its partial result together
// with an error wrapping ErrOptimizerFailure.
func (r *Runner) Run(ctx context.Context, record *models.LoadTestRecord, c simulation.Case) (*Result, error) {
	if record == nil || record.Len() == 0 {
		return nil, fmt.Errorf("%w: empty load test record", ErrConfiguration)
	}
	if c.TargetLoad <= 0 {
		c.TargetLoad = record.MaxLoad()
	}
	if c.TargetLoad <= 0 {
		return nil, fmt.Errorf("%w: load test %q has no positive load", ErrConfiguration, record.Name())
	}

	started := time.Now()
	if r.collector != nil {
		r.collector.Start()
		defer r.collector.Stop()
	}

	evaluate := r.evaluateFunc(record, c)
	opt, err := NewOptimizer(r.space, r.settings, evaluate)
	if err != nil {
		return nil, err
	}
	opt.WithLogger(r.logger).WithGenerationHook(r.onGeneration)

	logger := r.logger.With(zap.String("load_test", record.Name()))
	logger.Info("calibration started",
		zap.Strings("parameters", r.space.Names()),
		zap.String("objective", r.objective.Name()),
		zap.Float64("target_load", c.TargetLoad))

	outcome, runErr := opt.Run(ctx)
	if outcome == nil {
		return nil, runErr
	}

	result := &Result{
		Names:       r.space.Names(),
		BestParams:  utils.CopyFloats(outcome.Best.Params),
		Fitness:     outcome.Best.Fitness,
		Evaluations: outcome.Evaluations,
		Generations: outcome.Generations,
		Trace:       outcome.Trace,
		History:     outcome.History,
		Termination: outcome.State,
		Reason:      outcome.Reason,
		Seed:        outcome.Seed,
		Objective:   r.objective.Name(),
		StartedAt:   started,
	}

	if runErr != nil {
		result.Parameters = r.space.Named(result.BestParams)
		result.FinishedAt = time.Now()
		logger.Error("calibration failed", zap.Error(runErr), zap.Int("evaluations", result.Evaluations))
		return result, fmt.Errorf("calibrate %q: %w", record.Name(), runErr)
	}

	if budget := r.polishBudget(result.Evaluations); r.polish && budget > 0 && outcome.State != StateCancelled && ctx.Err() == nil {
		polished, err := Polish(ctx, r.space, evaluate, outcome.Best, budget)
		switch {
		case err != nil:
			logger.Warn("polish failed, keeping differential evolution result", zap.Error(err))
		case polished.Improved:
			result.BestParams = utils.CopyFloats(polished.Best.Params)
			result.Fitness = polished.Best.Fitness
		}
		if polished != nil {
			result.Polish = polished
			result.Evaluations += polished.Evaluations
		}
	}
	result.Parameters = r.space.Named(result.BestParams)

	if outcome.State != StateCancelled && ctx.Err() == nil {
		res := r.adapter.Evaluate(ctx, result.BestParams, c)
		if curve, ok := res.Curve(); ok {
			result.BestCurve = &curve
		} else if f, ok := res.Failure(); ok {
			logger.Warn("best candidate could not be re-simulated", zap.String("failure", f.String()))
		}
	}

	result.FinishedAt = time.Now()
	logger.Info("calibration finished",
		zap.String("termination", string(result.Termination)),
		zap.String("reason", result.Reason),
		zap.Float64("fitness", result.Fitness),
		zap.Any("parameters", result.Parameters),
		zap.Int("evaluations", result.Evaluations),
		zap.Duration("elapsed", result.FinishedAt.Sub(started)))
	return result, nil
}

// polishBudget is the number of polish evaluations left after used, capped by
// the evaluation budget when one is set.
func (r *Runner) polishBudget(used int) int {
	budget := r.polishEvaluations
	if budget <= 0 {
		budget = DefaultPolishEvaluations
	}
	if r.settings.MaxEvaluations > 0 {
		budget = utils.Min(budget, utils.Max(0, r.settings.MaxEvaluations-used))
	}
	return budget
}

// evaluateFunc composes the adapter and the objective into a fitness callback.
func (r *Runner) evaluateFunc(record *models.LoadTestRecord, c simulation.Case) EvaluateFunc {
	return func(ctx context.Context, params []float64) Evaluation {
		begin := time.Now()
		res := r.adapter.Evaluate(ctx, params, c)
		score := r.objective.Score(res, record)

		if r.collector != nil {
			kind := ""
			if f, ok := res.Failure(); ok {
				kind = string(f.Kind)
			}
			metrics.RecordEvaluation(r.collector, time.Since(begin), kind, time.Now())
		}
		return Evaluation{Fitness: score, Failed: res.IsFailure()}
	}
}

func (r *Runner) onGeneration(stats GenerationStats) {
	if r.collector != nil {
		metrics.RecordGeneration(r.collector, stats.Generation, stats.BestFitness, stats.StdDev, stats.Failures, stats.Evaluations, time.Now())
	}
	if r.hook != nil {
		r.hook(stats)
	}
}

// IsFatal reports whether err ends a run without a usable result.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrOptimizerFailure)
}
