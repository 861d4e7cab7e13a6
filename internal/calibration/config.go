package calibration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/fem"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
)

// SettingsFromConfig maps the calibration section onto optimizer settings
func SettingsFromConfig(cfg config.CalibrationConfig) Settings {
	return Settings{
		PopulationSize: cfg.PopulationSize,
		Mutation:       cfg.Mutation,
		Crossover:      cfg.Crossover,
		Strategy:       cfg.Strategy,
		MaxGenerations: cfg.MaxGenerations,
		MaxEvaluations: cfg.MaxEvaluations,
		Tolerance:      cfg.Tolerance,
		Patience:       cfg.Patience,
		Convergence:    cfg.Convergence,
		Workers:        cfg.Workers,
		Seed:           cfg.Seed,
	}
}

// SpaceFromConfig builds the parameter space. Every parameter must be one the
// finite-element model understands.
func SpaceFromConfig(params []config.ParameterConfig, constraints []config.ConstraintConfig) (*ParameterSpace, error) {
	out := make([]Parameter, len(params))
	for i, p := range params {
		if !fem.IsKnownParam(p.Name) {
			return nil, fmt.Errorf("%w: unknown model parameter %q (known: %v)", ErrInvalidSpace, p.Name, fem.ParamNames)
		}
		out[i] = Parameter{Name: p.Name, Lower: p.Lower, Upper: p.Upper, Description: p.Description}
	}
	var rel []LessEqual
	for _, c := range constraints {
		if len(c.LessEqual) != 2 {
			return nil, fmt.Errorf("%w: constraint must name two parameters, got %v", ErrInvalidSpace, c.LessEqual)
		}
		rel = append(rel, LessEqual{Lower: c.LessEqual[0], Upper: c.LessEqual[1]})
	}
	return NewParameterSpace(out, rel...)
}

// NewRunnerFromConfig assembles a runner for solver from a validated configuration.
func NewRunnerFromConfig(cfg *config.Config, solver simulation.Solver, logger *zap.Logger) (*Runner, error) {
	if cfg == nil || solver == nil {
		return nil, fmt.Errorf("%w: config and solver are required", ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	space, err := SpaceFromConfig(cfg.Parameters, cfg.Constraints)
	if err != nil {
		return nil, err
	}
	objective, err := NewObjectiveFunction(cfg.Calibration.Objective)
	if err != nil {
		return nil, err
	}
	adapter := simulation.NewAdapter(solver, space.Names(), cfg.Solver.Timeout).WithLogger(logger)
	runner, err := NewRunner(space, adapter, objective, SettingsFromConfig(cfg.Calibration))
	if err != nil {
		return nil, err
	}
	return runner.WithLogger(logger).WithPolish(cfg.Calibration.Polish, cfg.Calibration.PolishEvaluations), nil
}
