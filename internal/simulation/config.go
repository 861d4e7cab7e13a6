package simulation

import (
	"fmt"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/fem"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/policy"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
)

// OptionsFromConfig maps solver settings onto finite-element options
func OptionsFromConfig(cfg config.SolverConfig) fem.Options {
	return fem.Options{
		Elements:      cfg.Elements,
		LoadSteps:     cfg.LoadSteps,
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
	}
}

// SolverFromConfig builds the configured backend. The returned close function
// releases remote connections and is never nil.
func SolverFromConfig(cfg config.SolverConfig) (Solver, func() error, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalSolver(OptionsFromConfig(cfg)), func() error { return nil }, nil
	case "grpc":
		breaker := policy.NewCircuitBreakerPolicy(cfg.BreakerFailures > 0, cfg.BreakerFailures, 1, cfg.BreakerReset)
		remote, err := DialRemoteSolver(cfg.Address, breaker)
		if err != nil {
			return nil, nil, err
		}
		return remote, remote.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown solver backend %q", cfg.Backend)
	}
}
