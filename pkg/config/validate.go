package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// ValidationError reports the offending field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate performs fail-fast validation. Call Normalize first.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log.level", "must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "text":
	default:
		return invalid("log.format", "must be json or console, got %q", c.Log.Format)
	}

	if err := validateCalibration(&c.Calibration); err != nil {
		return err
	}
	if err := validateParameters(c.Parameters, c.Constraints); err != nil {
		return err
	}
	if err := validateSolver(&c.Solver); err != nil {
		return err
	}
	if err := validateServer(&c.Server); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return invalid("storage.dsn", "required for driver %s", c.Storage.Driver)
		}
	default:
		return invalid("storage.driver", "must be none, sqlite, or postgres, got %q", c.Storage.Driver)
	}
	return nil
}

func validateCalibration(cal *CalibrationConfig) error {
	if cal.PopulationSize < 4 {
		return invalid("calibration.population_size", "must be at least 4, got %d", cal.PopulationSize)
	}
	if !(cal.Mutation > 0 && cal.Mutation <= 2) {
		return invalid("calibration.mutation", "must be in (0, 2], got %g", cal.Mutation)
	}
	if !(cal.Crossover >= 0 && cal.Crossover <= 1) {
		return invalid("calibration.crossover", "must be in [0, 1], got %g", cal.Crossover)
	}
	if cal.Strategy != "rand1bin" && cal.Strategy != "best1bin" {
		return invalid("calibration.strategy", "must be rand1bin or best1bin, got %q", cal.Strategy)
	}
	if cal.MaxGenerations < 1 {
		return invalid("calibration.max_generations", "must be positive, got %d", cal.MaxGenerations)
	}
	if cal.MaxEvaluations < 0 || (cal.MaxEvaluations > 0 && cal.MaxEvaluations < cal.PopulationSize) {
		return invalid("calibration.max_evaluations", "must be 0 or at least the population size, got %d", cal.MaxEvaluations)
	}
	if !(cal.Tolerance >= 0) || math.IsInf(cal.Tolerance, 0) {
		return invalid("calibration.tolerance", "must be finite and non-negative, got %g", cal.Tolerance)
	}
	if cal.Patience < 1 {
		return invalid("calibration.patience", "must be positive, got %d", cal.Patience)
	}
	if cal.Convergence != "spread" && cal.Convergence != "stagnation" {
		return invalid("calibration.convergence", "must be spread or stagnation, got %q", cal.Convergence)
	}
	if cal.Workers < 0 {
		return invalid("calibration.workers", "cannot be negative")
	}
	if cal.PolishEvaluations < 0 {
		return invalid("calibration.polish_evaluations", "cannot be negative")
	}
	switch cal.Objective {
	case "nrmse", "l2", "max_abs":
	default:
		return invalid("calibration.objective", "must be nrmse, l2, or max_abs, got %q", cal.Objective)
	}
	return nil
}

func validateParameters(params []ParameterConfig, constraints []ConstraintConfig) error {
	if len(params) == 0 {
		return invalid("parameters", "at least one parameter must be defined")
	}
	names := make(map[string]bool, len(params))
	for i, p := range params {
		field := fmt.Sprintf("parameters[%d]", i)
		if p.Name == "" {
			return invalid(field+".name", "cannot be empty")
		}
		if names[p.Name] {
			return invalid(field+".name", "duplicate parameter %s", p.Name)
		}
		names[p.Name] = true
		if math.IsNaN(p.Lower) || math.IsNaN(p.Upper) || math.IsInf(p.Lower, 0) || math.IsInf(p.Upper, 0) {
			return invalid(field, "bounds must be finite")
		}
		if p.Lower > p.Upper {
			return invalid(field, "lower bound %g exceeds upper bound %g", p.Lower, p.Upper)
		}
	}
	for i, c := range constraints {
		field := fmt.Sprintf("constraints[%d].less_equal", i)
		if len(c.LessEqual) != 2 {
			return invalid(field, "must name exactly two parameters")
		}
		for _, n := range c.LessEqual {
			if !names[n] {
				return invalid(field, "unknown parameter %s", n)
			}
		}
	}
	return nil
}

func validateSolver(s *SolverConfig) error {
	switch s.Backend {
	case "local":
	case "grpc":
		if s.Address == "" {
			return invalid("solver.address", "required for the grpc backend")
		}
	default:
		return invalid("solver.backend", "must be local or grpc, got %q", s.Backend)
	}
	if s.Timeout < 0 {
		return invalid("solver.timeout", "cannot be negative")
	}
	if s.MaxIterations < 1 {
		return invalid("solver.max_iterations", "must be positive, got %d", s.MaxIterations)
	}
	if s.LoadSteps < 1 {
		return invalid("solver.load_steps", "must be positive, got %d", s.LoadSteps)
	}
	if s.Elements < 1 {
		return invalid("solver.elements", "must be positive, got %d", s.Elements)
	}
	if !(s.Tolerance > 0) {
		return invalid("solver.tolerance", "must be positive, got %g", s.Tolerance)
	}
	if s.BreakerFailures < 0 {
		return invalid("solver.breaker_failures", "cannot be negative")
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.RateLimit < 0 {
		return invalid("server.rate_limit", "cannot be negative")
	}
	if s.RateBurst < 1 {
		return invalid("server.rate_burst", "must be positive, got %d", s.RateBurst)
	}
	if s.MaxConcurrentRuns < 1 {
		return invalid("server.max_concurrent_runs", "must be positive, got %d", s.MaxConcurrentRuns)
	}
	if s.WebhookRetries < 0 {
		return invalid("server.webhook_retries", "cannot be negative")
	}
	if s.MetricsRetention < 0 {
		return invalid("server.metrics_retention", "cannot be negative")
	}
	if s.LimiterIdle < 0 {
		return invalid("server.limiter_idle", "cannot be negative")
	}
	return nil
}
