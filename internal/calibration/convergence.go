package calibration

import (
	"fmt"
)

// ConvergenceStrategy defines how to detect convergence from the generation history
type ConvergenceStrategy interface {
	// CheckConvergence reports whether the run has converged and why
	CheckConvergence(history []GenerationStats) (bool, string)
	// Name returns the name of the convergence strategy
	Name() string
}

const (
	ConvergenceSpread     = "spread"
	ConvergenceStagnation = "stagnation"
)

// ConvergenceConfig holds configuration for convergence detection
type ConvergenceConfig struct {
	// Tolerance is the threshold on fitness spread or best-so-far improvement
	Tolerance float64
	// Patience is the number of consecutive generations the condition must hold
	Patience int
}

// DefaultConvergenceConfig returns a default convergence configuration
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		Tolerance: 1e-6,
		Patience:  1,
	}
}

// NewConvergenceStrategy creates a strategy by name. An empty name selects spread.
func NewConvergenceStrategy(name string, config *ConvergenceConfig) (ConvergenceStrategy, error) {
	switch name {
	case "", ConvergenceSpread:
		return NewSpreadStrategy(config), nil
	case ConvergenceStagnation:
		return NewStagnationStrategy(config), nil
	default:
		return nil, &SettingError{Field: "convergence", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}
}

func patience(config *ConvergenceConfig) int {
	if config.Patience < 1 {
		return 1
	}
	return config.Patience
}

// SpreadStrategy converges once the sample standard deviation of population
// fitness stays at or below the tolerance.
type SpreadStrategy struct {
	config *ConvergenceConfig
}

// NewSpreadStrategy creates a new spread convergence strategy
func NewSpreadStrategy(config *ConvergenceConfig) *SpreadStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &SpreadStrategy{config: config}
}

func (s *SpreadStrategy) Name() string {
	return ConvergenceSpread
}

func (s *SpreadStrategy) CheckConvergence(history []GenerationStats) (bool, string) {
	n := patience(s.config)
	if len(history) < n {
		return false, ""
	}
	for _, g := range history[len(history)-n:] {
		if g.StdDev > s.config.Tolerance {
			return false, ""
		}
	}
	last := history[len(history)-1]
	return true, fmt.Sprintf("fitness spread %.3g <= %.3g for %d generation(s)", last.StdDev, s.config.Tolerance, n)
}

// StagnationStrategy converges when the best-so-far fitness improves by less
// than the tolerance in each of the last Patience generations.
type StagnationStrategy struct {
	config *ConvergenceConfig
}

// NewStagnationStrategy creates a new stagnation convergence strategy
func NewStagnationStrategy(config *ConvergenceConfig) *StagnationStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &StagnationStrategy{config: config}
}

func (s *StagnationStrategy) Name() string {
	return ConvergenceStagnation
}

func (s *StagnationStrategy) CheckConvergence(history []GenerationStats) (bool, string) {
	n := patience(s.config)
	if len(history) < n+1 {
		return false, ""
	}
	for i := len(history) - n; i < len(history); i++ {
		if history[i-1].BestFitness-history[i].BestFitness >= s.config.Tolerance {
			return false, ""
		}
	}
	return true, fmt.Sprintf("best fitness improved by less than %.3g for %d generation(s)", s.config.Tolerance, n)
}
