package calibration

import (
	"errors"
	"testing"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
)

func TestSpaceFromConfigDefaults(t *testing.T) {
	cfg := config.Default()
	space, err := SpaceFromConfig(cfg.Parameters, cfg.Constraints)
	if err != nil {
		t.Fatalf("failed to build space: %v", err)
	}
	names := space.Names()
	if len(names) != 4 || names[0] != "Rfb" || names[3] != "Rfs" {
		t.Fatalf("unexpected parameter order: %v", names)
	}
}

func TestSpaceFromConfigRejectsUnknownParameter(t *testing.T) {
	_, err := SpaceFromConfig([]config.ParameterConfig{{Name: "friction_angle", Lower: 20, Upper: 40}}, nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestNewRunnerFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Constraints = []config.ConstraintConfig{{LessEqual: []string{"Rfb", "Rfs"}}}
	runner, err := NewRunnerFromConfig(cfg, simulation.NewLocalSolver(simulation.OptionsFromConfig(cfg.Solver)), nil)
	if err != nil {
		t.Fatalf("failed to build runner: %v", err)
	}
	if runner.Space().Dim() != 4 || len(runner.Space().Constraints()) != 1 {
		t.Fatalf("unexpected space: dim %d, constraints %v", runner.Space().Dim(), runner.Space().Constraints())
	}

	cfg.Calibration.Objective = "mape"
	if _, err := NewRunnerFromConfig(cfg, simulation.NewLocalSolver(simulation.OptionsFromConfig(cfg.Solver)), nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected unknown objective to be a configuration error, got %v", err)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Default()
	s := SettingsFromConfig(cfg.Calibration)
	if err := s.Validate(); err != nil {
		t.Fatalf("expected default settings to validate, got %v", err)
	}
	if s.PopulationSize != 15 || s.Mutation != 0.8 || s.Crossover != 0.9 || s.MaxGenerations != 1000 {
		t.Fatalf("unexpected settings: %+v", s)
	}
}
