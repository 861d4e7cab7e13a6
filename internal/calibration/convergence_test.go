package calibration

import "testing"

func statsWithSpread(spreads ...float64) []GenerationStats {
	out := make([]GenerationStats, len(spreads))
	for i, s := range spreads {
		out[i] = GenerationStats{Generation: i, StdDev: s}
	}
	return out
}

func statsWithBest(bests ...float64) []GenerationStats {
	out := make([]GenerationStats, len(bests))
	for i, b := range bests {
		out[i] = GenerationStats{Generation: i, BestFitness: b}
	}
	return out
}

func TestSpreadStrategy(t *testing.T) {
	s := NewSpreadStrategy(&ConvergenceConfig{Tolerance: 1e-3, Patience: 2})
	if s.Name() != "spread" {
		t.Fatalf("expected name spread, got %s", s.Name())
	}

	if ok, _ := s.CheckConvergence(nil); ok {
		t.Fatalf("expected no convergence on empty history")
	}
	if ok, _ := s.CheckConvergence(statsWithSpread(1, 1e-4)); ok {
		t.Fatalf("expected patience of 2 to require two tight generations")
	}
	ok, reason := s.CheckConvergence(statsWithSpread(1, 1e-4, 5e-4))
	if !ok {
		t.Fatalf("expected convergence after two tight generations")
	}
	if reason == "" {
		t.Fatalf("expected a convergence reason")
	}
}

func TestSpreadStrategyDefaultPatience(t *testing.T) {
	s := NewSpreadStrategy(&ConvergenceConfig{Tolerance: 1e-3})
	if ok, _ := s.CheckConvergence(statsWithSpread(1e-4)); !ok {
		t.Fatalf("expected a single tight generation to converge with default patience")
	}
}

func TestStagnationStrategy(t *testing.T) {
	s := NewStagnationStrategy(&ConvergenceConfig{Tolerance: 0.01, Patience: 3})
	if ok, _ := s.CheckConvergence(statsWithBest(1, 0.5, 0.499, 0.498)); ok {
		t.Fatalf("expected the 0.5 drop to keep the run going")
	}
	if ok, _ := s.CheckConvergence(statsWithBest(1, 0.5, 0.499, 0.498, 0.497)); !ok {
		t.Fatalf("expected convergence after three small improvements")
	}
	if ok, _ := s.CheckConvergence(statsWithBest(1, 1)); ok {
		t.Fatalf("expected insufficient history to not converge")
	}
}

func TestNewConvergenceStrategy(t *testing.T) {
	for _, name := range []string{"", "spread", "stagnation"} {
		if _, err := NewConvergenceStrategy(name, nil); err != nil {
			t.Fatalf("NewConvergenceStrategy(%q): %v", name, err)
		}
	}
	if _, err := NewConvergenceStrategy("plateau", nil); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
