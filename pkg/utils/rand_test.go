package utils

import (
	"testing"
)

func TestNewRandSourceSeed(t *testing.T) {
	rng := NewRandSource(12345)
	if rng.Seed() != 12345 {
		t.Fatalf("expected seed 12345, got %d", rng.Seed())
	}

	clock := NewRandSource(0)
	if clock.Seed() == 0 {
		t.Fatal("expected zero seed to be replaced by a clock seed")
	}
}

func TestRandSourceReproducible(t *testing.T) {
	a := NewRandSource(42)
	b := NewRandSource(42)
	for i := 0; i < 50; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("draw %d differs for identical seeds", i)
		}
	}
}

func TestUniformFloat64(t *testing.T) {
	rng := NewRandSource(1)
	for i := 0; i < 1000; i++ {
		v := rng.UniformFloat64(0.1, 10)
		if v < 0.1 || v >= 10 {
			t.Fatalf("value %v outside [0.1, 10)", v)
		}
	}
}

func TestDistinctExcluding(t *testing.T) {
	rng := NewRandSource(3)
	for i := 0; i < 200; i++ {
		exclude := i % 5
		idx := rng.DistinctExcluding(5, 3, exclude)
		if len(idx) != 3 {
			t.Fatalf("expected 3 indices, got %d", len(idx))
		}
		seen := map[int]bool{}
		for _, v := range idx {
			if v == exclude {
				t.Fatalf("index %d equals excluded %d", v, exclude)
			}
			if v < 0 || v >= 5 {
				t.Fatalf("index %d out of range", v)
			}
			if seen[v] {
				t.Fatalf("duplicate index %d in %v", v, idx)
			}
			seen[v] = true
		}
	}
}

func TestDistinctExcludingPanicsWhenTooSmall(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRandSource(1).DistinctExcluding(3, 3, 0)
}
