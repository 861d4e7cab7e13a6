package utils

import (
	"math"
	"testing"
)

func TestMinMax(t *testing.T) {
	if Min(3, 5) != 3 || Min(-1, -2) != -2 {
		t.Fatal("Min returned wrong value")
	}
	if Max(3, 5) != 5 || Max(-1, -2) != -1 {
		t.Fatal("Max returned wrong value")
	}
}

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5.5, 0, 10, 5.5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{0.1, 0.1, 0.1, 0.1},
	}
	for _, tt := range tests {
		if got := ClampFloat64(tt.value, tt.min, tt.max); got != tt.expected {
			t.Errorf("ClampFloat64(%v, %v, %v): expected %v, got %v", tt.value, tt.min, tt.max, tt.expected, got)
		}
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(1.5) {
		t.Fatal("expected 1.5 to be finite")
	}
	if IsFinite(math.NaN()) || IsFinite(math.Inf(1)) || IsFinite(math.Inf(-1)) {
		t.Fatal("expected NaN and Inf to be non-finite")
	}
	if AllFinite([]float64{1, math.NaN()}) {
		t.Fatal("expected AllFinite to reject NaN")
	}
	if !AllFinite(nil) {
		t.Fatal("expected empty slice to be finite")
	}
}

func TestLerpAndRound(t *testing.T) {
	if got := Lerp(19e3, 93e3, 0.5); got != 56e3 {
		t.Fatalf("expected 56000, got %v", got)
	}
	if got := Round(3.14159, 2); got != 3.14 {
		t.Fatalf("expected 3.14, got %v", got)
	}
}

func TestCopyFloats(t *testing.T) {
	src := []float64{1, 2, 3}
	dst := CopyFloats(src)
	dst[0] = 99
	if src[0] != 1 {
		t.Fatal("expected copy to be independent")
	}
	if CopyFloats(nil) != nil {
		t.Fatal("expected nil copy for nil input")
	}
}
