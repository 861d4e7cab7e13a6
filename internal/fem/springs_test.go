package fem

import (
	"math"
	"testing"
)

func TestHyperbolicSpringTangent(t *testing.T) {
	s := hyperbolicSpring{ke: 5e7, fult: 2e5}
	for _, u := range []float64{-3e-3, 0, 1e-4, 2e-3, 5e-2} {
		f, k := s.response(u)
		const h = 1e-9
		fp, _ := s.response(u + h)
		fm, _ := s.response(u - h)
		numeric := (fp - fm) / (2 * h)
		if math.Abs(numeric-k)/k > 1e-4 {
			t.Fatalf("u=%g: analytic tangent %g, numeric %g", u, k, numeric)
		}
		if math.Abs(f) >= s.fult {
			t.Fatalf("u=%g: force %g should stay below the asymptote %g", u, f, s.fult)
		}
	}

	if f, k := (hyperbolicSpring{ke: 1e6}).response(1); f != 0 || k != 0 {
		t.Fatalf("expected inert spring without friction, got f=%g k=%g", f, k)
	}
}

func TestBilinearSpring(t *testing.T) {
	s := bilinearSpring{k1: 100, k2: 10, yield: 0.5}
	tests := []struct {
		u, force, tangent float64
	}{
		{0.25, 25, 100},
		{0.5, 50, 100},
		{1.5, 60, 10},
		{-1.5, -60, 10},
	}
	for _, tt := range tests {
		f, k := s.response(tt.u)
		if math.Abs(f-tt.force) > 1e-12 || k != tt.tangent {
			t.Errorf("u=%g: expected (%g, %g), got (%g, %g)", tt.u, tt.force, tt.tangent, f, k)
		}
	}
}

func TestNodeSpringsCombineShaftAndTip(t *testing.T) {
	shaft := hyperbolicSpring{ke: 5e7, fult: 2e5}
	tip := bilinearSpring{k1: 100, k2: 10, yield: 0.5}

	fs, ft, k := nodeSprings{shaft: shaft}.response(0.25)
	wantF, wantK := shaft.response(0.25)
	if fs != wantF || ft != 0 || k != wantK {
		t.Fatalf("expected shaft-only response (%g, 0, %g), got (%g, %g, %g)", wantF, wantK, fs, ft, k)
	}

	fs, ft, k = nodeSprings{shaft: shaft, tip: tip}.response(0.25)
	if fs != wantF || ft != 25 || k != wantK+100 {
		t.Fatalf("expected tip to add (25, 100), got (%g, %g, %g)", fs, ft, k)
	}
}

func TestParamsFromVector(t *testing.T) {
	p, err := ParamsFromVector([]string{"Rfb", "rfs"}, []float64{2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := DefaultParams()
	if p.Rfb != 2 || p.Rfs != 3 || p.Sbu != d.Sbu || p.Alpha21 != d.Alpha21 {
		t.Fatalf("unexpected params %+v", p)
	}
	if _, err := ParamsFromVector([]string{"phi"}, []float64{1}); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
	if _, err := ParamsFromVector([]string{"Rfb"}, nil); err == nil {
		t.Fatal("expected error for length mismatch")
	}
	if !IsKnownParam("ALPHA21") || IsKnownParam("phi") {
		t.Fatal("IsKnownParam returned wrong answer")
	}
}
