package simulation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/fem"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/soil"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

type solverFunc func(ctx context.Context, req Request) (models.ResponseCurve, error)

func (f solverFunc) Simulate(ctx context.Context, req Request) (models.ResponseCurve, error) {
	return f(ctx, req)
}

func testCase(t *testing.T) Case {
	t.Helper()
	profile, err := soil.NewProfile([]soil.Layer{{
		Top: 0, Bottom: 13.1,
		ShearModulusTop: 65e6, ShearModulusBottom: 65e6,
		PoissonTop: 0.5, PoissonBottom: 0.5,
		TauFTop: 19e3, TauFBottom: 93e3,
	}})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return Case{
		Pile: soil.Pile{
			Length:         13.1,
			Radius:         0.137,
			Area:           math.Pi*0.137*0.137 - math.Pi*(0.137-9.3e-3)*(0.137-9.3e-3),
			ElasticModulus: 210e9,
		},
		Profile:    profile,
		TargetLoad: 653e3,
	}
}

func goodCurve() models.ResponseCurve {
	c, _ := models.NewResponseCurve([]models.Point{{Settlement: 0, Load: 0}, {Settlement: 1e-3, Load: 100e3}})
	return c
}

func TestAdapterClassifiesFailures(t *testing.T) {
	names := []string{"Rfb"}
	tests := []struct {
		name   string
		solver solverFunc
		want   FailureKind
	}{
		{
			name: "diverged",
			solver: func(context.Context, Request) (models.ResponseCurve, error) {
				return models.ResponseCurve{}, fem.ErrDiverged
			},
			want: FailureDiverged,
		},
		{
			name: "unstable",
			solver: func(context.Context, Request) (models.ResponseCurve, error) {
				return models.ResponseCurve{}, errors.Join(errors.New("step 3"), fem.ErrUnstable)
			},
			want: FailureUnstable,
		},
		{
			name: "panic",
			solver: func(context.Context, Request) (models.ResponseCurve, error) {
				panic("index out of range")
			},
			want: FailureUnstable,
		},
		{
			name: "unavailable",
			solver: func(context.Context, Request) (models.ResponseCurve, error) {
				return models.ResponseCurve{}, ErrUnavailable
			},
			want: FailureUnavailable,
		},
		{
			name: "non monotone output",
			solver: func(context.Context, Request) (models.ResponseCurve, error) {
				return models.ResponseCurve{Points: []models.Point{{Settlement: 1, Load: 1}, {Settlement: 0, Load: 2}}}, nil
			},
			want: FailureInvalidOutput,
		},
		{
			name: "ignores deadline",
			solver: func(context.Context, Request) (models.ResponseCurve, error) {
				time.Sleep(500 * time.Millisecond)
				return goodCurve(), nil
			},
			want: FailureTimedOut,
		},
		{
			name: "honours deadline",
			solver: func(ctx context.Context, _ Request) (models.ResponseCurve, error) {
				<-ctx.Done()
				return models.ResponseCurve{}, ctx.Err()
			},
			want: FailureTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewAdapter(tt.solver, names, 50*time.Millisecond)
			res := adapter.Evaluate(context.Background(), []float64{1}, Case{})
			f, ok := res.Failure()
			if !ok {
				t.Fatalf("expected failure, got success")
			}
			if f.Kind != tt.want {
				t.Fatalf("expected %s, got %s (%s)", tt.want, f.Kind, f.Message)
			}
			if _, ok := res.Curve(); ok {
				t.Fatalf("expected no curve on failure")
			}
		})
	}
}

func TestAdapterCancelledParent(t *testing.T) {
	called := false
	adapter := NewAdapter(solverFunc(func(context.Context, Request) (models.ResponseCurve, error) {
		called = true
		return goodCurve(), nil
	}), []string{"Rfb"}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := adapter.Evaluate(ctx, []float64{1}, Case{})
	if f, ok := res.Failure(); !ok || f.Kind != FailureCancelled {
		t.Fatalf("expected cancelled failure, got %+v", res)
	}
	if called {
		t.Fatal("expected solver not to be called after cancellation")
	}
}

func TestAdapterParameterCountMismatch(t *testing.T) {
	adapter := NewAdapter(solverFunc(func(context.Context, Request) (models.ResponseCurve, error) {
		return goodCurve(), nil
	}), []string{"Rfb", "Rfs"}, 0)
	if !adapter.Evaluate(context.Background(), []float64{1}, Case{}).IsFailure() {
		t.Fatal("expected failure for wrong parameter count")
	}
}

func TestAdapterPassesCopyOfParams(t *testing.T) {
	params := []float64{1, 2}
	adapter := NewAdapter(solverFunc(func(_ context.Context, req Request) (models.ResponseCurve, error) {
		req.Values[0] = 99
		return goodCurve(), nil
	}), []string{"Rfb", "Rfs"}, 0)

	if res := adapter.Evaluate(context.Background(), params, Case{}); res.IsFailure() {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if params[0] != 1 {
		t.Fatal("expected caller's parameter vector to be untouched")
	}
}

func TestAdapterWithLocalSolver(t *testing.T) {
	adapter := NewAdapter(NewLocalSolver(fem.DefaultOptions()), fem.ParamNames, 10*time.Second)
	c := testCase(t)

	res := adapter.Evaluate(context.Background(), []float64{1, 0.01, 0.1, 1}, c)
	curve, ok := res.Curve()
	if !ok {
		f, _ := res.Failure()
		t.Fatalf("expected success, got %s", f)
	}
	last := curve.Points[curve.Len()-1]
	if last.Load != c.TargetLoad {
		t.Fatalf("expected curve to reach %v, got %v", c.TargetLoad, last.Load)
	}

	again := adapter.Evaluate(context.Background(), []float64{1, 0.01, 0.1, 1}, c)
	curve2, _ := again.Curve()
	for i := range curve.Points {
		if curve.Points[i] != curve2.Points[i] {
			t.Fatalf("expected deterministic output, point %d differs", i)
		}
	}
}

func TestAdapterLocalSolverInvalidParams(t *testing.T) {
	adapter := NewAdapter(NewLocalSolver(fem.DefaultOptions()), fem.ParamNames, time.Second)
	res := adapter.Evaluate(context.Background(), []float64{0, 0.01, 0.1, 1}, testCase(t))
	if f, ok := res.Failure(); !ok || f.Kind != FailureUnstable {
		t.Fatalf("expected unstable failure for Rfb=0, got %+v", res)
	}
}
