package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/fem"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

// Adapter wraps a Solver so that every call ends in a Result within a bounded time.
type Adapter struct {
	solver  Solver
	names   []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewAdapter creates an adapter for parameter vectors ordered like names.
// A zero timeout disables the per-call deadline.
func NewAdapter(solver Solver, names []string, timeout time.Duration) *Adapter {
	return &Adapter{
		solver:  solver,
		names:   append([]string(nil), names...),
		timeout: timeout,
		logger:  zap.NewNop(),
	}
}

// WithLogger sets the logger used for failure diagnostics
func (a *Adapter) WithLogger(logger *zap.Logger) *Adapter {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Names returns the parameter names in vector order
func (a *Adapter) Names() []string {
	return append([]string(nil), a.names...)
}

type solveOutcome struct {
	curve models.ResponseCurve
	err   error
}

// Evaluate runs one simulation. It never panics and never returns a partial curve.
func (a *Adapter) Evaluate(ctx context.Context, params []float64, c Case) Result {
	if err := ctx.Err(); err != nil {
		return Failed(FailureCancelled, "%v", err)
	}
	if len(params) != len(a.names) {
		return Failed(FailureInvalidOutput, "expected %d parameters, got %d", len(a.names), len(params))
	}

	callCtx := ctx
	cancel := func() {}
	if a.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
	}
	defer cancel()

	req := Request{Names: a.names, Values: utils.CopyFloats(params), Case: c}
	done := make(chan solveOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- solveOutcome{err: fmt.Errorf("%w: solver panic: %v", fem.ErrUnstable, r)}
			}
		}()
		curve, err := a.solver.Simulate(callCtx, req)
		done <- solveOutcome{curve: curve, err: err}
	}()

	var out solveOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		// The solver ignored its context; abandon it.
		out = solveOutcome{err: callCtx.Err()}
	}

	if out.err != nil {
		res := a.classify(ctx, out.err)
		f, _ := res.Failure()
		a.logger.Debug("simulation failed",
			zap.Float64s("params", params),
			zap.String("kind", string(f.Kind)),
			zap.String("reason", f.Message))
		return res
	}
	if err := out.curve.Validate(); err != nil {
		return Failed(FailureInvalidOutput, "%v", err)
	}
	return Success(out.curve)
}

// classify maps solver errors onto failure kinds. parent is the caller's context,
// used to tell an external cancellation from the adapter's own deadline.
func (a *Adapter) classify(parent context.Context, err error) Result {
	switch {
	case errors.Is(err, fem.ErrDiverged):
		return Failed(FailureDiverged, "%v", err)
	case errors.Is(err, fem.ErrUnstable):
		return Failed(FailureUnstable, "%v", err)
	case errors.Is(err, ErrUnavailable):
		return Failed(FailureUnavailable, "%v", err)
	case parent.Err() != nil:
		return Failed(FailureCancelled, "%v", parent.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return Failed(FailureTimedOut, "exceeded %s", a.timeout)
	default:
		return Failed(FailureUnstable, "%v", err)
	}
}
