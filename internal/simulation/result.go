// Package simulation is the boundary between the calibration engine and the
// finite-element solver. Every call yields a Result: either a response curve
// or a typed failure, never both and never a panic.
package simulation

import (
	"fmt"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// FailureKind classifies why a simulation produced no curve.
type FailureKind string

const (
	FailureDiverged      FailureKind = "diverged"
	FailureUnstable      FailureKind = "unstable"
	FailureTimedOut      FailureKind = "timed_out"
	FailureCancelled     FailureKind = "cancelled"
	FailureUnavailable   FailureKind = "unavailable"
	FailureInvalidOutput FailureKind = "invalid_output"
)

// Failure describes a simulation that produced no usable curve.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

func (f Failure) String() string {
	if f.Message == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is a tagged union of a ResponseCurve and a Failure.
type Result struct {
	curve   models.ResponseCurve
	failure *Failure
}

// Success wraps a simulated curve.
func Success(curve models.ResponseCurve) Result {
	return Result{curve: curve}
}

// Failed builds a failed result.
func Failed(kind FailureKind, format string, args ...any) Result {
	return Result{failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// IsFailure reports whether the simulation failed
func (r Result) IsFailure() bool {
	return r.failure != nil
}

// Curve returns the simulated curve and true, or false for a failed result.
func (r Result) Curve() (models.ResponseCurve, bool) {
	if r.failure != nil {
		return models.ResponseCurve{}, false
	}
	return r.curve, true
}

// Failure returns the failure and true, or false for a successful result.
func (r Result) Failure() (Failure, bool) {
	if r.failure == nil {
		return Failure{}, false
	}
	return *r.failure, true
}
