// Package policy holds the resilience policies guarding calls that leave the
// process: a circuit breaker for remote solvers, per-client rate limiting for
// the API and retries for outbound notifications.
package policy

import (
	"time"
)

// Policy represents a generic policy interface
type Policy interface {
	// Enabled returns whether the policy is enabled
	Enabled() bool
	// Name returns the policy name for identification
	Name() string
}

// RetryPolicy handles retry logic for failed outbound calls
type RetryPolicy interface {
	Policy
	// ShouldRetry determines if a call should be retried
	ShouldRetry(attempt int, err error) bool
	// GetBackoffDuration calculates the backoff duration before the given attempt
	GetBackoffDuration(attempt int) time.Duration
	// GetMaxRetries returns the maximum number of retries allowed
	GetMaxRetries() int
}

// CircuitBreakerPolicy handles circuit breaker logic per target
type CircuitBreakerPolicy interface {
	Policy
	// AllowRequest checks if a request should be allowed (circuit not open)
	AllowRequest(target string, now time.Time) bool
	// RecordSuccess records a successful request
	RecordSuccess(target string, now time.Time)
	// RecordFailure records a failed request
	RecordFailure(target string, now time.Time)
	// CheckAndGetState returns the current circuit breaker state, applying any timeout transition
	CheckAndGetState(target string, now time.Time) CircuitState
}

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"   // Normal operation
	CircuitStateOpen     CircuitState = "open"     // Failing, rejecting requests
	CircuitStateHalfOpen CircuitState = "halfopen" // Testing if target recovered
)
