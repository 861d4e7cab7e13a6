package policy

import (
	"testing"
	"time"
)

func TestNewCircuitBreakerPolicy(t *testing.T) {
	policy := NewCircuitBreakerPolicy(true, 3, 2, 5*time.Second)
	if !policy.Enabled() {
		t.Fatalf("expected policy to be enabled")
	}
	if policy.Name() != "circuit_breaker" {
		t.Fatalf("expected name to be 'circuit_breaker', got %s", policy.Name())
	}
}

func TestCircuitBreakerPolicyOpensAfterThreshold(t *testing.T) {
	policy := NewCircuitBreakerPolicy(true, 3, 2, 5*time.Second)
	now := time.Now()

	if !policy.AllowRequest("solver:9090", now) {
		t.Fatalf("expected request to be allowed in closed state")
	}
	policy.RecordFailure("solver:9090", now)
	policy.RecordFailure("solver:9090", now)
	if state := policy.CheckAndGetState("solver:9090", now); state != CircuitStateClosed {
		t.Fatalf("expected closed after 2 failures, got %s", state)
	}
	policy.RecordFailure("solver:9090", now)
	if state := policy.CheckAndGetState("solver:9090", now); state != CircuitStateOpen {
		t.Fatalf("expected open after 3 failures, got %s", state)
	}
	if policy.AllowRequest("solver:9090", now) {
		t.Fatalf("expected request to be rejected in open state")
	}
	if !policy.AllowRequest("other:9090", now) {
		t.Fatalf("expected independent target to stay closed")
	}
}

func TestCircuitBreakerPolicySuccessResetsFailures(t *testing.T) {
	policy := NewCircuitBreakerPolicy(true, 2, 1, time.Second)
	now := time.Now()

	policy.RecordFailure("s", now)
	policy.RecordSuccess("s", now)
	policy.RecordFailure("s", now)
	if state := policy.CheckAndGetState("s", now); state != CircuitStateClosed {
		t.Fatalf("expected success to reset the failure count, got %s", state)
	}
}

func TestCircuitBreakerPolicyRecovery(t *testing.T) {
	policy := NewCircuitBreakerPolicy(true, 1, 2, 100*time.Millisecond)
	now := time.Now()

	policy.RecordFailure("s", now)
	later := now.Add(150 * time.Millisecond)
	if state := policy.CheckAndGetState("s", later); state != CircuitStateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", state)
	}
	if !policy.AllowRequest("s", later) {
		t.Fatalf("expected request to be allowed in half-open state")
	}

	policy.RecordSuccess("s", later)
	if state := policy.CheckAndGetState("s", later); state != CircuitStateHalfOpen {
		t.Fatalf("expected still half-open after one success, got %s", state)
	}
	policy.RecordSuccess("s", later)
	if state := policy.CheckAndGetState("s", later); state != CircuitStateClosed {
		t.Fatalf("expected closed after two successes, got %s", state)
	}
}

func TestCircuitBreakerPolicyHalfOpenFailureReopens(t *testing.T) {
	policy := NewCircuitBreakerPolicy(true, 1, 2, 100*time.Millisecond)
	now := time.Now()

	policy.RecordFailure("s", now)
	later := now.Add(150 * time.Millisecond)
	policy.AllowRequest("s", later)
	policy.RecordFailure("s", later)
	if state := policy.CheckAndGetState("s", later); state != CircuitStateOpen {
		t.Fatalf("expected open after half-open failure, got %s", state)
	}
}

func TestCircuitBreakerPolicyDisabled(t *testing.T) {
	policy := NewCircuitBreakerPolicy(false, 1, 1, time.Second)
	now := time.Now()
	policy.RecordFailure("s", now)
	if !policy.AllowRequest("s", now) {
		t.Fatalf("expected disabled breaker to allow requests")
	}
}
