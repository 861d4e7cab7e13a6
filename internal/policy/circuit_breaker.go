package policy

import (
	"sync"
	"time"
)

// circuitBreakerPolicy implements CircuitBreakerPolicy
type circuitBreakerPolicy struct {
	enabled bool
	// failureThreshold is the number of consecutive failures before opening the circuit
	failureThreshold int
	// successThreshold is the number of successes needed in half-open state to close
	successThreshold int
	// timeout is how long the circuit stays open before transitioning to half-open
	timeout time.Duration
	// circuits tracks circuit state per target
	circuits map[string]*circuitState
	mu       sync.Mutex
}

// circuitState tracks the state of a circuit breaker for one target
type circuitState struct {
	state           CircuitState
	failureCount    int
	successCount    int
	lastStateChange time.Time
}

// NewCircuitBreakerPolicy creates a new circuit breaker policy
func NewCircuitBreakerPolicy(enabled bool, failureThreshold, successThreshold int, timeout time.Duration) CircuitBreakerPolicy {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &circuitBreakerPolicy{
		enabled:          enabled,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		circuits:         make(map[string]*circuitState),
	}
}

func (p *circuitBreakerPolicy) Enabled() bool {
	return p.enabled
}

func (p *circuitBreakerPolicy) Name() string {
	return "circuit_breaker"
}

// circuit returns the state for target, creating a closed circuit on first use. Caller holds p.mu.
func (p *circuitBreakerPolicy) circuit(target string, now time.Time) *circuitState {
	c, ok := p.circuits[target]
	if !ok {
		c = &circuitState{state: CircuitStateClosed, lastStateChange: now}
		p.circuits[target] = c
	}
	return c
}

// advance moves an open circuit to half-open once the timeout has elapsed. Caller holds p.mu.
func (p *circuitBreakerPolicy) advance(c *circuitState, now time.Time) {
	if c.state == CircuitStateOpen && now.Sub(c.lastStateChange) >= p.timeout {
		c.state = CircuitStateHalfOpen
		c.successCount = 0
		c.lastStateChange = now
	}
}

func (p *circuitBreakerPolicy) AllowRequest(target string, now time.Time) bool {
	if !p.enabled {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.circuit(target, now)
	p.advance(c, now)
	return c.state != CircuitStateOpen
}

func (p *circuitBreakerPolicy) RecordSuccess(target string, now time.Time) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.circuit(target, now)
	switch c.state {
	case CircuitStateHalfOpen:
		c.successCount++
		if c.successCount >= p.successThreshold {
			c.state = CircuitStateClosed
			c.failureCount = 0
			c.lastStateChange = now
		}
	case CircuitStateClosed:
		c.failureCount = 0
	}
}

func (p *circuitBreakerPolicy) RecordFailure(target string, now time.Time) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.circuit(target, now)
	c.failureCount++
	switch c.state {
	case CircuitStateHalfOpen:
		// Any failure in half-open state immediately opens the circuit
		c.state = CircuitStateOpen
		c.successCount = 0
		c.lastStateChange = now
	case CircuitStateClosed:
		if c.failureCount >= p.failureThreshold {
			c.state = CircuitStateOpen
			c.lastStateChange = now
		}
	}
}

func (p *circuitBreakerPolicy) CheckAndGetState(target string, now time.Time) CircuitState {
	if !p.enabled {
		return CircuitStateClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.circuits[target]
	if !ok {
		return CircuitStateClosed
	}
	p.advance(c, now)
	return c.state
}
