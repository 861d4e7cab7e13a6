package policy

import (
	"time"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

// retryPolicy implements RetryPolicy
type retryPolicy struct {
	enabled    bool
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewRetryPolicy creates a retry policy with the given backoff strategy
func NewRetryPolicy(enabled bool, maxRetries int, backoff utils.BackoffStrategy) RetryPolicy {
	if backoff == nil {
		backoff = utils.NewConstantBackoff(0)
	}
	return &retryPolicy{
		enabled:    enabled,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

func (p *retryPolicy) Enabled() bool {
	return p.enabled
}

func (p *retryPolicy) Name() string {
	return "retry"
}

func (p *retryPolicy) ShouldRetry(attempt int, err error) bool {
	if !p.enabled || err == nil {
		return false
	}
	return attempt < p.maxRetries
}

// GetBackoffDuration returns the wait before attempt (1-indexed); the first attempt never waits.
func (p *retryPolicy) GetBackoffDuration(attempt int) time.Duration {
	if !p.enabled || attempt <= 0 {
		return 0
	}
	return p.backoff.NextDelay(attempt - 1)
}

func (p *retryPolicy) GetMaxRetries() int {
	return p.maxRetries
}
