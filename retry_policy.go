package tautan

import (
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/tautan/internal/backoff"
)

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
type RetryPolicy interface {
	ShouldRetry(err *APIError) bool
	// NextDelay returns the wait before retry number attempt+1 (attempt is zero-based).
	NextDelay(attempt int, err *APIError) time.Duration
}

// MaxRateLimitDelay caps RATE_LIMIT backoff and Retry-After hints regardless
// of the configured maximum retry delay.
const MaxRateLimitDelay = 30 * time.Second

// DefaultRetryPolicy retries NETWORK, TIMEOUT, SERVER and RATE_LIMIT failures.
// Ordinary kinds wait the base delay; RATE_LIMIT backs off exponentially.
type DefaultRetryPolicy struct {
	fixed       *internalbackoff.Calculator
	exponential *internalbackoff.Calculator
	hintCeiling time.Duration
}

// NewDefaultRetryPolicy creates the default policy for the given base delay and
// ceiling. The ceiling bounds ordinary delays; RATE_LIMIT backoff and
// Retry-After hints never exceed MaxRateLimitDelay.
func NewDefaultRetryPolicy(base, ceiling time.Duration) *DefaultRetryPolicy {
	limit := MaxRateLimitDelay
	if ceiling > 0 && ceiling < limit {
		limit = ceiling
	}
	return &DefaultRetryPolicy{
		fixed:       internalbackoff.Fixed(base, ceiling),
		exponential: internalbackoff.Exponential(base, limit),
		hintCeiling: limit,
	}
}

// WithJitter returns a copy of the policy applying jitter to every delay.
func (p *DefaultRetryPolicy) WithJitter(jitter float64) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		fixed:       p.fixed.WithJitter(jitter),
		exponential: p.exponential.WithJitter(jitter),
		hintCeiling: p.hintCeiling,
	}
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(err *APIError) bool {
	return err != nil && err.Kind.Retryable()
}

// NextDelay implements the RetryPolicy interface. A Retry-After hint larger than
// the computed delay wins, clamped to MaxRateLimitDelay or the lower ceiling.
func (p *DefaultRetryPolicy) NextDelay(attempt int, err *APIError) time.Duration {
	calc := p.fixed
	if err != nil && err.Kind == KindRateLimit {
		calc = p.exponential
	}

	delay := calc.Calculate(attempt)
	if err != nil && err.RetryAfter > delay {
		delay = err.RetryAfter
		if delay > p.hintCeiling {
			delay = p.hintCeiling
		}
	}
	return delay
}
