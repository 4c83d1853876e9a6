package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Calculate returns the delay for the zero-based attempt index.
	Calculate(attempt int, base, ceiling time.Duration, multiplier, jitter float64) time.Duration
}

// FixedStrategy waits the base delay before every attempt.
type FixedStrategy struct{}

// Calculate implements Strategy.
func (FixedStrategy) Calculate(attempt int, base, ceiling time.Duration, multiplier, jitter float64) time.Duration {
	return applyJitter(clamp(base, ceiling), ceiling, jitter)
}

// ExponentialStrategy waits base * multiplier^attempt, clamped to the ceiling.
type ExponentialStrategy struct{}

// Calculate implements Strategy.
func (ExponentialStrategy) Calculate(attempt int, base, ceiling time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(base) * pow(multiplier, attempt))
	if delay < 0 {
		delay = ceiling
	}
	return applyJitter(clamp(delay, ceiling), ceiling, jitter)
}

func clamp(d, ceiling time.Duration) time.Duration {
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// applyJitter adds up to jitter*d of random delay, never exceeding the ceiling.
func applyJitter(d, ceiling time.Duration, jitter float64) time.Duration {
	jitter = clampJitter(jitter)
	if jitter == 0 {
		return d
	}
	d += time.Duration(float64(d) * jitter * rand.Float64())
	return clamp(d, ceiling)
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
