package backoff

import (
	"time"
)

// Calculator binds a Strategy to the retry policy's delay parameters.
type Calculator struct {
	strategy   Strategy
	base       time.Duration
	ceiling    time.Duration
	multiplier float64
	jitter     float64
}

// NewCalculator creates a calculator for the given strategy and parameters.
func NewCalculator(strategy Strategy, base, ceiling time.Duration, multiplier, jitter float64) *Calculator {
	return &Calculator{
		strategy:   strategy,
		base:       base,
		ceiling:    ceiling,
		multiplier: multiplier,
		jitter:     jitter,
	}
}

// Fixed returns a calculator that always yields the base delay.
func Fixed(base, ceiling time.Duration) *Calculator {
	return NewCalculator(FixedStrategy{}, base, ceiling, 1, 0)
}

// Exponential returns a calculator doubling the base delay per attempt up to the ceiling.
func Exponential(base, ceiling time.Duration) *Calculator {
	return NewCalculator(ExponentialStrategy{}, base, ceiling, 2, 0)
}

// Calculate returns the delay for the zero-based attempt index.
func (c *Calculator) Calculate(attempt int) time.Duration {
	return c.strategy.Calculate(attempt, c.base, c.ceiling, c.multiplier, c.jitter)
}

// WithJitter returns a copy of the calculator using the given jitter factor.
func (c *Calculator) WithJitter(jitter float64) *Calculator {
	cp := *c
	cp.jitter = clampJitter(jitter)
	return &cp
}

// Ceiling reports the maximum delay the calculator can return.
func (c *Calculator) Ceiling() time.Duration {
	return c.ceiling
}

// Strategy returns the strategy used by this calculator.
func (c *Calculator) Strategy() Strategy {
	return c.strategy
}
