package backoff

import "time"

// Calculator computes backoff delays through a configurable strategy.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a calculator with the given strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Calculate delegates to the configured strategy. attempt is 0-based.
func (c *Calculator) Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialDelay, maxDelay, multiplier, jitter)
}

// GetExponentialJitterCalculator returns a calculator using exponential
// backoff with uniform jitter, the common default.
func GetExponentialJitterCalculator() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}

// GetDecorrelatedJitterCalculator returns a calculator using AWS-style
// decorrelated jitter.
func GetDecorrelatedJitterCalculator() *Calculator {
	return NewCalculator(DecorrelatedJitterStrategy{})
}
