package backoff

import (
	"math/rand"
	"time"
)

// Strategy is a backoff calculation algorithm.
type Strategy interface {
	// Calculate returns the delay for a 0-based attempt number.
	Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitterStrategy grows the delay geometrically and adds uniform
// jitter up to the jitter fraction of the computed delay.
type ExponentialJitterStrategy struct{}

func (ExponentialJitterStrategy) Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Limit the exponent to avoid overflow.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(initialDelay) * Pow(multiplier, attempt))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > maxDelay {
			delay = maxDelay
		} else {
			delay += extra
		}
	}
	return delay
}

// DecorrelatedJitterStrategy implements AWS-style decorrelated jitter:
// a random delay between the base and min(cap, base*3^attempt).
type DecorrelatedJitterStrategy struct{}

func (DecorrelatedJitterStrategy) Calculate(attempt int, initialDelay, maxDelay time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return initialDelay
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initialDelay)
	upper := base * Pow(3.0, attempt)

	maxF := float64(maxDelay)
	if upper > maxF || upper < 0 {
		upper = maxF
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// Pow is an integer-exponent power without the math import.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
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
