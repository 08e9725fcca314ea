package fluent

import (
	"sync/atomic"
	"time"
)

// RetryCoordinator aggregates one or more retry configs into a single
// retry/backoff decision. Policies target disjoint failure classes
// (timeouts, 5xx, 429) and compose without masking each other:
//
//   - ShouldRetry is the logical OR across all configs.
//   - Delay is the maximum among configs whose predicate matched the actual
//     failure (the most conservative policy wins).
//   - MaxRetries is the maximum across configs.
//
// A coordinator is safe for concurrent use once configured.
type RetryCoordinator struct {
	configs []RetryConfig
	budget  *RetryBudget
}

// NewRetryCoordinator creates a coordinator over the given configs. Nil
// configs are skipped.
func NewRetryCoordinator(configs ...RetryConfig) *RetryCoordinator {
	c := &RetryCoordinator{}
	for _, cfg := range configs {
		c.AddConfig(cfg)
	}
	return c
}

// AddConfig appends a retry config. Intended for setup, not mid-flight.
func (c *RetryCoordinator) AddConfig(cfg RetryConfig) {
	if cfg != nil {
		c.configs = append(c.configs, cfg)
	}
}

// WithBudget caps total retries across all requests per sliding window.
func (c *RetryCoordinator) WithBudget(budget *RetryBudget) *RetryCoordinator {
	c.budget = budget
	return c
}

// MaxRetries returns the maximum MaxRetries across configs.
func (c *RetryCoordinator) MaxRetries() int {
	max := 0
	for _, cfg := range c.configs {
		if n := cfg.MaxRetries(); n > max {
			max = n
		}
	}
	return max
}

// ShouldRetry reports whether any config wants to retry the failure.
func (c *RetryCoordinator) ShouldRetry(statusCode int, isTimeout bool) bool {
	for _, cfg := range c.configs {
		if cfg.ShouldRetry(statusCode, isTimeout) {
			return true
		}
	}
	return false
}

// Delay returns the maximum delay among configs whose predicate matched the
// actual failure class.
func (c *RetryCoordinator) Delay(attempt, statusCode int, isTimeout bool) time.Duration {
	return c.DelayWithRetryAfter(attempt, statusCode, isTimeout, 0)
}

// retryAfterDriven marks configs whose matched delay the server's
// Retry-After header replaces when one is present.
type retryAfterDriven interface {
	usesRetryAfter() bool
}

// DelayWithRetryAfter is Delay with a parsed Retry-After value. A positive
// retryAfter replaces the delay of header-driven configs (the 429 policy's
// fallback applies only when no header arrived); the maximum across the
// other matching configs still applies.
func (c *RetryCoordinator) DelayWithRetryAfter(attempt, statusCode int, isTimeout bool, retryAfter time.Duration) time.Duration {
	var max time.Duration
	for _, cfg := range c.configs {
		if !cfg.ShouldRetry(statusCode, isTimeout) {
			continue
		}
		d := cfg.Delay(attempt, statusCode)
		if retryAfter > 0 {
			if driven, ok := cfg.(retryAfterDriven); ok && driven.usesRetryAfter() {
				d = retryAfter
			}
		}
		if d > max {
			max = d
		}
	}
	return max
}

// allowRetry consults the budget, if any.
func (c *RetryCoordinator) allowRetry() bool {
	return c.budget == nil || c.budget.Allow()
}

// RetryBudget caps the number of retries permitted per sliding window,
// preventing retry storms when a dependency degrades for a long stretch.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a budget of maxRetries per window.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow reports whether another retry fits the current window, consuming a
// slot when it does.
func (b *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&b.windowStart)

	if now-windowStart >= int64(b.perWindow) {
		if atomic.CompareAndSwapInt64(&b.windowStart, windowStart, now) {
			atomic.StoreInt64(&b.current, 0)
		}
	}

	if atomic.LoadInt64(&b.current) >= b.maxRetries {
		return false
	}
	return atomic.AddInt64(&b.current, 1) <= b.maxRetries
}

// Stats returns the consumed count, the cap and the current window start.
func (b *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&b.current),
		b.maxRetries,
		time.Unix(0, atomic.LoadInt64(&b.windowStart))
}
