package fluent

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MasterGenotype/Modular-1/internal/backoff"
)

// RetryConfig answers "retry?" and "how long?" for one failure class.
// statusCode is 0 for network-level failures; attempt is 1-based starting
// at the first retry.
type RetryConfig interface {
	// MaxRetries is the most retries this config will request; 0 disables.
	MaxRetries() int

	// ShouldRetry reports whether a failed attempt should be retried.
	ShouldRetry(statusCode int, isTimeout bool) bool

	// Delay returns the wait before the given retry attempt.
	Delay(attempt, statusCode int) time.Duration

	// Name identifies the config in logs.
	Name() string
}

// ServerErrorRetryConfig retries 5xx responses and timeouts with
// exponential backoff: initialDelay, 2*initialDelay, 4*initialDelay, ...
// capped at maxDelay. A non-zero Jitter adds up to that fraction of random
// extra delay.
type ServerErrorRetryConfig struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	jitter       float64
	calculator   *backoff.Calculator
}

// NewServerErrorRetryConfig creates the config with no jitter.
func NewServerErrorRetryConfig(maxRetries int, initialDelay, maxDelay time.Duration) *ServerErrorRetryConfig {
	return &ServerErrorRetryConfig{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
	}
}

// WithJitter enables jittered backoff using the exponential-jitter strategy.
func (c *ServerErrorRetryConfig) WithJitter(fraction float64) *ServerErrorRetryConfig {
	c.jitter = fraction
	c.calculator = backoff.GetExponentialJitterCalculator()
	return c
}

// WithDecorrelatedJitter switches to AWS-style decorrelated jitter, which
// spreads concurrent retriers across the full [initialDelay, maxDelay]
// band instead of clustering around the exponential curve.
func (c *ServerErrorRetryConfig) WithDecorrelatedJitter() *ServerErrorRetryConfig {
	c.jitter = 0
	c.calculator = backoff.GetDecorrelatedJitterCalculator()
	return c
}

func (c *ServerErrorRetryConfig) MaxRetries() int { return c.maxRetries }

func (c *ServerErrorRetryConfig) ShouldRetry(statusCode int, isTimeout bool) bool {
	return isTimeout || (statusCode >= 500 && statusCode < 600)
}

func (c *ServerErrorRetryConfig) Delay(attempt, _ int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if c.calculator != nil {
		// Calculator attempts are 0-based.
		return c.calculator.Calculate(attempt-1, c.initialDelay, c.maxDelay, 2.0, c.jitter)
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := c.initialDelay << (attempt - 1)
	if delay < 0 || delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func (c *ServerErrorRetryConfig) Name() string { return "ServerErrorRetryConfig" }

// RateLimitRetryConfig retries HTTP 429 exactly. A Retry-After header on
// the response replaces this config's delay; the fallback applies only
// when no header arrived.
type RateLimitRetryConfig struct {
	maxRetries int
	fallback   time.Duration
}

// NewRateLimitRetryConfig creates the config with a 60s fallback delay.
func NewRateLimitRetryConfig(maxRetries int) *RateLimitRetryConfig {
	return &RateLimitRetryConfig{maxRetries: maxRetries, fallback: time.Minute}
}

// WithFallback overrides the delay used when no Retry-After header arrives.
func (c *RateLimitRetryConfig) WithFallback(d time.Duration) *RateLimitRetryConfig {
	c.fallback = d
	return c
}

func (c *RateLimitRetryConfig) MaxRetries() int { return c.maxRetries }

func (c *RateLimitRetryConfig) ShouldRetry(statusCode int, _ bool) bool {
	return statusCode == http.StatusTooManyRequests
}

func (c *RateLimitRetryConfig) Delay(_, _ int) time.Duration { return c.fallback }

// usesRetryAfter lets the coordinator substitute a parsed Retry-After for
// the fallback delay.
func (c *RateLimitRetryConfig) usesRetryAfter() bool { return true }

func (c *RateLimitRetryConfig) Name() string { return "RateLimitRetryConfig" }

// TimeoutRetryConfig retries network timeouts exclusively with a fixed
// delay.
type TimeoutRetryConfig struct {
	maxRetries int
	delay      time.Duration
}

// NewTimeoutRetryConfig creates the config.
func NewTimeoutRetryConfig(maxRetries int, delay time.Duration) *TimeoutRetryConfig {
	return &TimeoutRetryConfig{maxRetries: maxRetries, delay: delay}
}

func (c *TimeoutRetryConfig) MaxRetries() int { return c.maxRetries }

func (c *TimeoutRetryConfig) ShouldRetry(_ int, isTimeout bool) bool { return isTimeout }

func (c *TimeoutRetryConfig) Delay(_, _ int) time.Duration { return c.delay }

func (c *TimeoutRetryConfig) Name() string { return "TimeoutRetryConfig" }

// maxRetryAfter caps Retry-After driven delays.
const maxRetryAfter = time.Hour

// parseRetryAfter parses a Retry-After header value, supporting both
// delay-seconds and HTTP-date formats. Returns 0 when absent or invalid.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > maxRetryAfter {
			delay = maxRetryAfter
		}
		return delay
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= maxRetryAfter {
			return delay
		}
	}

	return 0
}

// retryAfterOrDefault resolves a Retry-After duration from headers, with
// the conventional 60s default for 429 responses that omit the header.
func retryAfterOrDefault(headers Headers) time.Duration {
	if d := parseRetryAfter(headers.Get("Retry-After")); d > 0 {
		return d
	}
	return time.Minute
}
