package fluent

import (
	"fmt"
	"time"
)

// Priorities of the built-in filters. Lower runs earlier on the request
// path. Gaps leave room for application filters between the built-ins.
const (
	PriorityLogging        = 100
	PriorityAuthentication = 200
	PriorityCircuitBreaker = 400
	PriorityRateLimit      = 500
	PriorityDefaultError   = 9000
)

// TokenProvider supplies an authentication credential per request. It is
// called once per execution, when the request filters run, so rotated
// tokens are picked up by subsequent requests without rebuilding the
// client.
type TokenProvider func() (string, error)

// AuthenticationFilter injects a credential header into outgoing requests.
// A header already set on the request wins over the filter.
type AuthenticationFilter struct {
	header   string
	provider TokenProvider
}

// NewAuthenticationFilter creates a filter that sets header to a fixed
// value on every request.
func NewAuthenticationFilter(header, value string) *AuthenticationFilter {
	return &AuthenticationFilter{
		header:   header,
		provider: func() (string, error) { return value, nil },
	}
}

// NewBearerAuthenticationFilter creates a filter that sets the
// Authorization header to "Bearer <token>".
func NewBearerAuthenticationFilter(token string) *AuthenticationFilter {
	return NewAuthenticationFilter("Authorization", "Bearer "+token)
}

// NewDynamicAuthenticationFilter creates a filter that asks provider for
// the header value on each attempt. A provider error maps to AuthError.
func NewDynamicAuthenticationFilter(header string, provider TokenProvider) *AuthenticationFilter {
	return &AuthenticationFilter{header: header, provider: provider}
}

func (f *AuthenticationFilter) Name() string  { return "AuthenticationFilter" }
func (f *AuthenticationFilter) Priority() int { return PriorityAuthentication }

func (f *AuthenticationFilter) OnRequest(req *Request) error {
	if req.HasHeader(f.header) {
		return nil
	}
	value, err := f.provider()
	if err != nil {
		return &AuthError{APIError: APIError{Reason: fmt.Sprintf("credential provider failed: %v", err)}}
	}
	req.WithHeader(f.header, value)
	return nil
}

func (f *AuthenticationFilter) OnResponse(*Response, bool) error { return nil }

// LogDetail selects how much a LoggingFilter emits per exchange.
type LogDetail int

const (
	// LogMinimal logs one line per response.
	LogMinimal LogDetail = iota
	// LogNormal logs the request line and the response line.
	LogNormal
	// LogVerbose additionally logs headers, with credentials redacted.
	LogVerbose
)

// LoggingFilter logs each exchange through the client's Logger.
type LoggingFilter struct {
	logger Logger
	detail LogDetail
}

// NewLoggingFilter creates a logging filter. A nil logger logs nowhere.
func NewLoggingFilter(logger Logger, detail LogDetail) *LoggingFilter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LoggingFilter{logger: logger, detail: detail}
}

func (f *LoggingFilter) Name() string  { return "LoggingFilter" }
func (f *LoggingFilter) Priority() int { return PriorityLogging }

func (f *LoggingFilter) OnRequest(req *Request) error {
	if f.detail < LogNormal {
		return nil
	}
	kvs := []any{"method", string(req.Method()), "url", req.URL()}
	if f.detail >= LogVerbose {
		kvs = append(kvs, "headers", redactHeaders(req.Headers()))
	}
	f.logger.Info("request", kvs...)
	return nil
}

func (f *LoggingFilter) OnResponse(resp *Response, _ bool) error {
	kvs := []any{
		"status", resp.StatusCode(),
		"url", resp.EffectiveURL(),
		"elapsed", resp.Elapsed(),
	}
	if f.detail >= LogVerbose {
		kvs = append(kvs, "headers", redactHeaders(resp.Headers()))
	}
	if resp.IsSuccess() {
		f.logger.Info("response", kvs...)
	} else {
		f.logger.Warn("response", kvs...)
	}
	return nil
}

var sensitiveHeaders = map[string]struct{}{
	"Authorization": {},
	"Apikey":        {},
	"X-Api-Key":     {},
	"Cookie":        {},
	"Set-Cookie":    {},
}

func redactHeaders(h Headers) map[string]string {
	out := make(map[string]string, len(h))
	for _, k := range h.Keys() {
		if _, sensitive := sensitiveHeaders[k]; sensitive {
			out[k] = "[redacted]"
		} else {
			out[k] = h.Get(k)
		}
	}
	return out
}

// RateLimitFilter enforces a RateLimiter around each request and feeds the
// response headers back into it. By default an exhausted window fails the
// request with RateLimitError; Blocking() waits for the window instead.
type RateLimitFilter struct {
	limiter *RateLimiter
	block   bool
}

// NewRateLimitFilter wraps a limiter into a filter.
func NewRateLimitFilter(limiter *RateLimiter) *RateLimitFilter {
	return &RateLimitFilter{limiter: limiter}
}

// Blocking makes the filter wait for the limiting window instead of
// failing fast.
func (f *RateLimitFilter) Blocking() *RateLimitFilter {
	f.block = true
	return f
}

// Limiter exposes the wrapped limiter for status queries.
func (f *RateLimitFilter) Limiter() *RateLimiter { return f.limiter }

func (f *RateLimitFilter) Name() string  { return "RateLimitFilter" }
func (f *RateLimitFilter) Priority() int { return PriorityRateLimit }

func (f *RateLimitFilter) OnRequest(req *Request) error {
	if f.block {
		if wait := f.limiter.Status().TimeUntilAllowed(); wait > 0 {
			if dbg := req.debugConfig(); dbg != nil && dbg.Enabled && dbg.LogRateLimit {
				req.logger().Debug("rate limited, waiting", "wait", wait)
			}
		}
		if err := f.limiter.WaitIfNeeded(req.Context()); err != nil {
			return err
		}
	} else if !f.limiter.CanMakeRequest() {
		// A zero wait means the blocking window's reset already elapsed;
		// let the request through so the response headers can replenish
		// the counters.
		if wait := f.limiter.Status().TimeUntilAllowed(); wait > 0 {
			return &RateLimitError{
				APIError: APIError{
					StatusCode: 429,
					Reason:     fmt.Sprintf("local rate limit exhausted, retry in %s", wait.Round(time.Second)),
				},
				RetryAfter: wait,
			}
		}
	}
	f.limiter.RecordRequest()
	return nil
}

func (f *RateLimitFilter) OnResponse(resp *Response, _ bool) error {
	f.limiter.UpdateFromHeaders(resp.Headers())
	return nil
}

// DefaultErrorFilter converts non-2xx responses into typed errors. It runs
// at the highest priority so it sees responses first on the response path,
// before any application filter. It is a no-op when the request opted out
// of HTTP errors as failures.
type DefaultErrorFilter struct{}

// NewDefaultErrorFilter creates the error-mapping filter.
func NewDefaultErrorFilter() *DefaultErrorFilter { return &DefaultErrorFilter{} }

func (f *DefaultErrorFilter) Name() string  { return "DefaultErrorFilter" }
func (f *DefaultErrorFilter) Priority() int { return PriorityDefaultError }

func (f *DefaultErrorFilter) OnRequest(*Request) error { return nil }

func (f *DefaultErrorFilter) OnResponse(resp *Response, httpErrorAsException bool) error {
	if !httpErrorAsException || resp.IsSuccess() {
		return nil
	}
	return resp.apiError()
}

// CircuitBreakerFilter guards requests with a shared CircuitBreaker.
// Server errors count as failures; anything below 500 counts as success.
type CircuitBreakerFilter struct {
	breaker *CircuitBreaker
}

// NewCircuitBreakerFilter wraps a breaker into a filter. A nil breaker
// gets a default configuration.
func NewCircuitBreakerFilter(breaker *CircuitBreaker) *CircuitBreakerFilter {
	if breaker == nil {
		breaker = NewCircuitBreaker(CircuitBreakerConfig{})
	}
	return &CircuitBreakerFilter{breaker: breaker}
}

// Breaker exposes the wrapped breaker for state queries.
func (f *CircuitBreakerFilter) Breaker() *CircuitBreaker { return f.breaker }

func (f *CircuitBreakerFilter) Name() string  { return "CircuitBreakerFilter" }
func (f *CircuitBreakerFilter) Priority() int { return PriorityCircuitBreaker }

func (f *CircuitBreakerFilter) OnRequest(req *Request) error {
	if !f.breaker.Allow() {
		return fmt.Errorf("circuit breaker open for %s: %w", req.URL(), ErrCircuitOpen)
	}
	return nil
}

func (f *CircuitBreakerFilter) OnResponse(resp *Response, _ bool) error {
	if resp.StatusCode() >= 500 {
		f.breaker.RecordFailure()
	} else {
		f.breaker.RecordSuccess()
	}
	return nil
}

var (
	_ Filter = (*AuthenticationFilter)(nil)
	_ Filter = (*LoggingFilter)(nil)
	_ Filter = (*RateLimitFilter)(nil)
	_ Filter = (*DefaultErrorFilter)(nil)
	_ Filter = (*CircuitBreakerFilter)(nil)
)
