package fluent

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure scenarios. Typed errors below report
// themselves as these via errors.Is so callers can match without holding the
// concrete type.
var (
	// ErrNetwork is the sentinel for connect/DNS/TLS/timeout failures.
	ErrNetwork = errors.New("fluent: network failure")

	// ErrAPI is the sentinel for non-2xx HTTP responses surfaced as errors.
	ErrAPI = errors.New("fluent: api error")

	// ErrRateLimited is the sentinel for HTTP 429 and local quota exhaustion.
	ErrRateLimited = errors.New("fluent: rate limited")

	// ErrAuth is the sentinel for HTTP 401/403 responses.
	ErrAuth = errors.New("fluent: authentication failed")

	// ErrParse is the sentinel for response bodies that cannot be decoded.
	ErrParse = errors.New("fluent: parse failure")

	// ErrConfiguration is the sentinel for invalid client setup.
	ErrConfiguration = errors.New("fluent: invalid configuration")

	// ErrCancelled is the sentinel for cooperatively cancelled requests.
	ErrCancelled = errors.New("fluent: request cancelled")

	// ErrCircuitOpen is returned when the circuit breaker filter is open.
	ErrCircuitOpen = errors.New("fluent: circuit open")

	// ErrRetryBudgetExceeded is returned when the coordinator's retry
	// budget is exhausted.
	ErrRetryBudgetExceeded = errors.New("fluent: retry budget exceeded")
)

// NetworkError reports a transport-level failure: the exchange never
// produced an HTTP response.
type NetworkError struct {
	URL       string
	IsTimeout bool
	Cause     error
}

func (e *NetworkError) Error() string {
	kind := "network error"
	if e.IsTimeout {
		kind = "timeout"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s for %s: %v", kind, e.URL, e.Cause)
	}
	return fmt.Sprintf("%s for %s", kind, e.URL)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// APIError reports a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Reason     string
	Headers    Headers
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Reason)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

// IsClientError reports whether the status is in the 4xx range.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports whether the status is 5xx or above.
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 }

// RateLimitError reports HTTP 429 or local quota exhaustion, with the
// suggested wait before retrying.
type RateLimitError struct {
	APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited || target == ErrAPI
}

// AuthError reports HTTP 401 (Unauthorized) or 403 (Forbidden).
type AuthError struct {
	APIError
}

// Unauthorized reports whether the failure was 401 rather than 403.
func (e *AuthError) Unauthorized() bool { return e.StatusCode == 401 }

func (e *AuthError) Error() string {
	if e.Unauthorized() {
		return "authentication failed: unauthorized (401)"
	}
	return "authentication failed: forbidden (403)"
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth || target == ErrAPI
}

// ParseError reports a body that could not be decoded as requested. Content
// holds a truncated snippet of the offending body for diagnostics.
type ParseError struct {
	Message string
	Content string
	Cause   error
}

// parseSnippetLimit bounds the body snippet carried by ParseError.
const parseSnippetLimit = 256

func newParseError(message string, body []byte, cause error) *ParseError {
	snippet := string(body)
	if len(snippet) > parseSnippetLimit {
		snippet = snippet[:parseSnippetLimit] + "..."
	}
	return &ParseError{Message: message, Content: snippet, Cause: cause}
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ConfigurationError reports invalid client setup, such as a relative
// resource with no base URL. Problems collects every validation failure.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Problems)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// CancelledError reports that the request's context was cancelled at an
// attempt boundary. No partial Response accompanies it.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("request cancelled: %v", e.Cause)
	}
	return "request cancelled"
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// IsTransient determines if an error represents a failure that might
// succeed on retry: network errors, timeouts, 5xx responses and rate
// limiting. 4xx responses (other than 429), parse and configuration errors
// are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCircuitOpen) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError() || apiErr.StatusCode == 429
	}

	return false
}
