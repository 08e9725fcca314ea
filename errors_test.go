package fluent

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestErrorSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"Network", &NetworkError{URL: "u", Cause: errors.New("dial")}, ErrNetwork},
		{"API", &APIError{StatusCode: 500}, ErrAPI},
		{"RateLimit", &RateLimitError{APIError: APIError{StatusCode: 429}}, ErrRateLimited},
		{"Auth", &AuthError{APIError: APIError{StatusCode: 401}}, ErrAuth},
		{"Parse", newParseError("bad json", []byte("x"), errors.New("eof")), ErrParse},
		{"Configuration", &ConfigurationError{Problems: []string{"no base URL"}}, ErrConfiguration},
		{"Cancelled", &CancelledError{}, ErrCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("%v should match its sentinel", tt.err)
			}
		})
	}
}

func TestRateLimitErrorIsAlsoAPIError(t *testing.T) {
	err := error(&RateLimitError{APIError: APIError{StatusCode: 429}, RetryAfter: time.Second})
	if !errors.Is(err, ErrAPI) {
		t.Error("RateLimitError should match ErrAPI too")
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.StatusCode != 429 {
		t.Error("RateLimitError should carry its API status")
	}
}

func TestNetworkErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &NetworkError{URL: "u", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("NetworkError should unwrap to its cause")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Timeout", &NetworkError{IsTimeout: true}, true},
		{"ConnectFailure", &NetworkError{IsTimeout: false}, true},
		{"RateLimited", &RateLimitError{APIError: APIError{StatusCode: 429}}, true},
		{"ServerError", &APIError{StatusCode: 503}, true},
		{"ClientError", &APIError{StatusCode: 404}, false},
		{"Auth", &AuthError{APIError: APIError{StatusCode: 401}}, false},
		{"Parse", newParseError("bad", nil, nil), false},
		{"Cancelled", &CancelledError{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigurationErrorListsProblems(t *testing.T) {
	err := &ConfigurationError{Problems: []string{"no base URL", "negative timeout"}}
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty message")
	}
	for _, p := range err.Problems {
		if !strings.Contains(msg, p) {
			t.Errorf("message %q missing problem %q", msg, p)
		}
	}
}
