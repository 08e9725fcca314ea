package fluent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// captureLogger records log calls for assertions.
type captureLogger struct {
	mu      sync.Mutex
	entries []capturedEntry
}

type capturedEntry struct {
	level string
	msg   string
	kvs   []any
}

func (l *captureLogger) log(level, msg string, kvs []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, capturedEntry{level: level, msg: msg, kvs: kvs})
}

func (l *captureLogger) Debug(msg string, kvs ...any) { l.log("debug", msg, kvs) }
func (l *captureLogger) Info(msg string, kvs ...any)  { l.log("info", msg, kvs) }
func (l *captureLogger) Warn(msg string, kvs ...any)  { l.log("warn", msg, kvs) }
func (l *captureLogger) Error(msg string, kvs ...any) { l.log("error", msg, kvs) }

func TestAuthenticationFilterSetsHeader(t *testing.T) {
	f := NewAuthenticationFilter("Apikey", "secret")
	req := NewRequest(MethodGet, "https://api.test/x")
	if err := f.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if got := req.Header("Apikey"); got != "secret" {
		t.Errorf("Apikey = %q", got)
	}
}

func TestAuthenticationFilterRespectsRequestHeader(t *testing.T) {
	f := NewAuthenticationFilter("Authorization", "Bearer default")
	req := NewRequest(MethodGet, "https://api.test/x").WithBearerAuth("override")
	if err := f.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if got := req.Header("Authorization"); got != "Bearer override" {
		t.Errorf("Authorization = %q, request-set header must win", got)
	}
}

func TestDynamicAuthenticationFilter(t *testing.T) {
	calls := 0
	f := NewDynamicAuthenticationFilter("Authorization", func() (string, error) {
		calls++
		return "token-1", nil
	})
	req := NewRequest(MethodGet, "https://api.test/x")
	if err := f.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if calls != 1 || req.Header("Authorization") != "token-1" {
		t.Errorf("calls=%d header=%q", calls, req.Header("Authorization"))
	}

	t.Run("ProviderFailure", func(t *testing.T) {
		failing := NewDynamicAuthenticationFilter("Authorization", func() (string, error) {
			return "", errors.New("refresh failed")
		})
		err := failing.OnRequest(NewRequest(MethodGet, "https://api.test/x"))
		if !errors.Is(err, ErrAuth) {
			t.Fatalf("err = %v, want ErrAuth", err)
		}
	})
}

func TestLoggingFilterRedactsSecrets(t *testing.T) {
	logger := &captureLogger{}
	f := NewLoggingFilter(logger, LogVerbose)

	req := NewRequest(MethodGet, "https://api.test/x").
		WithHeader("Authorization", "Bearer hunter2").
		WithHeader("Accept", "application/json")
	if err := f.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(logger.entries))
	}
	for i, kv := range logger.entries[0].kvs {
		if kv == "headers" {
			headers := logger.entries[0].kvs[i+1].(map[string]string)
			if headers["Authorization"] != "[redacted]" {
				t.Errorf("Authorization logged as %q", headers["Authorization"])
			}
			if headers["Accept"] != "application/json" {
				t.Errorf("Accept logged as %q", headers["Accept"])
			}
			return
		}
	}
	t.Error("no headers key in log entry")
}

func TestLoggingFilterMinimalSkipsRequestLine(t *testing.T) {
	logger := &captureLogger{}
	f := NewLoggingFilter(logger, LogMinimal)
	if err := f.OnRequest(NewRequest(MethodGet, "https://api.test/x")); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if len(logger.entries) != 0 {
		t.Errorf("minimal detail logged %d request entries", len(logger.entries))
	}
}

func TestRateLimitFilterFailsFastWhenExhausted(t *testing.T) {
	rl := NewRateLimiter()
	rl.mu.Lock()
	rl.hourlyRemaining = 0
	rl.hourlyReset = time.Now().Add(10 * time.Minute)
	rl.mu.Unlock()

	f := NewRateLimitFilter(rl)
	err := f.OnRequest(NewRequest(MethodGet, "https://api.test/x"))

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %T, want RateLimitError", err)
	}
	if rle.RetryAfter < 9*time.Minute {
		t.Errorf("RetryAfter = %v, want about 10m", rle.RetryAfter)
	}
}

func TestRateLimitFilterRecordsAndIngests(t *testing.T) {
	rl := NewRateLimiter()
	f := NewRateLimitFilter(rl)

	req := NewRequest(MethodGet, "https://api.test/x").WithContext(context.Background())
	if err := f.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if got := rl.Status().HourlyRemaining; got != DefaultHourlyLimit-1 {
		t.Errorf("hourlyRemaining = %d after record", got)
	}

	headers := NewHeaders(map[string]string{"X-RL-Hourly-Remaining": "123"})
	resp := NewResponse(200, "OK", headers, nil, "u", "u", 0)
	if err := f.OnResponse(resp, true); err != nil {
		t.Fatalf("OnResponse: %v", err)
	}
	if got := rl.Status().HourlyRemaining; got != 123 {
		t.Errorf("hourlyRemaining = %d, want 123 from headers", got)
	}
}

func TestRateLimitFilterAllowsElapsedReset(t *testing.T) {
	rl := NewRateLimiter()
	rl.mu.Lock()
	rl.hourlyRemaining = 0
	rl.hourlyReset = time.Now().Add(-time.Minute)
	rl.mu.Unlock()

	f := NewRateLimitFilter(rl)
	if err := f.OnRequest(NewRequest(MethodGet, "https://api.test/x")); err != nil {
		t.Fatalf("elapsed reset should let the request through: %v", err)
	}
}

func TestDefaultErrorFilter(t *testing.T) {
	f := NewDefaultErrorFilter()

	t.Run("SuccessPassesThrough", func(t *testing.T) {
		resp := NewResponse(200, "OK", Headers{}, nil, "u", "u", 0)
		if err := f.OnResponse(resp, true); err != nil {
			t.Errorf("OnResponse: %v", err)
		}
	})

	t.Run("IgnoredWhenNotRaising", func(t *testing.T) {
		resp := NewResponse(500, "Internal Server Error", Headers{}, nil, "u", "u", 0)
		if err := f.OnResponse(resp, false); err != nil {
			t.Errorf("httpErrorAsException=false must not raise, got %v", err)
		}
	})

	t.Run("MapsServerError", func(t *testing.T) {
		resp := NewResponse(500, "Internal Server Error", Headers{}, []byte("boom"), "u", "u", 0)
		err := f.OnResponse(resp, true)
		var ae *APIError
		if !errors.As(err, &ae) {
			t.Fatalf("err = %T, want APIError", err)
		}
		if ae.StatusCode != 500 || string(ae.Body) != "boom" {
			t.Errorf("APIError = %+v", ae)
		}
	})
}

func TestCircuitBreakerFilter(t *testing.T) {
	f := NewCircuitBreakerFilter(NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	}))
	req := NewRequest(MethodGet, "https://api.test/x")
	fail := NewResponse(503, "Service Unavailable", Headers{}, nil, "u", "u", 0)

	for i := 0; i < 2; i++ {
		if err := f.OnRequest(req); err != nil {
			t.Fatalf("OnRequest while closed: %v", err)
		}
		if err := f.OnResponse(fail, true); err != nil {
			t.Fatalf("OnResponse: %v", err)
		}
	}

	err := f.OnRequest(req)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen after threshold failures", err)
	}
	if f.Breaker().State() != StateOpen {
		t.Errorf("state = %v, want open", f.Breaker().State())
	}
}
