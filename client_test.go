package fluent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewValidatesConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		wantErr bool
	}{
		{"Empty", nil, false},
		{"ValidBaseURL", []Option{WithBaseURL("https://api.test")}, false},
		{"RelativeBaseURL", []Option{WithBaseURL("api.test/v1")}, true},
		{"NegativeTimeout", []Option{WithTimeout(-time.Second)}, true},
		{"NilTransport", []Option{WithTransport(nil)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.options...)
			if tt.wantErr && !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidationErrorListsEveryProblem(t *testing.T) {
	_, err := New(WithBaseURL("not-a-url"), WithTimeout(-time.Second))
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %T, want ConfigurationError", err)
	}
	if len(ce.Problems) != 2 {
		t.Errorf("problems = %v, want both reported", ce.Problems)
	}
}

func TestClientFactoriesSetMethod(t *testing.T) {
	client, err := New(WithBaseURL("https://api.test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		req  *Request
		want Method
	}{
		{client.Get("r"), MethodGet},
		{client.Post("r"), MethodPost},
		{client.Put("r"), MethodPut},
		{client.Patch("r"), MethodPatch},
		{client.Delete("r"), MethodDelete},
		{client.Head("r"), MethodHead},
		{client.NewRequest(MethodOptions, "r"), MethodOptions},
	}
	for _, tt := range tests {
		if tt.req.Method() != tt.want {
			t.Errorf("method = %v, want %v", tt.req.Method(), tt.want)
		}
	}
}

func TestClientDefaultUserAgent(t *testing.T) {
	transport := &recordingTransport{}
	client, err := New(WithBaseURL("https://api.test"), WithTransport(transport))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Get("x").AsResponse(context.Background())
	if err != nil {
		t.Fatalf("AsResponse: %v", err)
	}
	if ua := transport.configs[0].Headers.Get("User-Agent"); ua == "" {
		t.Error("requests should carry a default User-Agent")
	}
}

func TestSetAuthenticationHelpers(t *testing.T) {
	transport := &recordingTransport{}
	client, err := New(WithBaseURL("https://api.test"), WithTransport(transport))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	client.SetBasicAuth("user", "pass")
	_, _ = client.Get("x").AsResponse(context.Background())
	// "user:pass" base64.
	if got := transport.configs[0].Headers.Get("Authorization"); got != "Basic dXNlcjpwYXNz" {
		t.Errorf("Authorization = %q", got)
	}

	client.ClearAuthentication()
	client.SetBearerAuth("tok")
	_, _ = client.Get("x").AsResponse(context.Background())
	if got := transport.configs[1].Headers.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRequestCustomizerRuns(t *testing.T) {
	transport := &recordingTransport{}
	client, err := New(
		WithBaseURL("https://api.test"),
		WithTransport(transport),
		WithRequestCustomizer(func(r *Request) {
			r.WithHeader("X-Session", "abc123")
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Get("x").AsResponse(context.Background())
	if err != nil {
		t.Fatalf("AsResponse: %v", err)
	}
	if got := transport.configs[0].Headers.Get("X-Session"); got != "abc123" {
		t.Errorf("X-Session = %q", got)
	}
}

func TestWithRateLimiterRegistersFilter(t *testing.T) {
	client, err := New(
		WithBaseURL("https://api.test"),
		WithRateLimiter(NewRateLimiter()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !client.Filters().ContainsKind(KindRateLimit) {
		t.Error("rate limit filter not registered")
	}
	if client.RateLimiter() == nil {
		t.Error("limiter not attached")
	}
}
