package fluent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransportExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Probe"); got != "yes" {
			t.Errorf("X-Probe = %q, want yes", got)
		}
		w.Header().Set("X-Served-By", "test")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	tr := NewHTTPTransport(nil)
	result, err := tr.Execute(context.Background(), &TransportConfig{
		Method:  MethodGet,
		URL:     server.URL,
		Headers: NewHeaders(map[string]string{"X-Probe": "yes"}),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("status = %d", result.StatusCode)
	}
	if string(result.Body) != "payload" {
		t.Errorf("body = %q", result.Body)
	}
	if result.Headers.Get("X-Served-By") != "test" {
		t.Errorf("missing response header, got %v", result.Headers)
	}
	if result.Elapsed <= 0 {
		t.Error("elapsed not measured")
	}
}

func TestHTTPTransportTimeoutFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	tr := NewHTTPTransport(nil)
	_, err := tr.Execute(context.Background(), &TransportConfig{
		Method:  MethodGet,
		URL:     server.URL,
		Headers: Headers{},
		Timeout: 20 * time.Millisecond,
	})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %T, want NetworkError", err)
	}
	if !ne.IsTimeout {
		t.Error("timeout failure should set IsTimeout")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Error("NetworkError should match ErrNetwork")
	}
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	tr := NewHTTPTransport(nil)
	_, err := tr.Execute(context.Background(), &TransportConfig{
		Method:  MethodGet,
		URL:     "http://127.0.0.1:1", // nothing listens here
		Headers: Headers{},
	})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %T, want NetworkError", err)
	}
	if ne.IsTimeout {
		t.Error("connection refused is not a timeout")
	}
}

func TestHTTPTransportRedirects(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hop" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.Write([]byte("done"))
	}))
	defer target.Close()

	tr := NewHTTPTransport(nil)

	t.Run("Follow", func(t *testing.T) {
		result, err := tr.Execute(context.Background(), &TransportConfig{
			Method:          MethodGet,
			URL:             target.URL + "/hop",
			Headers:         Headers{},
			FollowRedirects: true,
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.StatusCode != 200 {
			t.Errorf("status = %d, want 200 after redirect", result.StatusCode)
		}
		if result.EffectiveURL != target.URL+"/final" {
			t.Errorf("EffectiveURL = %q, want the redirect target", result.EffectiveURL)
		}
	})

	t.Run("NoFollow", func(t *testing.T) {
		result, err := tr.Execute(context.Background(), &TransportConfig{
			Method:          MethodGet,
			URL:             target.URL + "/hop",
			Headers:         Headers{},
			FollowRedirects: false,
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.StatusCode != http.StatusFound {
			t.Errorf("status = %d, want 302 untouched", result.StatusCode)
		}
	})
}

func TestHTTPTransportStreaming(t *testing.T) {
	payload := make([]byte, streamChunkSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	tr := NewHTTPTransport(nil)
	var received []byte
	var finalProgress int64
	result, err := tr.ExecuteStreaming(context.Background(), &TransportConfig{
		Method:  MethodGet,
		URL:     server.URL,
		Headers: Headers{},
	}, func(chunk []byte) error {
		received = append(received, chunk...)
		return nil
	}, func(downloaded, total int64) {
		finalProgress = downloaded
	})
	if err != nil {
		t.Fatalf("ExecuteStreaming: %v", err)
	}
	if len(received) != len(payload) {
		t.Errorf("received %d bytes, want %d", len(received), len(payload))
	}
	if len(result.Body) != 0 {
		t.Error("streaming result should not buffer the body")
	}
	if finalProgress != int64(len(payload)) {
		t.Errorf("final progress = %d, want %d (must fire on last chunk)", finalProgress, len(payload))
	}
}

func TestHTTPTransportStreamingChunkAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, streamChunkSize*2))
	}))
	defer server.Close()

	tr := NewHTTPTransport(nil)
	sentinel := errors.New("disk full")
	_, err := tr.ExecuteStreaming(context.Background(), &TransportConfig{
		Method:  MethodGet,
		URL:     server.URL,
		Headers: Headers{},
	}, func([]byte) error {
		return sentinel
	}, nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want the chunk callback's error", err)
	}
}
