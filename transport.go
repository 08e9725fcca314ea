package fluent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// TransportConfig is one fully-resolved exchange: everything the transport
// needs with no pipeline logic left to apply.
type TransportConfig struct {
	Method          Method
	URL             string
	Headers         Headers
	Body            []byte
	Timeout         time.Duration
	FollowRedirects bool
	MaxRedirects    int
}

// TransportResult is the outcome of a successful exchange. Body is empty
// when the exchange streamed through a chunk callback.
type TransportResult struct {
	StatusCode   int
	Reason       string
	Headers      Headers
	Body         []byte
	EffectiveURL string
	Elapsed      time.Duration
}

// ChunkFunc receives body chunks during a streaming exchange. Returning an
// error aborts the transfer.
type ChunkFunc func(chunk []byte) error

// Transport executes one physical HTTP exchange. Implementations return a
// *NetworkError (with IsTimeout set appropriately) for failures that never
// produced a response; HTTP error statuses are results, not errors.
type Transport interface {
	Execute(ctx context.Context, cfg *TransportConfig) (*TransportResult, error)
	ExecuteStreaming(ctx context.Context, cfg *TransportConfig, onChunk ChunkFunc, progress ProgressFunc) (*TransportResult, error)
}

// HTTPTransport backs Transport with net/http. The zero value is not usable;
// construct with NewHTTPTransport.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps an *http.Client. Pass nil to use a default client.
// The client's own Timeout is left untouched; per-exchange timeouts come
// from TransportConfig via the context.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

// progressInterval bounds how often the progress callback fires, except for
// the final chunk which always reports.
const progressInterval = 100 * time.Millisecond

// streamChunkSize is the read granularity for streaming exchanges.
const streamChunkSize = 32 * 1024

// Execute performs a buffered exchange.
func (t *HTTPTransport) Execute(ctx context.Context, cfg *TransportConfig) (*TransportResult, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, start, err := t.roundTrip(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.networkError(cfg.URL, err)
	}

	return resultFrom(resp, body, time.Since(start)), nil
}

// ExecuteStreaming performs an exchange delivering the body through onChunk.
// The progress callback fires at most every progressInterval and always on
// the final chunk.
func (t *HTTPTransport) ExecuteStreaming(ctx context.Context, cfg *TransportConfig, onChunk ChunkFunc, progress ProgressFunc) (*TransportResult, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, start, err := t.roundTrip(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var downloaded int64
	lastReport := time.Now()
	buf := make([]byte, streamChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			downloaded += int64(n)
			if onChunk != nil {
				if err := onChunk(buf[:n]); err != nil {
					return nil, err
				}
			}
			final := readErr == io.EOF
			if progress != nil && (final || time.Since(lastReport) >= progressInterval) {
				progress(downloaded, total)
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			if n == 0 && progress != nil {
				progress(downloaded, total)
			}
			break
		}
		if readErr != nil {
			return nil, t.networkError(cfg.URL, readErr)
		}
	}

	return resultFrom(resp, nil, time.Since(start)), nil
}

func (t *HTTPTransport) roundTrip(ctx context.Context, cfg *TransportConfig) (*http.Response, time.Time, error) {
	var bodyReader io.Reader
	if len(cfg.Body) > 0 {
		bodyReader = bytes.NewReader(cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, string(cfg.Method), cfg.URL, bodyReader)
	if err != nil {
		return nil, time.Time{}, &ConfigurationError{Problems: []string{err.Error()}}
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	// Redirect policy is per exchange, so shallow-copy the client.
	client := *t.client
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			return nil
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, start, t.networkError(cfg.URL, err)
	}
	return resp, start, nil
}

func (t *HTTPTransport) networkError(url string, err error) *NetworkError {
	return &NetworkError{URL: url, IsTimeout: isTimeoutError(err), Cause: err}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func resultFrom(resp *http.Response, body []byte, elapsed time.Duration) *TransportResult {
	headers := make(Headers, len(resp.Header))
	for k := range resp.Header {
		headers.Set(k, resp.Header.Get(k))
	}

	effective := ""
	if resp.Request != nil && resp.Request.URL != nil {
		effective = resp.Request.URL.String()
	}

	return &TransportResult{
		StatusCode:   resp.StatusCode,
		Reason:       statusText(resp.StatusCode),
		Headers:      headers,
		Body:         body,
		EffectiveURL: effective,
		Elapsed:      elapsed,
	}
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}
