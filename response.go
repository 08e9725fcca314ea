package fluent

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Response wraps one completed HTTP exchange. It is immutable after
// construction; the string and JSON views are computed at most once and
// cached.
type Response struct {
	statusCode   int
	reason       string
	headers      Headers
	body         []byte
	effectiveURL string
	originalURL  string
	elapsed      time.Duration

	mu         sync.Mutex
	cachedStr  *string
	jsonParsed bool
	cachedJSON any
	jsonErr    error
}

// NewResponse constructs a Response. Mostly useful for tests and custom
// Transport implementations; the pipeline builds responses itself.
func NewResponse(statusCode int, reason string, headers Headers, body []byte, originalURL, effectiveURL string, elapsed time.Duration) *Response {
	if reason == "" {
		reason = statusText(statusCode)
	}
	return &Response{
		statusCode:   statusCode,
		reason:       reason,
		headers:      headers.Clone(),
		body:         body,
		effectiveURL: effectiveURL,
		originalURL:  originalURL,
		elapsed:      elapsed,
	}
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.statusCode >= 200 && r.statusCode < 300
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Reason returns the status reason phrase.
func (r *Response) Reason() string { return r.reason }

// Headers returns the response headers. Treat the map as read-only.
func (r *Response) Headers() Headers { return r.headers }

// Header returns a header value by case-insensitive name, "" if absent.
func (r *Response) Header(name string) string { return r.headers.Get(name) }

// HasHeader reports whether the named header is present.
func (r *Response) HasHeader(name string) bool { return r.headers.Has(name) }

// ContentType returns the Content-Type header value.
func (r *Response) ContentType() string { return r.headers.Get("Content-Type") }

// ContentLength returns the Content-Length value, or -1 when absent or
// unparseable.
func (r *Response) ContentLength() int64 {
	v := r.headers.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// AsBytes returns the raw body. Callers must not mutate the slice.
func (r *Response) AsBytes() []byte { return r.body }

// AsString returns the body as a string, converting at most once.
func (r *Response) AsString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cachedStr == nil {
		s := string(r.body)
		r.cachedStr = &s
	}
	return *r.cachedStr
}

// AsJSON parses the body as JSON into a generic value, at most once. A
// parse failure returns a ParseError carrying a truncated body snippet; the
// failure is cached too, so repeated calls never re-parse.
func (r *Response) AsJSON() (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.jsonParsed {
		r.jsonParsed = true
		var v any
		if err := sonic.Unmarshal(r.body, &v); err != nil {
			r.jsonErr = newParseError("failed to parse JSON response", r.body, err)
		} else {
			r.cachedJSON = v
		}
	}
	return r.cachedJSON, r.jsonErr
}

// Decode unmarshals the body into a typed destination. Unlike AsJSON the
// result cannot be memoized per destination type, so each call decodes the
// cached raw bytes.
func (r *Response) Decode(v any) error {
	if err := sonic.Unmarshal(r.body, v); err != nil {
		return newParseError("failed to decode JSON response", r.body, err)
	}
	return nil
}

// saveChunkSize is the fixed write granularity for SaveToFile.
const saveChunkSize = 8192

// SaveToFile writes the body to path in fixed-size chunks, creating parent
// directories first. Any write failure is fatal to the call. The progress
// callback, if set, fires after every chunk.
func (r *Response) SaveToFile(path string, progress ProgressFunc) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent directories: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open file for writing: %w", err)
	}
	defer f.Close()

	total := int64(len(r.body))
	for written := int64(0); written < total; {
		end := written + saveChunkSize
		if end > total {
			end = total
		}
		n, err := f.Write(r.body[written:end])
		written += int64(n)
		if err != nil {
			return fmt.Errorf("write to %s: %w", path, err)
		}
		if progress != nil {
			progress(written, total)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// EffectiveURL returns the final URL after redirects.
func (r *Response) EffectiveURL() string { return r.effectiveURL }

// Elapsed returns the wall time the exchange took, redirects included.
func (r *Response) Elapsed() time.Duration { return r.elapsed }

// WasRedirected reports whether the effective URL differs from the
// requested one.
func (r *Response) WasRedirected() bool {
	return r.originalURL != "" && r.effectiveURL != r.originalURL
}

// apiError builds the typed error for a non-2xx response, matching the
// DefaultError filter's taxonomy.
func (r *Response) apiError() error {
	base := APIError{
		StatusCode: r.statusCode,
		Reason:     r.reason,
		Headers:    r.headers,
		Body:       r.AsString(),
	}
	switch {
	case r.statusCode == 429:
		return &RateLimitError{APIError: base, RetryAfter: retryAfterOrDefault(r.headers)}
	case r.statusCode == 401 || r.statusCode == 403:
		return &AuthError{APIError: base}
	default:
		return &base
	}
}
