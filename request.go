package fluent

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Request is a mutable, single-use builder for one HTTP exchange. Builder
// methods mutate state and return the same Request for chaining; execution
// happens through AsResponse and friends. A Request belongs to one caller
// and is not safe for concurrent mutation.
type Request struct {
	client   *Client
	ctx      context.Context
	method   Method
	resource string
	args     []queryParam
	headers  Headers
	body     RequestBody
	bodyFunc func() (RequestBody, error)
	opts     RequestOptions

	extraFilters   []registeredFilter
	removedKinds   map[FilterKind]struct{}
	removedHeaders map[string]struct{}
	nextSeq        int

	coordinator *RetryCoordinator
	noRetry     bool

	builtURL string
	err      error
}

func newRequest(client *Client, method Method, resource string) *Request {
	return &Request{
		client:   client,
		ctx:      context.Background(),
		method:   method,
		resource: resource,
		headers:  Headers{},
	}
}

// NewRequest creates a standalone request without a client. The resource
// must then be an absolute URL.
func NewRequest(method Method, resource string) *Request {
	return newRequest(nil, method, resource)
}

// Method returns the request method.
func (r *Request) Method() Method { return r.method }

// Context returns the context the request executes under.
func (r *Request) Context() context.Context { return r.ctx }

// Headers returns the request's live header map. Mutations are visible to
// the request; filters use this during the request phase.
func (r *Request) Headers() Headers { return r.headers }

// Header returns a header value, or "" when unset.
func (r *Request) Header(key string) string { return r.headers.Get(key) }

// HasHeader reports whether a header is set.
func (r *Request) HasHeader(key string) bool { return r.headers.Has(key) }

// URL returns the fully built URL. Before execution it is built on demand
// from the current state; a build failure surfaces at execution time.
func (r *Request) URL() string {
	if r.builtURL != "" {
		return r.builtURL
	}
	u, err := r.buildURL(r.opts.ignoreNullArguments())
	if err != nil {
		return r.resource
	}
	return u
}

// WithContext sets the context checked at attempt boundaries. AsResponse's
// context argument takes precedence when non-nil.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx != nil {
		r.ctx = ctx
	}
	return r
}

// WithHeader sets one header, replacing any prior value.
func (r *Request) WithHeader(key, value string) *Request {
	r.headers.Set(key, value)
	return r
}

// WithHeaders sets every header in m.
func (r *Request) WithHeaders(m map[string]string) *Request {
	for k, v := range m {
		r.headers.Set(k, v)
	}
	return r
}

// WithoutHeader removes a header, including one inherited from the client
// defaults during execution.
func (r *Request) WithoutHeader(key string) *Request {
	r.headers.Del(key)
	if r.removedHeaders == nil {
		r.removedHeaders = map[string]struct{}{}
	}
	r.removedHeaders[canonicalHeaderKey(key)] = struct{}{}
	return r
}

// WithAuthentication sets the Authorization header to a raw value.
func (r *Request) WithAuthentication(value string) *Request {
	return r.WithHeader("Authorization", value)
}

// WithBearerAuth sets the Authorization header to "Bearer <token>".
func (r *Request) WithBearerAuth(token string) *Request {
	return r.WithHeader("Authorization", "Bearer "+token)
}

// WithBasicAuth sets the Authorization header from a username and password.
func (r *Request) WithBasicAuth(username, password string) *Request {
	cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return r.WithHeader("Authorization", "Basic "+cred)
}

// WithArgument appends one query argument. Addition order is preserved in
// the built URL. A nil value is a null argument, rendered as an empty value
// or skipped entirely under IgnoreNullArguments.
func (r *Request) WithArgument(key string, value any) *Request {
	r.args = append(r.args, queryParam{key: key, value: value})
	return r
}

// WithArguments appends query arguments from a map in sorted key order, so
// URL construction is deterministic.
func (r *Request) WithArguments(m map[string]any) *Request {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.args = append(r.args, queryParam{key: k, value: m[k]})
	}
	return r
}

// WithBody sets the request body.
func (r *Request) WithBody(body RequestBody) *Request {
	r.body = body
	r.bodyFunc = nil
	return r
}

// WithBodyFunc defers body construction until execution. Useful for bodies
// that read files or depend on late state.
func (r *Request) WithBodyFunc(fn func() (RequestBody, error)) *Request {
	r.bodyFunc = fn
	return r
}

// WithJSONBody marshals v and sets it as an application/json body. A
// marshal failure surfaces when the request executes.
func (r *Request) WithJSONBody(v any) *Request {
	body, err := Body.JSON(v)
	if err != nil {
		r.fail(err)
		return r
	}
	return r.WithBody(body)
}

// WithFormBody URL-encodes pairs as an application/x-www-form-urlencoded
// body, preserving order.
func (r *Request) WithFormBody(pairs [][2]string) *Request {
	return r.WithBody(Body.FormURLEncoded(pairs))
}

// WithOptions replaces the request options wholesale. Unset fields fall
// back to the client defaults at execution time.
func (r *Request) WithOptions(opts RequestOptions) *Request {
	r.opts = opts
	return r
}

// WithIgnoreHTTPErrors controls whether non-2xx responses are returned as
// plain responses instead of typed errors.
func (r *Request) WithIgnoreHTTPErrors(ignore bool) *Request {
	r.opts.IgnoreHTTPErrors = boolPtr(ignore)
	return r
}

// WithTimeout bounds a single exchange, not the whole retry loop.
func (r *Request) WithTimeout(d time.Duration) *Request {
	r.opts.Timeout = durationPtr(d)
	return r
}

// WithFilter attaches a request-local filter under a kind tag. It joins
// the client's filters in one chain ordered by (priority, registration).
func (r *Request) WithFilter(kind FilterKind, f Filter) *Request {
	if f == nil {
		return r
	}
	r.extraFilters = append(r.extraFilters, registeredFilter{filter: f, kind: kind, seq: r.nextSeq})
	r.nextSeq++
	return r
}

// WithoutFilterKind excludes every client filter of the given kind from
// this request's chain.
func (r *Request) WithoutFilterKind(kind FilterKind) *Request {
	if r.removedKinds == nil {
		r.removedKinds = map[FilterKind]struct{}{}
	}
	r.removedKinds[kind] = struct{}{}
	return r
}

// WithRetryConfig replaces the client's retry coordination with a
// coordinator over the given configs for this request only.
func (r *Request) WithRetryConfig(configs ...RetryConfig) *Request {
	r.coordinator = NewRetryCoordinator(configs...)
	r.noRetry = false
	return r
}

// WithRetryCoordinator replaces the client's coordinator for this request.
func (r *Request) WithRetryCoordinator(c *RetryCoordinator) *Request {
	r.coordinator = c
	r.noRetry = false
	return r
}

// WithNoRetry disables retries for this request.
func (r *Request) WithNoRetry() *Request {
	r.noRetry = true
	return r
}

// WithCustom applies fn to the request immediately. It exists so reusable
// request decorations compose into chains.
func (r *Request) WithCustom(fn RequestCustomizer) *Request {
	if fn != nil {
		fn(r)
	}
	return r
}

// fail records the first builder error; execution reports it.
func (r *Request) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// buildURL joins base URL and resource with exactly one separator, then
// appends percent-encoded key=value arguments joined by &.
func (r *Request) buildURL(ignoreNull bool) (string, error) {
	full := r.resource
	if !isAbsoluteURL(full) {
		if r.client == nil || r.client.baseURL == "" {
			return "", &ConfigurationError{Problems: []string{
				fmt.Sprintf("relative resource %q requires a client base URL", r.resource),
			}}
		}
		full = joinURL(r.client.baseURL, r.resource)
	}

	var query strings.Builder
	for _, arg := range r.args {
		if arg.value == nil && ignoreNull {
			continue
		}
		if query.Len() > 0 {
			query.WriteByte('&')
		}
		query.WriteString(url.QueryEscape(arg.key))
		query.WriteByte('=')
		if arg.value != nil {
			query.WriteString(url.QueryEscape(fmt.Sprint(arg.value)))
		}
	}
	if query.Len() > 0 {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + query.String()
	}
	return full, nil
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// joinURL concatenates base and resource with exactly one slash between
// them, whatever each side brings.
func joinURL(base, resource string) string {
	switch {
	case resource == "":
		return base
	case strings.HasSuffix(base, "/") && strings.HasPrefix(resource, "/"):
		return base + resource[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(resource, "/"):
		return base + "/" + resource
	default:
		return base + resource
	}
}

// effectiveFilters resolves the chain for this request: client filters
// minus removed kinds, plus request-local filters, in one stable
// (priority, registration) order.
func (r *Request) effectiveFilters() []Filter {
	var entries []registeredFilter
	if r.client != nil {
		for _, e := range r.client.filters.snapshot() {
			if _, removed := r.removedKinds[e.kind]; removed {
				continue
			}
			entries = append(entries, e)
		}
	}
	base := len(entries)
	for i, e := range r.extraFilters {
		e.seq = base + i
		entries = append(entries, e)
	}
	sortFilters(entries)
	out := make([]Filter, len(entries))
	for i, e := range entries {
		out[i] = e.filter
	}
	return out
}

// prepared state for an execution run.
type execution struct {
	url        string
	body       RequestBody
	opts       RequestOptions
	chain      []Filter
	coord      *RetryCoordinator
	maxAttempt int
	requestID  string
}

// prepare resolves customizers, options, headers, URL, body and the filter
// chain, then runs the request-phase hooks once.
func (r *Request) prepare(ctx context.Context) (*execution, error) {
	if r.err != nil {
		return nil, r.err
	}
	if ctx != nil {
		r.ctx = ctx
	}

	var (
		defaults   RequestOptions
		defHeaders Headers
	)
	if r.client != nil {
		if r.client.validationError != nil {
			return nil, r.client.validationError
		}
		defaults = r.client.defaultOptions
		defHeaders = r.client.defaultHeaders
	}

	// Request headers win; client defaults fill the rest, except keys the
	// request explicitly removed.
	for _, k := range defHeaders.Keys() {
		if r.headers.Has(k) {
			continue
		}
		if _, removed := r.removedHeaders[canonicalHeaderKey(k)]; removed {
			continue
		}
		r.headers.Set(k, defHeaders.Get(k))
	}
	if r.client != nil {
		for _, c := range r.client.customizers {
			c(r)
		}
	}

	opts := r.opts.merged(defaults)

	u, err := r.buildURL(opts.ignoreNullArguments())
	if err != nil {
		return nil, err
	}
	r.builtURL = u

	body := r.body
	if r.bodyFunc != nil {
		body, err = r.bodyFunc()
		if err != nil {
			return nil, err
		}
	}
	if !body.Empty() && body.ContentType != "" && !r.headers.Has("Content-Type") {
		r.headers.Set("Content-Type", body.ContentType)
	}

	coord := r.coordinator
	if coord == nil && r.client != nil {
		coord = r.client.coordinator
	}
	maxAttempts := 1
	if coord != nil && !r.noRetry {
		maxAttempts = coord.MaxRetries() + 1
	}

	ex := &execution{
		url:        u,
		body:       body,
		opts:       opts,
		chain:      r.effectiveFilters(),
		coord:      coord,
		maxAttempt: maxAttempts,
	}
	if dbg := r.debugConfig(); dbg != nil && dbg.Enabled {
		ex.requestID = dbg.RequestIDGen()
	}

	for _, f := range ex.chain {
		if err := f.OnRequest(r); err != nil {
			r.logFilterAbort(ex, f, "request", err)
			return nil, err
		}
	}
	return ex, nil
}

func (r *Request) debugConfig() *DebugConfig {
	if r.client == nil {
		return nil
	}
	return r.client.debug
}

func (r *Request) logger() Logger {
	if r.client == nil || r.client.logger == nil {
		return noopLogger{}
	}
	return r.client.logger
}

func (r *Request) metrics() *MetricsCollector {
	if r.client == nil {
		return nil
	}
	return r.client.metrics
}

func (r *Request) transport() Transport {
	if r.client != nil && r.client.transport != nil {
		return r.client.transport
	}
	return defaultTransport
}

var defaultTransport = NewHTTPTransport(nil)

func (r *Request) logFilterAbort(ex *execution, f Filter, phase string, err error) {
	if dbg := r.debugConfig(); dbg == nil || !dbg.Enabled || !dbg.LogFilters {
		return
	}
	r.logger().Warn("filter aborted chain",
		"requestId", ex.requestID,
		"filter", f.Name(),
		"phase", phase,
		"error", err)
}

// AsResponse executes the request and blocks for the final outcome. The
// attempt loop checks ctx at each attempt boundary; a cancelled context
// yields a CancelledError with no partial response.
func (r *Request) AsResponse(ctx context.Context) (*Response, error) {
	ex, err := r.prepare(ctx)
	if err != nil {
		r.recordError(err)
		return nil, err
	}
	resp, err := r.run(ex)
	if err != nil {
		r.recordError(err)
	}
	return resp, err
}

func (r *Request) run(ex *execution) (*Response, error) {
	m := r.metrics()
	m.incInFlight()
	defer m.decInFlight()

	httpErrAsExc := !ex.opts.ignoreHTTPErrors()
	completion := ResponseContentRead
	if ex.opts.CompleteWhen != nil {
		completion = *ex.opts.CompleteWhen
	}
	dbg := r.debugConfig()

	for attempt := 0; attempt < ex.maxAttempt; attempt++ {
		if err := r.ctx.Err(); err != nil {
			return nil, &CancelledError{Cause: err}
		}

		if dbg != nil && dbg.Enabled && dbg.LogRequests {
			r.logger().Debug("dispatch",
				"requestId", ex.requestID,
				"method", string(r.method),
				"url", ex.url,
				"attempt", attempt)
		}

		cfg := &TransportConfig{
			Method:          r.method,
			URL:             ex.url,
			Headers:         r.headers.Clone(),
			Body:            ex.body.Content,
			FollowRedirects: true,
		}
		if ex.opts.Timeout != nil {
			cfg.Timeout = *ex.opts.Timeout
		}

		var result *TransportResult
		var err error
		if completion == ResponseHeadersRead {
			// Headers-read completion consumes the body through the
			// streaming transport; chunks are collected so the Response
			// accessors still see the whole payload.
			var buf bytes.Buffer
			result, err = r.transport().ExecuteStreaming(r.ctx, cfg, func(chunk []byte) error {
				_, werr := buf.Write(chunk)
				return werr
			}, nil)
			if result != nil {
				result.Body = buf.Bytes()
			}
		} else {
			result, err = r.transport().Execute(r.ctx, cfg)
		}
		if err != nil {
			var ne *NetworkError
			isTimeout := errors.As(err, &ne) && ne.IsTimeout
			if retryErr, retried := r.maybeRetry(ex, attempt, 0, isTimeout, nil); retried {
				if retryErr != nil {
					return nil, retryErr
				}
				continue
			}
			return nil, err
		}

		resp := NewResponse(result.StatusCode, result.Reason, result.Headers, result.Body,
			ex.url, result.EffectiveURL, result.Elapsed)
		m.recordRequest(string(r.method), result.StatusCode, result.Elapsed)

		var filterErr error
		for i := len(ex.chain) - 1; i >= 0; i-- {
			if ferr := ex.chain[i].OnResponse(resp, httpErrAsExc); ferr != nil {
				r.logFilterAbort(ex, ex.chain[i], "response", ferr)
				filterErr = ferr
				break
			}
		}

		if retryErr, retried := r.maybeRetry(ex, attempt, resp.StatusCode(), false, resp.Headers()); retried {
			if retryErr != nil {
				return nil, retryErr
			}
			continue
		}

		if filterErr != nil {
			return nil, filterErr
		}
		return resp, nil
	}
	// Unreachable: the loop always returns from its final attempt.
	return nil, &ConfigurationError{Problems: []string{"attempt loop exited without outcome"}}
}

// maybeRetry decides whether the current attempt is retried. It returns
// retried=false when the outcome should be treated as final. When a retry
// is due it sleeps for the coordinated delay, with any Retry-After on 429
// replacing the rate-limit policy's fallback, and returns retried=true; a
// cancellation during the sleep comes back as the error.
func (r *Request) maybeRetry(ex *execution, attempt, statusCode int, isTimeout bool, respHeaders Headers) (error, bool) {
	if ex.coord == nil || r.noRetry {
		return nil, false
	}
	if attempt >= ex.maxAttempt-1 {
		return nil, false
	}
	if !ex.coord.ShouldRetry(statusCode, isTimeout) {
		return nil, false
	}
	if !ex.coord.allowRetry() {
		r.logger().Warn("retry budget exhausted", "requestId", ex.requestID, "status", statusCode)
		r.metrics().recordError(errorKind(ErrRetryBudgetExceeded))
		return nil, false
	}

	var retryAfter time.Duration
	if statusCode == 429 && respHeaders != nil {
		retryAfter = parseRetryAfter(respHeaders.Get("Retry-After"))
	}
	delay := ex.coord.DelayWithRetryAfter(attempt+1, statusCode, isTimeout, retryAfter)

	if dbg := r.debugConfig(); dbg != nil && dbg.Enabled && dbg.LogRetries {
		r.logger().Debug("retrying",
			"requestId", ex.requestID,
			"attempt", attempt+1,
			"status", statusCode,
			"timeout", isTimeout,
			"delay", delay)
	}
	r.metrics().recordRetry(string(r.method))

	if err := sleepContext(r.ctx, delay); err != nil {
		return err, true
	}
	return nil, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &CancelledError{Cause: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

func (r *Request) recordError(err error) {
	r.metrics().recordError(errorKind(err))
}

// AsString executes the request and returns the body as text.
func (r *Request) AsString(ctx context.Context) (string, error) {
	resp, err := r.AsResponse(ctx)
	if err != nil {
		return "", err
	}
	return resp.AsString(), nil
}

// AsJSON executes the request and returns the parsed JSON body.
func (r *Request) AsJSON(ctx context.Context) (any, error) {
	resp, err := r.AsResponse(ctx)
	if err != nil {
		return nil, err
	}
	return resp.AsJSON()
}

// Decode executes the request and unmarshals the JSON body into v.
func (r *Request) Decode(ctx context.Context, v any) error {
	resp, err := r.AsResponse(ctx)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// DownloadTo streams the response body into a file, creating parent
// directories first. progress may be nil; when set it is throttled by the
// transport and always fired on the final chunk. Retries restart the file
// from the beginning.
func (r *Request) DownloadTo(ctx context.Context, path string, progress ProgressFunc) error {
	ex, err := r.prepare(ctx)
	if err != nil {
		r.recordError(err)
		return err
	}

	m := r.metrics()
	m.incInFlight()
	defer m.decInFlight()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	httpErrAsExc := !ex.opts.ignoreHTTPErrors()

	for attempt := 0; attempt < ex.maxAttempt; attempt++ {
		if err := r.ctx.Err(); err != nil {
			return &CancelledError{Cause: err}
		}

		file, err := os.Create(path)
		if err != nil {
			return err
		}

		cfg := &TransportConfig{
			Method:          r.method,
			URL:             ex.url,
			Headers:         r.headers.Clone(),
			Body:            ex.body.Content,
			FollowRedirects: true,
		}
		if ex.opts.Timeout != nil {
			cfg.Timeout = *ex.opts.Timeout
		}

		var written int64
		result, execErr := r.transport().ExecuteStreaming(r.ctx, cfg, func(chunk []byte) error {
			n, werr := file.Write(chunk)
			written += int64(n)
			return werr
		}, progress)
		closeErr := file.Close()

		if execErr != nil {
			var ne *NetworkError
			isTimeout := errors.As(execErr, &ne) && ne.IsTimeout
			if retryErr, retried := r.maybeRetry(ex, attempt, 0, isTimeout, nil); retried {
				if retryErr != nil {
					return retryErr
				}
				continue
			}
			r.recordError(execErr)
			return execErr
		}
		if closeErr != nil {
			return closeErr
		}

		resp := NewResponse(result.StatusCode, result.Reason, result.Headers, nil,
			ex.url, result.EffectiveURL, result.Elapsed)
		m.recordRequest(string(r.method), result.StatusCode, result.Elapsed)
		m.recordDownloadBytes(written)

		var filterErr error
		for i := len(ex.chain) - 1; i >= 0; i-- {
			if ferr := ex.chain[i].OnResponse(resp, httpErrAsExc); ferr != nil {
				r.logFilterAbort(ex, ex.chain[i], "response", ferr)
				filterErr = ferr
				break
			}
		}

		if retryErr, retried := r.maybeRetry(ex, attempt, resp.StatusCode(), false, resp.Headers()); retried {
			if retryErr != nil {
				return retryErr
			}
			continue
		}

		if filterErr != nil {
			r.recordError(filterErr)
			return filterErr
		}
		return nil
	}
	return &ConfigurationError{Problems: []string{"attempt loop exited without outcome"}}
}

// ResponseFuture is the join handle for an asynchronous execution.
type ResponseFuture struct {
	done chan struct{}
	resp *Response
	err  error
}

// Wait blocks for the outcome or for ctx. A done ctx does not cancel the
// in-flight request itself; pass the same ctx to AsResponseAsync for that.
func (f *ResponseFuture) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, &CancelledError{Cause: ctx.Err()}
	case <-f.done:
		return f.resp, f.err
	}
}

// Done returns a channel closed when the outcome is available.
func (f *ResponseFuture) Done() <-chan struct{} { return f.done }

// AsResponseAsync executes the request in its own goroutine and returns a
// future to join on.
func (r *Request) AsResponseAsync(ctx context.Context) *ResponseFuture {
	f := &ResponseFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.resp, f.err = r.AsResponse(ctx)
	}()
	return f
}
