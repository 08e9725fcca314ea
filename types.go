package fluent

import "time"

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// CompletionOption controls when a response is considered complete.
type CompletionOption int

const (
	// ResponseContentRead waits for the full body to be buffered (default).
	ResponseContentRead CompletionOption = iota
	// ResponseHeadersRead completes as soon as headers arrive; the body is
	// consumed through the streaming transport. DownloadTo always behaves
	// this way regardless of the option.
	ResponseHeadersRead
)

// RequestOptions are per-request overrides. Unset (nil) fields inherit the
// client defaults at execution time.
type RequestOptions struct {
	// IgnoreHTTPErrors suppresses the translation of non-2xx responses into
	// typed errors by the DefaultError filter and the typed accessors.
	IgnoreHTTPErrors *bool

	// IgnoreNullArguments omits query arguments with empty values.
	IgnoreNullArguments *bool

	// CompleteWhen chooses buffered vs streaming completion.
	CompleteWhen *CompletionOption

	// Timeout bounds a single exchange, not the cumulative retry loop.
	Timeout *time.Duration
}

// merged returns a copy of o with unset fields filled from defaults.
func (o RequestOptions) merged(defaults RequestOptions) RequestOptions {
	out := o
	if out.IgnoreHTTPErrors == nil {
		out.IgnoreHTTPErrors = defaults.IgnoreHTTPErrors
	}
	if out.IgnoreNullArguments == nil {
		out.IgnoreNullArguments = defaults.IgnoreNullArguments
	}
	if out.CompleteWhen == nil {
		out.CompleteWhen = defaults.CompleteWhen
	}
	if out.Timeout == nil {
		out.Timeout = defaults.Timeout
	}
	return out
}

func (o RequestOptions) ignoreHTTPErrors() bool {
	return o.IgnoreHTTPErrors != nil && *o.IgnoreHTTPErrors
}

func (o RequestOptions) ignoreNullArguments() bool {
	return o.IgnoreNullArguments != nil && *o.IgnoreNullArguments
}

// RequestBody is a fully built request payload. Empty content means no body
// is sent.
type RequestBody struct {
	Content     []byte
	ContentType string
}

// Empty reports whether the body carries no content.
func (b RequestBody) Empty() bool { return len(b.Content) == 0 }

// queryParam is one key=value query argument. Order of addition is
// preserved in the built URL. A nil value marks a null argument, which is
// either rendered empty or skipped depending on IgnoreNullArguments.
type queryParam struct {
	key   string
	value any
}

// ProgressFunc observes download progress. total is 0 when Content-Length
// is unknown.
type ProgressFunc func(downloaded, total int64)

// RequestCustomizer mutates a request before dispatch. Client-level
// customizers run after default headers merge.
type RequestCustomizer func(*Request)

// boolPtr and friends keep option literals short at call sites.
func boolPtr(v bool) *bool                               { return &v }
func durationPtr(v time.Duration) *time.Duration         { return &v }
func completionPtr(v CompletionOption) *CompletionOption { return &v }

// Bool returns a pointer for use in RequestOptions literals.
func Bool(v bool) *bool { return boolPtr(v) }

// Duration returns a pointer for use in RequestOptions literals.
func Duration(v time.Duration) *time.Duration { return durationPtr(v) }

// Completion returns a pointer for use in RequestOptions literals.
func Completion(v CompletionOption) *CompletionOption { return completionPtr(v) }
