package fluent

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Client is the long-lived entry point. It holds base URL, default headers
// and options, the filter collection, retry coordination, an optional rate
// limiter and the transport. Configure it once, then create requests from
// any number of goroutines.
type Client struct {
	baseURL        string
	defaultHeaders Headers
	defaultOptions RequestOptions
	filters        *FilterCollection
	coordinator    *RetryCoordinator
	rateLimiter    *RateLimiter
	customizers    []RequestCustomizer
	transport      Transport
	logger         Logger
	metrics        *MetricsCollector
	debug          *DebugConfig

	validationError error
}

// New creates a client with the given options applied in order, then
// validates the configuration. An invalid configuration is reported here
// and again by every request created from the client.
func New(options ...Option) (*Client, error) {
	c := &Client{
		defaultHeaders: Headers{},
		filters:        NewFilterCollection(),
		transport:      NewHTTPTransport(nil),
		logger:         noopLogger{},
	}
	c.defaultHeaders.Set("User-Agent", defaultUserAgent())

	for _, opt := range options {
		opt(c)
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
		return nil, err
	}
	return c, nil
}

// ValidateConfiguration checks the client for setup mistakes and returns a
// ConfigurationError listing every problem found.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.baseURL != "" && !isAbsoluteURL(c.baseURL) {
		problems = append(problems, fmt.Sprintf("base URL %q must start with http:// or https://", c.baseURL))
	}
	if c.transport == nil {
		problems = append(problems, "transport must not be nil")
	}
	if opt := c.defaultOptions.Timeout; opt != nil && *opt < 0 {
		problems = append(problems, "default timeout must not be negative")
	}
	if c.coordinator != nil && c.coordinator.MaxRetries() < 0 {
		problems = append(problems, "retry coordinator reports negative max retries")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Filters returns the client's filter collection for inspection or
// mutation during setup.
func (c *Client) Filters() *FilterCollection { return c.filters }

// RateLimiter returns the attached limiter, or nil.
func (c *Client) RateLimiter() *RateLimiter { return c.rateLimiter }

// Coordinator returns the attached retry coordinator, or nil.
func (c *Client) Coordinator() *RetryCoordinator { return c.coordinator }

// NewRequest creates a request for an arbitrary method.
func (c *Client) NewRequest(method Method, resource string) *Request {
	r := newRequest(c, method, resource)
	if c.validationError != nil {
		r.fail(c.validationError)
	}
	return r
}

// Get creates a GET request for resource.
func (c *Client) Get(resource string) *Request { return c.NewRequest(MethodGet, resource) }

// Post creates a POST request for resource.
func (c *Client) Post(resource string) *Request { return c.NewRequest(MethodPost, resource) }

// Put creates a PUT request for resource.
func (c *Client) Put(resource string) *Request { return c.NewRequest(MethodPut, resource) }

// Patch creates a PATCH request for resource.
func (c *Client) Patch(resource string) *Request { return c.NewRequest(MethodPatch, resource) }

// Delete creates a DELETE request for resource.
func (c *Client) Delete(resource string) *Request { return c.NewRequest(MethodDelete, resource) }

// Head creates a HEAD request for resource.
func (c *Client) Head(resource string) *Request { return c.NewRequest(MethodHead, resource) }

// SetUserAgent replaces the default User-Agent header.
func (c *Client) SetUserAgent(ua string) {
	c.defaultHeaders.Set("User-Agent", ua)
}

// SetAuthentication sets a default credential header for every request.
func (c *Client) SetAuthentication(header, value string) {
	c.defaultHeaders.Set(header, value)
}

// SetBearerAuth sets a default Authorization header to "Bearer <token>".
func (c *Client) SetBearerAuth(token string) {
	c.SetAuthentication("Authorization", "Bearer "+token)
}

// SetBasicAuth sets a default Authorization header from credentials.
func (c *Client) SetBasicAuth(username, password string) {
	cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	c.SetAuthentication("Authorization", "Basic "+cred)
}

// ClearAuthentication removes any default Authorization header.
func (c *Client) ClearAuthentication() {
	c.defaultHeaders.Del("Authorization")
}

// AddDefault sets a default header applied to every request that has not
// set the key itself.
func (c *Client) AddDefault(key, value string) {
	c.defaultHeaders.Set(key, value)
}

// ClearDefaults drops every default header, including User-Agent.
func (c *Client) ClearDefaults() {
	c.defaultHeaders = Headers{}
}

// AddCustomizer registers a customizer run against every request after
// default headers merge.
func (c *Client) AddCustomizer(fn RequestCustomizer) {
	if fn != nil {
		c.customizers = append(c.customizers, fn)
	}
}

// SaveRateLimitState persists the limiter state through its store. It is a
// convenience for shutdown paths.
func (c *Client) SaveRateLimitState(ctx context.Context) error {
	if c.rateLimiter == nil {
		return &ConfigurationError{Problems: []string{"client has no rate limiter attached"}}
	}
	return c.rateLimiter.SaveState(ctx)
}

// RateLimitStatus returns the limiter snapshot, or a zero status when no
// limiter is attached.
func (c *Client) RateLimitStatus() RateLimitStatus {
	if c.rateLimiter == nil {
		return RateLimitStatus{}
	}
	return c.rateLimiter.Status()
}

func defaultUserAgent() string {
	return fmt.Sprintf("fluent/%s", strings.TrimPrefix(Version, "v"))
}
