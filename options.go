package fluent

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Option configures a Client during New.
type Option func(*Client)

// WithBaseURL sets the base URL that relative resources are joined to.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithDefaultHeader sets a default header applied to every request that
// does not set the key itself.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) { c.defaultHeaders.Set(key, value) }
}

// WithUserAgent replaces the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.defaultHeaders.Set("User-Agent", ua) }
}

// WithAPIKey sets a default credential header, typically "Apikey".
func WithAPIKey(header, key string) Option {
	return func(c *Client) { c.defaultHeaders.Set(header, key) }
}

// WithTimeout sets the default per-exchange timeout. It bounds a single
// attempt, not the whole retry loop.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultOptions.Timeout = durationPtr(d) }
}

// WithDefaultOptions replaces the client's default request options.
func WithDefaultOptions(opts RequestOptions) Option {
	return func(c *Client) { c.defaultOptions = opts }
}

// WithIgnoreHTTPErrors makes non-2xx responses return as plain responses
// by default instead of typed errors.
func WithIgnoreHTTPErrors(ignore bool) Option {
	return func(c *Client) { c.defaultOptions.IgnoreHTTPErrors = boolPtr(ignore) }
}

// WithTransport replaces the transport. Useful for tests and for wrapping
// the exchange with custom behavior.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithHTTPClient runs exchanges through a caller-owned http.Client, keeping
// its connection pool and TLS settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.transport = NewHTTPTransport(hc) }
}

// WithLogger attaches a structured logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSimpleLogger attaches the built-in stderr logger.
func WithSimpleLogger() Option {
	return func(c *Client) { c.logger = NewSimpleLogger() }
}

// WithZapLogger attaches a zap-backed logger.
func WithZapLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = NewZapLogger(l)
		}
	}
}

// WithDebug enables debug logging with the default flags.
func WithDebug() Option {
	return func(c *Client) { c.debug = DefaultDebugConfig() }
}

// WithDebugConfig enables debug logging with explicit flags.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(c *Client) { c.debug = cfg }
}

// WithRequestIDGenerator overrides how per-request correlation IDs are
// generated for debug logs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithMetrics attaches a metrics collector registered against the default
// prometheus registerer.
func WithMetrics() Option {
	return func(c *Client) { c.metrics = NewMetricsCollector() }
}

// WithMetricsCollector attaches a caller-built collector, for custom
// registries or namespaces.
func WithMetricsCollector(m *MetricsCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithFilter registers a client-wide filter under a kind tag.
func WithFilter(kind FilterKind, f Filter) Option {
	return func(c *Client) { c.filters.Add(kind, f) }
}

// WithDefaultErrorFilter registers the filter that maps non-2xx responses
// to typed errors.
func WithDefaultErrorFilter() Option {
	return WithFilter(KindDefaultError, NewDefaultErrorFilter())
}

// WithLoggingFilter registers an exchange-logging filter using the
// client's logger. Apply WithLogger first.
func WithLoggingFilter(detail LogDetail) Option {
	return func(c *Client) {
		c.filters.Add(KindLogging, NewLoggingFilter(c.logger, detail))
	}
}

// WithRetryConfigs builds a coordinator over the given policies.
func WithRetryConfigs(configs ...RetryConfig) Option {
	return func(c *Client) { c.coordinator = NewRetryCoordinator(configs...) }
}

// WithRetryCoordinator attaches a prebuilt coordinator.
func WithRetryCoordinator(coord *RetryCoordinator) Option {
	return func(c *Client) { c.coordinator = coord }
}

// WithRateLimiter attaches a limiter and registers its enforcement filter.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) {
		c.rateLimiter = rl
		if rl != nil {
			c.filters.Add(KindRateLimit, NewRateLimitFilter(rl))
		}
	}
}

// WithCircuitBreaker registers a breaker filter guarding every request.
func WithCircuitBreaker(cfg CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.filters.Add(KindCircuitBreaker, NewCircuitBreakerFilter(NewCircuitBreaker(cfg)))
	}
}

// WithRequestCustomizer registers a customizer run against every request
// after default headers merge.
func WithRequestCustomizer(fn RequestCustomizer) Option {
	return func(c *Client) {
		if fn != nil {
			c.customizers = append(c.customizers, fn)
		}
	}
}
