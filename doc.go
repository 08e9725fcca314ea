// Package fluent provides a fluent HTTP client built around composable
// reliability primitives:
//
//   - A chainable request builder (headers, query arguments, bodies, options)
//   - A priority-ordered filter chain with onion discipline (auth, logging,
//     rate limiting, error mapping, circuit breaking)
//   - Retry coordination that aggregates independent policies per failure
//     class (5xx, 429, timeouts) with exponential backoff + jitter
//   - A dual-window rate limiter driven by server headers, with persisted
//     state across restarts (file or SQLite backed)
//   - Buffered and streaming transports with throttled download progress
//   - Immutable responses with memoized string/JSON views
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area, functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied filters, retry policies and stores
//
// Typical usage:
//
//	client, err := fluent.New(
//	    fluent.WithBaseURL("https://api.example.com"),
//	    fluent.WithAPIKey("Apikey", key),
//	    fluent.WithDefaultErrorFilter(),
//	    fluent.WithRetryConfigs(
//	        fluent.NewServerErrorRetryConfig(3, 100*time.Millisecond, 5*time.Second),
//	        fluent.NewRateLimitRetryConfig(2),
//	    ),
//	    fluent.WithRateLimiter(fluent.NewRateLimiter()),
//	)
//	...
//	var out Item
//	err = client.Get("v1/items/42").Decode(ctx, &out)
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger or WithZapLogger) and enable debug flags selectively
// (WithDebug / WithDebugConfig) for insight without noise.
package fluent
