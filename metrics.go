package fluent

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle.
// It is safe for concurrent use, and every recording method is a no-op on
// a nil collector so instrumentation can stay unconditional.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	retriesTotal *prometheus.CounterVec

	rateLimitRemaining *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	downloadBytes prometheus.Counter
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, for tests and multi-client processes.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluent_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluent_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code"},
		),
		requestsInFlight: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "fluent_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluent_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method"},
		),
		rateLimitRemaining: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fluent_rate_limit_remaining",
				Help: "Remaining requests in each rate limit window",
			},
			[]string{"window"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluent_errors_total",
				Help: "Total number of request errors by kind",
			},
			[]string{"kind"},
		),
		downloadBytes: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "fluent_download_bytes_total",
				Help: "Total bytes streamed to disk by downloads",
			},
		),
	}
}

func (m *MetricsCollector) incInFlight() {
	if m == nil {
		return
	}
	m.requestsInFlight.Inc()
}

func (m *MetricsCollector) decInFlight() {
	if m == nil {
		return
	}
	m.requestsInFlight.Dec()
}

func (m *MetricsCollector) recordRequest(method string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method, code).Observe(elapsed.Seconds())
}

func (m *MetricsCollector) recordRetry(method string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(method).Inc()
}

func (m *MetricsCollector) recordError(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) recordDownloadBytes(n int64) {
	if m == nil {
		return
	}
	m.downloadBytes.Add(float64(n))
}

// RecordRateLimit publishes the remaining counters of a limiter snapshot.
// Wire it to a RateLimiter via OnLowLimit or a periodic status poll.
func (m *MetricsCollector) RecordRateLimit(status RateLimitStatus) {
	if m == nil {
		return
	}
	m.rateLimitRemaining.WithLabelValues("daily").Set(float64(status.DailyRemaining))
	m.rateLimitRemaining.WithLabelValues("hourly").Set(float64(status.HourlyRemaining))
}

// errorKind maps an error to its taxonomy label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrAPI):
		return "api"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrRetryBudgetExceeded):
		return "retry_budget"
	default:
		return "other"
	}
}
