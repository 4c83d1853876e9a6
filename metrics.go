package tautan

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline and
// its reliability layers. It is safe for concurrent use, and every method is a
// no-op on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimitDenied *prometheus.CounterVec
	deduplicated    *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	refreshShared   prometheus.Counter
	logoutsTotal    *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)

	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_requests_total",
				Help: "Total number of API calls made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tautan_request_duration_seconds",
				Help:    "Duration of API calls in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tautan_requests_in_flight",
				Help: "Number of API calls currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "kind"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tautan_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		rateLimitDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_rate_limit_denied_total",
				Help: "Total number of attempts denied by the client-side rate limiter",
			},
			[]string{"method", "endpoint"},
		),
		deduplicated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_deduplicated_requests_total",
				Help: "Total number of calls served by an identical in-flight request",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"method", "endpoint"},
		),
		cacheSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tautan_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_token_refresh_total",
				Help: "Total number of token refresh exchanges by result",
			},
			[]string{"result"},
		),
		refreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tautan_token_refresh_duration_seconds",
				Help:    "Duration of token refresh exchanges in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		refreshShared: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tautan_token_refresh_shared_total",
				Help: "Total number of callers that joined an in-flight refresh",
			},
		),
		logoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_logouts_total",
				Help: "Total number of logouts by cause",
			},
			[]string{"forced"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tautan_errors_total",
				Help: "Total number of errors returned to callers",
			},
			[]string{"kind", "method", "endpoint"},
		),
	}

	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments retry counter for the kind that caused it.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, kind ErrorKind) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, string(kind)).Inc()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRateLimitDenied increments the client-side denial counter.
func (mc *MetricsCollector) RecordRateLimitDenied(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.rateLimitDenied.WithLabelValues(method, endpoint).Inc()
}

// RecordDeduplicated counts a call that shared another call's response.
func (mc *MetricsCollector) RecordDeduplicated(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.deduplicated.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordRefresh counts a refresh exchange and observes its duration.
func (mc *MetricsCollector) RecordRefresh(result string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.refreshTotal.WithLabelValues(result).Inc()
	mc.refreshDuration.Observe(duration.Seconds())
}

// RecordRefreshShared counts a caller that received another caller's refresh result.
func (mc *MetricsCollector) RecordRefreshShared() {
	if mc == nil {
		return
	}

	mc.refreshShared.Inc()
}

// RecordLogout counts a logout.
func (mc *MetricsCollector) RecordLogout(forced bool) {
	if mc == nil {
		return
	}

	mc.logoutsTotal.WithLabelValues(strconv.FormatBool(forced)).Inc()
}

// RecordError increments error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(string(kind), method, endpoint).Inc()
}

// GetRegistry exposes the underlying prometheus registry, or nil when the
// collector was built on a plain Registerer.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
