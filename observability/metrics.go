package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Auth metrics
	KeyValidationsTotal *prometheus.CounterVec

	// Rate limit metrics
	RateLimitDecisionsTotal *prometheus.CounterVec
	RateLimitFailOpenTotal  prometheus.Counter

	// Job metrics
	JobTransitionsTotal *prometheus.CounterVec
	JobsInFlight        prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// sizeBuckets are histogram buckets for response sizes (in bytes)
var sizeBuckets = []float64{64, 256, 1024, 4096, 16384, 65536, 262144}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "media_gateway",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "media_gateway",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method", "path"},
		),
		KeyValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "auth",
				Name:      "key_validations_total",
				Help:      "Total number of API key validations by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions by outcome and tier",
			},
			[]string{"outcome", "tier"},
		),
		RateLimitFailOpenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "ratelimit",
				Name:      "fail_open_total",
				Help:      "Total number of requests admitted because the rate limit store failed",
			},
		),
		JobTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "jobs",
				Name:      "transitions_total",
				Help:      "Total number of job state transitions",
			},
			[]string{"from", "to"},
		),
		JobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "media_gateway",
				Subsystem: "jobs",
				Name:      "in_flight",
				Help:      "Number of jobs currently being processed",
			},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "media_gateway",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "db",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "media_gateway",
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "media_gateway",
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance with the default registerer
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance, initializing it if needed
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// SetMetrics replaces the global metrics instance (used by tests)
func SetMetrics(m *Metrics) {
	globalMetrics = m
}

// RecordHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordKeyValidation records an API key validation outcome
func (m *Metrics) RecordKeyValidation(outcome string) {
	m.KeyValidationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitDecision records a rate limit decision
func (m *Metrics) RecordRateLimitDecision(outcome, tier string) {
	m.RateLimitDecisionsTotal.WithLabelValues(outcome, tier).Inc()
}

// RecordRateLimitFailOpen records a request admitted because the store failed
func (m *Metrics) RecordRateLimitFailOpen() {
	m.RateLimitFailOpenTotal.Inc()
}

// RecordJobTransition records a job state transition
func (m *Metrics) RecordJobTransition(from, to string) {
	m.JobTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordDBQuery records a database query with its duration
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// SetCircuitBreakerState sets the current circuit breaker state
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}
