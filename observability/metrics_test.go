package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	// Verify all metrics are initialized
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.HTTPRequestDuration == nil {
		t.Error("HTTPRequestDuration is nil")
	}
	if m.HTTPResponseSize == nil {
		t.Error("HTTPResponseSize is nil")
	}
	if m.KeyValidationsTotal == nil {
		t.Error("KeyValidationsTotal is nil")
	}
	if m.RateLimitDecisionsTotal == nil {
		t.Error("RateLimitDecisionsTotal is nil")
	}
	if m.RateLimitFailOpenTotal == nil {
		t.Error("RateLimitFailOpenTotal is nil")
	}
	if m.JobTransitionsTotal == nil {
		t.Error("JobTransitionsTotal is nil")
	}
	if m.JobsInFlight == nil {
		t.Error("JobsInFlight is nil")
	}
	if m.DBQueryDuration == nil {
		t.Error("DBQueryDuration is nil")
	}
	if m.DBQueryTotal == nil {
		t.Error("DBQueryTotal is nil")
	}
	if m.DBErrorsTotal == nil {
		t.Error("DBErrorsTotal is nil")
	}
	if m.CircuitBreakerState == nil {
		t.Error("CircuitBreakerState is nil")
	}
	if m.CircuitBreakerTrips == nil {
		t.Error("CircuitBreakerTrips is nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/api/jobs", "200", 50*time.Millisecond, 128)
	m.RecordHTTPRequest("GET", "/api/jobs", "200", 30*time.Millisecond, 256)
	m.RecordHTTPRequest("POST", "/api/jobs", "202", 10*time.Millisecond, 64)

	getCount := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/jobs", "200"))
	if getCount != 2 {
		t.Errorf("expected 2 GET requests, got %f", getCount)
	}
	postCount := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/jobs", "202"))
	if postCount != 1 {
		t.Errorf("expected 1 POST request, got %f", postCount)
	}
}

func TestRecordKeyValidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordKeyValidation("ok")
	m.RecordKeyValidation("ok")
	m.RecordKeyValidation("malformed")

	if got := testutil.ToFloat64(m.KeyValidationsTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok validations, got %f", got)
	}
	if got := testutil.ToFloat64(m.KeyValidationsTotal.WithLabelValues("malformed")); got != 1 {
		t.Errorf("expected 1 malformed validation, got %f", got)
	}
}

func TestRecordRateLimitDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRateLimitDecision("allowed", "download")
	m.RecordRateLimitDecision("rejected", "download")
	m.RecordRateLimitDecision("allowed", "admin")

	if got := testutil.ToFloat64(m.RateLimitDecisionsTotal.WithLabelValues("allowed", "download")); got != 1 {
		t.Errorf("expected 1 allowed download decision, got %f", got)
	}
	if got := testutil.ToFloat64(m.RateLimitDecisionsTotal.WithLabelValues("rejected", "download")); got != 1 {
		t.Errorf("expected 1 rejected download decision, got %f", got)
	}
}

func TestRecordRateLimitFailOpen(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRateLimitFailOpen()
	m.RecordRateLimitFailOpen()

	if got := testutil.ToFloat64(m.RateLimitFailOpenTotal); got != 2 {
		t.Errorf("expected 2 fail-open events, got %f", got)
	}
}

func TestRecordJobTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordJobTransition("queued", "processing")
	m.RecordJobTransition("processing", "failed")
	m.RecordJobTransition("failed", "queued")
	m.RecordJobTransition("queued", "processing")

	if got := testutil.ToFloat64(m.JobTransitionsTotal.WithLabelValues("queued", "processing")); got != 2 {
		t.Errorf("expected 2 claim transitions, got %f", got)
	}
	if got := testutil.ToFloat64(m.JobTransitionsTotal.WithLabelValues("failed", "queued")); got != 1 {
		t.Errorf("expected 1 retry transition, got %f", got)
	}
}

func TestJobsInFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.JobsInFlight.Inc()
	m.JobsInFlight.Inc()
	m.JobsInFlight.Dec()

	if got := testutil.ToFloat64(m.JobsInFlight); got != 1 {
		t.Errorf("expected 1 job in flight, got %f", got)
	}
}

func TestRecordDBQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDBQuery("select", "jobs", 5*time.Millisecond)
	m.RecordDBQuery("select", "jobs", 3*time.Millisecond)
	m.RecordDBError("update", "credentials")

	if got := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("select", "jobs")); got != 2 {
		t.Errorf("expected 2 queries, got %f", got)
	}
	if got := testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("update", "credentials")); got != 1 {
		t.Errorf("expected 1 error, got %f", got)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetCircuitBreakerState("extractor", 2)
	m.RecordCircuitBreakerTrip("extractor")

	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("extractor")); got != 2 {
		t.Errorf("expected state 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerTrips.WithLabelValues("extractor")); got != 1 {
		t.Errorf("expected 1 trip, got %f", got)
	}
}

func TestGetMetrics_LazyInit(t *testing.T) {
	saved := globalMetrics
	defer SetMetrics(saved)

	SetMetrics(NewMetrics(prometheus.NewRegistry()))
	if GetMetrics() == nil {
		t.Fatal("GetMetrics returned nil")
	}
}
