package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for client_requests_total
const (
	OutcomeOK             = "ok"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
)

// MetricsCollector records client-side request metrics on its own registry
type MetricsCollector struct {
	registry *prometheus.Registry

	requestCounter     *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	sendsInFlight      prometheus.Gauge
	staleResults       *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
}

// NewMetricsCollector creates a collector with all client metrics registered
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		requestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "client_requests_total",
				Help: "Backend requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "client_request_duration_seconds",
				Help:    "Backend request latency including body decode",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint", "status_code"},
		),
		sendsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "client_sends_in_flight",
				Help: "1 while the send trigger is disabled",
			},
		),
		staleResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "client_stale_results_total",
				Help: "Results dropped because a newer trigger owns the display",
			},
			[]string{"operation"},
		),
		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "client_validation_failures_total",
				Help: "Sends rejected before any network call",
			},
			[]string{"reason"},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one backend request and, when a response was
// received (statusCode > 0), observes its latency.
func (mc *MetricsCollector) RecordRequest(endpoint, outcome string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestCounter.WithLabelValues(endpoint, outcome).Inc()
	if statusCode > 0 {
		mc.requestDuration.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Observe(duration.Seconds())
	}
}

// SetSendInFlight mirrors the disabled state of the send trigger
func (mc *MetricsCollector) SetSendInFlight(inFlight bool) {
	if mc == nil {
		return
	}
	if inFlight {
		mc.sendsInFlight.Set(1)
	} else {
		mc.sendsInFlight.Set(0)
	}
}

func (mc *MetricsCollector) IncrementStaleResults(operation string) {
	if mc == nil {
		return
	}
	mc.staleResults.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) IncrementValidationFailures(reason string) {
	if mc == nil {
		return
	}
	mc.validationFailures.WithLabelValues(reason).Inc()
}

// LatencyTracker records named checkpoints relative to a start time.
// A nil tracker ignores checkpoints and reports no fields.
type LatencyTracker struct {
	startTime     time.Time
	correlationID string
	checkpoints   map[string]time.Duration
	mu            sync.RWMutex
}

func NewLatencyTracker(correlationID string) *LatencyTracker {
	return &LatencyTracker{
		startTime:     time.Now(),
		correlationID: correlationID,
		checkpoints:   make(map[string]time.Duration),
	}
}

// Checkpoint records the time elapsed since start under name
func (lt *LatencyTracker) Checkpoint(name string) {
	if lt == nil {
		return
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.checkpoints[name] = time.Since(lt.startTime)
}

func (lt *LatencyTracker) Elapsed() time.Duration {
	return time.Since(lt.startTime)
}

func (lt *LatencyTracker) CorrelationID() string {
	if lt == nil {
		return ""
	}
	return lt.correlationID
}

// Fields returns the checkpoints in milliseconds, keyed for log fields
func (lt *LatencyTracker) Fields() map[string]interface{} {
	if lt == nil {
		return map[string]interface{}{}
	}
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	fields := make(map[string]interface{}, len(lt.checkpoints))
	for name, d := range lt.checkpoints {
		fields[name+"_ms"] = float64(d.Microseconds()) / 1000
	}
	return fields
}
