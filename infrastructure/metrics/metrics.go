// Package metrics exposes Prometheus collectors for the monitoring engine's
// own operation, distinct from the Check data it collects about monitored
// targets.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the engine registers.
type Metrics struct {
	ProbeLatency           *prometheus.HistogramVec
	ProbeResult            *prometheus.CounterVec
	SchedulerQueueDepth    prometheus.Gauge
	SchedulerDrift         *prometheus.HistogramVec
	OpenIncidents          prometheus.Gauge
	PaymentCredits         prometheus.Counter
	PaymentExhausted       prometheus.Counter
	NotificationsDelivered *prometheus.CounterVec
	NotificationLatency    *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProbeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_probe_latency_ms",
			Help:    "Probe response time in milliseconds, by kind and region.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"kind", "region"}),
		ProbeResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_probe_result_total",
			Help: "Probe outcomes, by kind, region and success.",
		}, []string{"kind", "region", "success"}),
		SchedulerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_scheduler_queue_depth",
			Help: "Number of (target, region) pairs awaiting their next probe.",
		}),
		SchedulerDrift: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_scheduler_drift_ms",
			Help:    "actual_due_at - scheduled_due_at per (target, region) tick.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"region"}),
		OpenIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_open_incidents",
			Help: "Number of currently open incidents across all targets.",
		}),
		PaymentCredits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_payment_credits_total",
			Help: "Number of idempotent wallet credits applied.",
		}),
		PaymentExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_payment_settlement_exhausted_total",
			Help: "Checks whose payment permanently failed to settle after retry exhaustion.",
		}),
		NotificationsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_notifications_delivered_total",
			Help: "Notifications delivered, by channel and transition.",
		}, []string{"channel", "transition"}),
		NotificationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_notification_latency_ms",
			Help:    "Time from state transition to successful delivery, by channel.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"channel"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_http_requests_total",
			Help: "Total number of HTTP requests, by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "monitor_http_request_duration_seconds",
			Help: "HTTP request latency in seconds, by method and path.",
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_http_requests_in_flight",
			Help: "Current number of HTTP requests being processed.",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monitor_circuit_breaker_state",
			Help: "Current circuit breaker state by name (1 for the active state, 0 otherwise): closed, open, half-open.",
		}, []string{"name", "state"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_circuit_breaker_trips_total",
			Help: "Number of times a named circuit breaker has opened.",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.ProbeLatency, m.ProbeResult, m.SchedulerQueueDepth, m.SchedulerDrift,
		m.OpenIncidents, m.PaymentCredits, m.PaymentExhausted,
		m.NotificationsDelivered, m.NotificationLatency,
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.CircuitBreakerState, m.CircuitBreakerTrips,
	)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// NewForTesting creates a Metrics bundle registered against a fresh
// registry, so concurrent tests don't collide on the global default.
func NewForTesting() *Metrics {
	return New(prometheus.NewRegistry())
}
