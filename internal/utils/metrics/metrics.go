package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Operation metrics
	OperationsTotal *prometheus.CounterVec

	// Provider metrics
	ProviderCallDuration *prometheus.HistogramVec
	ProviderBreakerState *prometheus.GaugeVec

	// Task metrics
	TasksTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered on reg.
// A nil reg selects the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "payrecon"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Notification metrics
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "deliveries_total",
				Help:      "Total number of provider notifications by outcome",
			},
			[]string{"event_code", "outcome"}, // outcome: dropped, queued, completed, skipped, retry_later, failed
		),

		// Operation metrics
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "requests_total",
				Help:      "Total number of payment operations by result",
			},
			[]string{"operation", "result"}, // result: success, rejected, error
		),

		// Provider metrics
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Payment provider call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "operation"},
		),
		ProviderBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),

		// Task metrics
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "executions_total",
				Help:      "Total number of task executions by status",
			},
			[]string{"type", "status"}, // status: completed, retrying, failed
		),
	}
}

// --- Convenience methods ---
// All methods are safe on a nil *Metrics.

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotification records the outcome of a notification delivery.
func (m *Metrics) RecordNotification(eventCode, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(eventCode, outcome).Inc()
}

// RecordOperation records the result of a payment operation.
func (m *Metrics) RecordOperation(operation, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordProviderCall records a provider call.
func (m *Metrics) RecordProviderCall(provider, operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// SetBreakerState sets the circuit breaker state of a provider.
func (m *Metrics) SetBreakerState(provider string, state int) {
	if m == nil {
		return
	}
	m.ProviderBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordTask records a task execution.
func (m *Metrics) RecordTask(taskType, status string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(taskType, status).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
