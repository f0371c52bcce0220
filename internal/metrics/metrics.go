package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for qrlink.
// The Record* helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Command execution metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// REST transport metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Session state machine metrics
	SessionTransitions   *prometheus.CounterVec
	SessionDiscarded     *prometheus.CounterVec
	TokenRotations       *prometheus.CounterVec
	SessionAuthenticated prometheus.Gauge

	// Realtime channel metrics
	RealtimeFrames      *prometheus.CounterVec
	RealtimeConnections *prometheus.CounterVec
	RealtimeConnected   prometheus.Gauge

	// Linking metrics
	LinkAttempts *prometheus.CounterVec

	// Credential store metrics
	StoreOperations *prometheus.CounterVec

	// Errors by code
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qrlink_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_http_requests_total",
				Help: "REST requests by route and outcome (ok, request_failed, network_unavailable)",
			},
			[]string{"method", "route", "outcome"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qrlink_http_request_duration_seconds",
				Help:    "REST request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_session_transitions_total",
				Help: "Session state machine transitions by event and result (applied, refused)",
			},
			[]string{"event", "result"},
		),
		SessionDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_session_discarded_updates_total",
				Help: "Updates discarded because their generation or channel epoch was stale",
			},
			[]string{"source"},
		),
		TokenRotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_session_token_rotations_total",
				Help: "Access token rotations applied, by whether the realtime channel was reopened",
			},
			[]string{"reconnected"},
		),
		SessionAuthenticated: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrlink_session_authenticated",
				Help: "1 while the session is authenticated",
			},
		),

		RealtimeFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_realtime_frames_total",
				Help: "Inbound realtime frames by kind (profile_updated, ignored, malformed)",
			},
			[]string{"kind"},
		),
		RealtimeConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_realtime_connection_events_total",
				Help: "Realtime connection lifecycle events",
			},
			[]string{"event"},
		),
		RealtimeConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrlink_realtime_connected",
				Help: "1 while a realtime connection is established",
			},
		),

		LinkAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_link_attempts_total",
				Help: "QR link attempts by outcome",
			},
			[]string{"outcome"},
		),

		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_credential_store_operations_total",
				Help: "Credential store operations by backend, operation and success",
			},
			[]string{"backend", "operation", "success"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrlink_errors_total",
				Help: "Errors by code",
			},
			[]string{"error_code"},
		),
	}
}

// RecordCommand records a CLI command execution.
func (m *Metrics) RecordCommand(command string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.CommandExecutions.WithLabelValues(command, strconv.FormatBool(success)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordHTTP records one REST request.
func (m *Metrics) RecordHTTP(method, route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, outcome).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordTransition records a session transition attempt.
func (m *Metrics) RecordTransition(event string, applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "refused"
	}
	m.SessionTransitions.WithLabelValues(event, result).Inc()
}

// RecordDiscard records a stale update that was dropped.
func (m *Metrics) RecordDiscard(source string) {
	if m == nil {
		return
	}
	m.SessionDiscarded.WithLabelValues(source).Inc()
}

// RecordRotation records an applied token rotation.
func (m *Metrics) RecordRotation(reconnected bool) {
	if m == nil {
		return
	}
	m.TokenRotations.WithLabelValues(strconv.FormatBool(reconnected)).Inc()
}

// SetAuthenticated updates the session gauge.
func (m *Metrics) SetAuthenticated(authenticated bool) {
	if m == nil {
		return
	}
	m.SessionAuthenticated.Set(boolToFloat(authenticated))
}

// RecordFrame records an inbound realtime frame.
func (m *Metrics) RecordFrame(kind string) {
	if m == nil {
		return
	}
	m.RealtimeFrames.WithLabelValues(kind).Inc()
}

// RecordConnection records a realtime lifecycle event and updates the gauge.
func (m *Metrics) RecordConnection(event string, connected bool) {
	if m == nil {
		return
	}
	m.RealtimeConnections.WithLabelValues(event).Inc()
	m.RealtimeConnected.Set(boolToFloat(connected))
}

// RecordLink records a link attempt outcome.
func (m *Metrics) RecordLink(outcome string) {
	if m == nil {
		return
	}
	m.LinkAttempts.WithLabelValues(outcome).Inc()
}

// RecordStore records a credential store operation.
func (m *Metrics) RecordStore(backend, operation string, success bool) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(backend, operation, strconv.FormatBool(success)).Inc()
}

// RecordError records an error by code.
func (m *Metrics) RecordError(code string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
