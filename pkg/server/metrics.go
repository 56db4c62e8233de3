package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"yachat/pkg/protocol"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Connection metrics
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter

	// Session metrics
	activeSessions prometheus.Gauge

	// Command metrics
	commandsTotal *prometheus.CounterVec // by command and outcome

	// Notification metrics
	notificationsDelivered prometheus.Counter
	notificationsDropped   prometheus.Counter
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yachat_active_connections",
				Help: "Current number of live client connections",
			},
		),
		connectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yachat_connections_total",
				Help: "Total number of accepted client connections",
			},
		),
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yachat_active_sessions",
				Help: "Current number of authenticated sessions",
			},
		),
		commandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yachat_commands_total",
				Help: "Total number of handled commands by outcome",
			},
			[]string{"command", "outcome"},
		),
		notificationsDelivered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yachat_notifications_delivered_total",
				Help: "Total number of NOTIFY frames delivered",
			},
		),
		notificationsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yachat_notifications_dropped_total",
				Help: "Total number of NOTIFY frames silently dropped",
			},
		),
	}
}

// RecordActiveConnections updates the live connection gauge.
func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

// RecordConnectionOpened increments the accepted connection counter.
func (m *Metrics) RecordConnectionOpened() {
	m.connectionsTotal.Inc()
}

// RecordActiveSessions updates the authenticated session gauge.
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordCommand counts one handled command with its outcome.
func (m *Metrics) RecordCommand(cmd protocol.Command, status protocol.Status) {
	m.commandsTotal.WithLabelValues(cmd.String(), status.String()).Inc()
}

// RecordMalformedFrame counts a frame rejected before dispatch. Kept under
// its own label so parse failures never mix with real command counts.
func (m *Metrics) RecordMalformedFrame() {
	m.commandsTotal.WithLabelValues("malformed", protocol.StatusFail.String()).Inc()
}

// RecordUnknownCommand counts a frame with an unrecognized command code, all
// under one fixed label to keep the cardinality bounded.
func (m *Metrics) RecordUnknownCommand() {
	m.commandsTotal.WithLabelValues("unknown", protocol.StatusFail.String()).Inc()
}

// RecordNotificationDelivered counts a delivered NOTIFY frame.
func (m *Metrics) RecordNotificationDelivered() {
	m.notificationsDelivered.Inc()
}

// RecordNotificationDropped counts a NOTIFY frame that could not be
// delivered.
func (m *Metrics) RecordNotificationDropped() {
	m.notificationsDropped.Inc()
}
