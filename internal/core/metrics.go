package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the messaging core. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	activeConnections prometheus.Gauge
	activeUsers       prometheus.Gauge
	connectionsTotal  prometheus.Counter

	commands          *prometheus.CounterVec // by command kind
	rejected          *prometheus.CounterVec // by error code
	messagesPersisted *prometheus.CounterVec // by target
	duplicateSends    prometheus.Counter

	fanout        *prometheus.HistogramVec // by target
	deliveryDrops prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "projectchat_active_connections",
			Help: "Current number of registered connections",
		}),
		activeUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "projectchat_active_users",
			Help: "Current number of users with at least one connection",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectchat_connections_total",
			Help: "Total number of connections registered",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projectchat_commands_total",
			Help: "Commands received by kind",
		}, []string{"kind"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projectchat_commands_rejected_total",
			Help: "Commands rejected by error code",
		}, []string{"code"}),
		messagesPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projectchat_messages_persisted_total",
			Help: "Messages persisted by target type",
		}, []string{"target"}),
		duplicateSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectchat_duplicate_sends_total",
			Help: "Sends resolved to an existing message by client key",
		}),
		fanout: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "projectchat_fanout_connections",
			Help:    "Number of connections each message was pushed to",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"target"}),
		deliveryDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectchat_delivery_drops_total",
			Help: "Pushes dropped because the connection was closed or full",
		}),
	}
}

func (m *Metrics) connectionsChanged(registry *Registry, added bool) {
	if m == nil {
		return
	}
	if added {
		m.connectionsTotal.Inc()
	}
	m.activeConnections.Set(float64(registry.Len()))
	m.activeUsers.Set(float64(registry.Users()))
}

func (m *Metrics) commandReceived(kind CommandKind) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) commandRejected(code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(code).Inc()
}

func (m *Metrics) messagePersisted(target string, created bool) {
	if m == nil {
		return
	}
	if !created {
		m.duplicateSends.Inc()
		return
	}
	m.messagesPersisted.WithLabelValues(target).Inc()
}

func (m *Metrics) delivered(target string, pushed, dropped int) {
	if m == nil {
		return
	}
	m.fanout.WithLabelValues(target).Observe(float64(pushed))
	if dropped > 0 {
		m.deliveryDrops.Add(float64(dropped))
	}
}
