// Package metrics holds the Prometheus collectors for the real-time layer.
// All methods are safe on a nil *Metrics so components can run unmetered.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatspace"

type Metrics struct {
	connections prometheus.Gauge
	onlineUsers prometheus.Gauge
	events      *prometheus.CounterVec
	deliveries  prometheus.Counter
	slowClients prometheus.Counter
	messages    prometheus.Counter
	authFailed  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_connections",
			Help: "Live duplex connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online_users",
			Help: "Identities with at least one live connection.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_events_total",
			Help: "Inbound connection events by type.",
		}, []string{"type"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_deliveries_total",
			Help: "Outbound events queued to connections.",
		}),
		slowClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_slow_clients_total",
			Help: "Connections closed because their outbound queue was full.",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_posted_total",
			Help: "Messages persisted and fanned out.",
		}),
		authFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_failures_total",
			Help: "Rejected credentials by surface (http, ws, login).",
		}, []string{"surface"}),
	}
	reg.MustRegister(m.connections, m.onlineUsers, m.events, m.deliveries, m.slowClients, m.messages, m.authFailed)
	return m
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m != nil {
		m.onlineUsers.Set(float64(n))
	}
}

func (m *Metrics) Event(kind string) {
	if m != nil {
		m.events.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Delivered(n int) {
	if m != nil && n > 0 {
		m.deliveries.Add(float64(n))
	}
}

func (m *Metrics) SlowClient() {
	if m != nil {
		m.slowClients.Inc()
	}
}

func (m *Metrics) MessagePosted() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) AuthFailed(surface string) {
	if m != nil {
		m.authFailed.WithLabelValues(surface).Inc()
	}
}
