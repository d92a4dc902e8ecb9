// Package metrics exposes Prometheus collectors for the bot and its
// protocol session.
//
// Each Metrics owns its registry, so several bots (or tests) in one
// process never collide on collector names.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nmdcbot"

// Metrics implements nmdc.Metrics and carries the bot-level collectors.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived   *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	commandsSent     *prometheus.CounterVec
	reconnects       prometheus.Counter
	searchesAnswered prometheus.Counter
	responsesSent    *prometheus.CounterVec
	usersOnline      prometheus.Gauge
}

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		framesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_received_total",
				Help:      "Protocol frames received from the hub",
			},
			[]string{"command"},
		),
		framesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Protocol frames ignored by the engine",
			},
			[]string{"reason"},
		),
		commandsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_sent_total",
				Help:      "Protocol commands sent to the hub or over UDP",
			},
			[]string{"command"},
		),
		reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Reconnect attempts after a lost session",
			},
		),
		searchesAnswered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_answered_total",
				Help:      "Search results sent in reply to hub searches",
			},
		),
		responsesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_sent_total",
				Help:      "Automatic chat responses sent",
			},
			[]string{"scope"},
		),
		usersOnline: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "users_online",
				Help:      "Users currently in the hub roster",
			},
		),
	}
}

// FrameReceived implements nmdc.Metrics.
func (m *Metrics) FrameReceived(command string) {
	m.framesReceived.WithLabelValues(command).Inc()
}

// FrameDropped implements nmdc.Metrics.
func (m *Metrics) FrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

// CommandSent implements nmdc.Metrics.
func (m *Metrics) CommandSent(command string) {
	m.commandsSent.WithLabelValues(command).Inc()
}

// Reconnect counts a reconnect attempt.
func (m *Metrics) Reconnect() {
	m.reconnects.Inc()
}

// SearchAnswered counts search results sent back.
func (m *Metrics) SearchAnswered(n int) {
	m.searchesAnswered.Add(float64(n))
}

// ResponseSent counts an automatic response; private selects the label.
func (m *Metrics) ResponseSent(private bool) {
	scope := "public"
	if private {
		scope = "private"
	}
	m.responsesSent.WithLabelValues(scope).Inc()
}

// SetUsersOnline sets the roster size gauge.
func (m *Metrics) SetUsersOnline(n int) {
	m.usersOnline.Set(float64(n))
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
