// Package metrics exposes relay and lifecycle counters to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gomodmail/internal/events"
)

const namespace = "modmail"

type Metrics struct {
	registry *prometheus.Registry

	relayed       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	closed        *prometheus.CounterVec
	transcriptLog *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_messages_total",
			Help:      "Messages relayed, by direction.",
		}, []string{"direction"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_failures_total",
			Help:      "Relay failures, by kind.",
		}, []string{"kind"}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threads_closed_total",
			Help:      "Threads closed, by trigger.",
		}, []string{"trigger"}),
		transcriptLog: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_rows_total",
			Help:      "Transcript rows written, by message type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.relayed,
		m.failures,
		m.closed,
		m.transcriptLog,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RelayDelivered(direction string) {
	m.relayed.WithLabelValues(direction).Inc()
}

func (m *Metrics) RelayFailed(kind string) {
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ThreadClosed(trigger string) {
	m.closed.WithLabelValues(trigger).Inc()
}

// Name and Update let the metrics subscribe to the event bus.
func (m *Metrics) Name() string {
	return "metrics_observer"
}

func (m *Metrics) Update(event events.Event) error {
	if event.Type == events.ThreadMessageType && event.ThreadMessage != nil {
		m.transcriptLog.WithLabelValues(string(event.ThreadMessage.MessageType)).Inc()
	}
	return nil
}
