// Package telemetry exposes Prometheus metrics for the group chat hub.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupchat"

// Metrics holds the hub's collectors on a private registry so several hubs
// can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Members         prometheus.Gauge
	Connections     prometheus.Gauge
	MessagesRouted  *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	Departures      *prometheus.CounterVec
	HostChanges     prometheus.Counter
	DispatchLatency *prometheus.HistogramVec

	startTime time.Time
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		Members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Current number of registered group members.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Current number of open WebSocket connections.",
		}),
		MessagesRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_routed_total",
				Help:      "Inbound messages dispatched by the router, by kind.",
			},
			[]string{"kind"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_dropped_total",
				Help:      "Messages that were not delivered, by reason.",
			},
			[]string{"reason"},
		),
		Departures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "departures_total",
				Help:      "Members removed from the group, by cause.",
			},
			[]string{"cause"},
		),
		HostChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_changes_total",
			Help:      "Number of times a host was assigned.",
		}),
		DispatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent routing one inbound message.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"kind"},
		),
	}

	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Hub uptime in seconds.",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	m.Registry.MustRegister(
		m.Members, m.Connections, m.MessagesRouted, m.MessagesDropped,
		m.Departures, m.HostChanges, m.DispatchLatency, uptime,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveDispatch records one routed message and how long it took.
func (m *Metrics) ObserveDispatch(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.MessagesRouted.WithLabelValues(kind).Inc()
	m.DispatchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Dropped counts an undelivered message.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// Departed counts a member removal.
func (m *Metrics) Departed(cause string) {
	if m == nil {
		return
	}
	m.Departures.WithLabelValues(cause).Inc()
}

// SetMembers records the current group size.
func (m *Metrics) SetMembers(n int) {
	if m == nil {
		return
	}
	m.Members.Set(float64(n))
}

// HostChanged counts a host assignment.
func (m *Metrics) HostChanged() {
	if m == nil {
		return
	}
	m.HostChanges.Inc()
}

// ConnectionOpened and ConnectionClosed track open transports.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}
