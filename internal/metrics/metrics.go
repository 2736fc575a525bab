// Package metrics exposes the stream service's prometheus collectors
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one server instance. A nil *Metrics
// records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	events      *prometheus.CounterVec
	limited     prometheus.Counter
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shelfstream",
			Name:      "socket_connections",
			Help:      "Number of open WebSocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shelfstream",
			Name:      "socket_rooms",
			Help:      "Number of rooms with at least one member.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfstream",
			Name:      "events_emitted_total",
			Help:      "Socket frames sent, by event name.",
		}, []string{"event"}),
		limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shelfstream",
			Name:      "socket_frames_rate_limited_total",
			Help:      "Inbound frames dropped by the per-connection rate limit.",
		}),
	}
	m.registry.MustRegister(
		m.connections,
		m.rooms,
		m.events,
		m.limited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// SetRooms records the current number of non-empty rooms
func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

// Emitted counts n frames sent for event
func (m *Metrics) Emitted(event string, n int) {
	if m != nil && n > 0 {
		m.events.WithLabelValues(event).Add(float64(n))
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.limited.Inc()
	}
}
