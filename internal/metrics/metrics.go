package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	connections    prometheus.Gauge
	relayedFrames  *prometheus.CounterVec
	partiesCreated *prometheus.CounterVec
	presenceSyncs  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "watchparty_connections",
		Help: "Number of open relay websocket sessions",
	})
	relayedFrames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchparty_relayed_frames_total",
		Help: "Broadcast frames accepted from members, by event",
	}, []string{"event"})
	partiesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchparty_parties_created_total",
		Help: "Party records created, by content source",
	}, []string{"source"})
	presenceSyncs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watchparty_presence_syncs_total",
		Help: "Presence snapshots pushed to members",
	})

	registry.MustRegister(connections, relayedFrames, partiesCreated, presenceSyncs)

	return &Metrics{
		registry:       registry,
		connections:    connections,
		relayedFrames:  relayedFrames,
		partiesCreated: partiesCreated,
		presenceSyncs:  presenceSyncs,
	}
}

func (m *Metrics) SetConnections(n int) {
	m.connections.Set(float64(n))
}

func (m *Metrics) IncRelayedFrames(event string) {
	m.relayedFrames.WithLabelValues(event).Inc()
}

func (m *Metrics) IncPartiesCreated(source string) {
	m.partiesCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) IncPresenceSyncs() {
	m.presenceSyncs.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry. refresh, when set, runs before each scrape.
func (m *Metrics) Handler(refresh func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	if refresh == nil {
		return h
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh()
		h.ServeHTTP(w, r)
	})
}
