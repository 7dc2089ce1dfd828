package relay

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay collectors. Each relay registers them on its own registry so that
// several relays (and tests) can live in one process.
type Metrics struct {
	Registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them together with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "requests_total",
			Help:      "Forwarded requests by method and outcome.",
		}, []string{"method", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "upstream_duration_seconds",
			Help:      "Time spent forwarding a request, from receipt to relayed answer.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.Registry.MustRegister(
		m.requestsTotal,
		m.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one forwarded request.
func (m *Metrics) Observe(method string, kind Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, kind.String()).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
