// Package metrics holds the Prometheus collectors for relay, fetch and poll activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for gridwatch.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Relay transport
	RelayAttempts  *prometheus.CounterVec // labels: relay
	RelayFailures  *prometheus.CounterVec // labels: relay
	RelayRotations prometheus.Counter
	RelayExhausted prometheus.Counter

	// Fetchers
	FetchDuration *prometheus.HistogramVec // labels: kind
	FetchErrors   *prometheus.CounterVec   // labels: kind

	// Poller
	Cycles         *prometheus.CounterVec // labels: result=completed|skipped|discarded
	UpdatesEmitted *prometheus.CounterVec // labels: kind
	ScopeDiscards  *prometheus.CounterVec // labels: kind

	// Stream
	StreamClients prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RelayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridwatch_relay_attempts_total",
			Help: "Upstream request attempts by relay",
		}, []string{"relay"}),
		RelayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridwatch_relay_failures_total",
			Help: "Failed upstream request attempts by relay",
		}, []string{"relay"}),
		RelayRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwatch_relay_rotations_total",
			Help: "Relay pointer advances",
		}),
		RelayExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwatch_relay_exhausted_total",
			Help: "Logical requests that failed on every allowed attempt",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridwatch_fetch_duration_seconds",
			Help:    "Snapshot fetch duration including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridwatch_fetch_errors_total",
			Help: "Snapshot fetch failures by data kind",
		}, []string{"kind"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridwatch_poll_cycles_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),
		UpdatesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridwatch_updates_emitted_total",
			Help: "State updates emitted to consumers by data kind",
		}, []string{"kind"}),
		ScopeDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridwatch_scope_discards_total",
			Help: "Fetch results discarded because the selection changed",
		}, []string{"kind"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridwatch_stream_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RelayAttempts,
		m.RelayFailures,
		m.RelayRotations,
		m.RelayExhausted,
		m.FetchDuration,
		m.FetchErrors,
		m.Cycles,
		m.UpdatesEmitted,
		m.ScopeDiscards,
		m.StreamClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) Attempt(relay string) {
	if m == nil {
		return
	}
	m.RelayAttempts.WithLabelValues(relay).Inc()
}

func (m *Metrics) Failure(relay string) {
	if m == nil {
		return
	}
	m.RelayFailures.WithLabelValues(relay).Inc()
}

func (m *Metrics) Rotation() {
	if m == nil {
		return
	}
	m.RelayRotations.Inc()
}

func (m *Metrics) Exhausted() {
	if m == nil {
		return
	}
	m.RelayExhausted.Inc()
}

// ObserveFetch records one fetch of kind that took d and failed when err != nil.
func (m *Metrics) ObserveFetch(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Cycle(result string) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(result).Inc()
}

func (m *Metrics) Emitted(kind string) {
	if m == nil {
		return
	}
	m.UpdatesEmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) Discarded(kind string) {
	if m == nil {
		return
	}
	m.ScopeDiscards.WithLabelValues(kind).Inc()
}

func (m *Metrics) StreamConnected(delta float64) {
	if m == nil {
		return
	}
	m.StreamClients.Add(delta)
}
