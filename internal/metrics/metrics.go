// Package metrics exposes pipeline and storage counters in Prometheus
// format on a private registry.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-proctor/pkg/pipeline"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	ticks         prometheus.Counter
	skipped       prometheus.Counter
	emitted       *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	dropped       prometheus.Counter
	flushed       prometheus.Counter
	flushFailures prometheus.Counter
	stored        prometheus.Counter
	queueDepth    prometheus.Gauge

	// ActivePipelines and Subscribers are read at scrape time
	ActivePipelines atomic.Int64
	Subscribers     atomic.Int64
}

// New creates a Metrics instance with its collectors registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctor_ticks_total",
			Help: "Detection ticks, including skipped ones",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctor_ticks_skipped_total",
			Help: "Ticks with no new observation",
		}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_events_emitted_total",
			Help: "Events that passed the debouncer",
		}, []string{"type"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_events_suppressed_total",
			Help: "Events withheld by the debouncer",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctor_events_dropped_total",
			Help: "Events discarded by queue overflow or failed flushes",
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctor_events_flushed_total",
			Help: "Events delivered to sinks",
		}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctor_flush_failures_total",
			Help: "Flushes that returned an error",
		}),
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctor_events_stored_total",
			Help: "Events persisted through the REST and WebSocket ingest paths",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proctor_queue_depth",
			Help: "Events waiting in the most recently flushed queue",
		}),
	}

	m.registry.MustRegister(
		m.ticks, m.skipped, m.emitted, m.suppressed,
		m.dropped, m.flushed, m.flushFailures, m.stored, m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_active_pipelines",
			Help: "Monitoring sessions with a running pipeline",
		},
		func() float64 { return float64(m.ActivePipelines.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_event_subscribers",
			Help: "Connected event stream clients",
		},
		func() float64 { return float64(m.Subscribers.Load()) },
	))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Stored counts events persisted outside a pipeline
func (m *Metrics) Stored(n int) {
	m.stored.Add(float64(n))
}

// Tick implements pipeline.Recorder
func (m *Metrics) Tick(skipped bool) {
	m.ticks.Inc()
	if skipped {
		m.skipped.Inc()
	}
}

// Emitted implements pipeline.Recorder
func (m *Metrics) Emitted(events []violation.Event) {
	for _, e := range events {
		m.emitted.WithLabelValues(string(e.Type)).Inc()
	}
}

// Suppressed implements pipeline.Recorder
func (m *Metrics) Suppressed(events []violation.Event) {
	for _, e := range events {
		m.suppressed.WithLabelValues(string(e.Type)).Inc()
	}
}

// Dropped implements pipeline.Recorder
func (m *Metrics) Dropped(n int) {
	m.dropped.Add(float64(n))
}

// Flushed implements pipeline.Recorder
func (m *Metrics) Flushed(n int, err error) {
	if err != nil {
		m.flushFailures.Inc()
		m.dropped.Add(float64(n))
		return
	}
	m.flushed.Add(float64(n))
}

// QueueDepth implements pipeline.Recorder
func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

var _ pipeline.Recorder = (*Metrics)(nil)
