// Package metric provides Prometheus-based metrics for the sync engine.
//
// A run is short-lived, so metrics are gathered once at exit and logged as a
// run summary rather than scraped. The counters still follow Prometheus
// conventions so the registry can be exposed over HTTP if a long-running
// deployment ever needs it.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trsync"

// Metrics contains the sync-engine counters
type Metrics struct {
	FramesSent     *prometheus.CounterVec // by frame kind: connect, sub, unsub
	FramesReceived prometheus.Counter
	EmptyFrames    prometheus.Counter // frames that decoded fail-soft to empty

	PagesFetched    prometheus.Counter
	ItemsCollected  prometheus.Counter
	DetailsEnriched prometheus.Counter

	RetryAttempts *prometheus.CounterVec // by operation: connect, subscribe
	ErrorsTotal   *prometheus.CounterVec // by component and type
}

// NewMetrics creates the sync-engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "frames_sent_total",
				Help:      "Total frames sent on the channel",
			},
			[]string{"kind"},
		),

		FramesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "frames_received_total",
				Help:      "Total frames received on the channel",
			},
		),

		EmptyFrames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "empty_frames_total",
				Help:      "Frames whose payload decoded fail-soft to empty",
			},
		),

		PagesFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timeline",
				Name:      "pages_fetched_total",
				Help:      "Timeline pages fetched",
			},
		),

		ItemsCollected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timeline",
				Name:      "items_collected_total",
				Help:      "Timeline items accumulated across pages",
			},
		),

		DetailsEnriched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timeline",
				Name:      "details_enriched_total",
				Help:      "Items enriched with a detail record",
			},
		),

		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "retry_attempts_total",
				Help:      "Retry attempts by operation",
			},
			[]string{"operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total errors by component and type",
			},
			[]string{"component", "type"},
		),
	}
}

// Registry wraps a Prometheus registry with the sync-engine metrics
type Registry struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewRegistry creates a registry with all sync-engine metrics registered
func NewRegistry() *Registry {
	metrics := NewMetrics()
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		metrics.FramesSent,
		metrics.FramesReceived,
		metrics.EmptyFrames,
		metrics.PagesFetched,
		metrics.ItemsCollected,
		metrics.DetailsEnriched,
		metrics.RetryAttempts,
		metrics.ErrorsTotal,
	)

	return &Registry{registry: registry, Metrics: metrics}
}

// Gatherer exposes the underlying registry for HTTP handlers or summaries
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Summary gathers all metrics into a flat name -> value map, suitable for a
// run-summary log line. Vec metrics are summed across label values.
func (r *Registry) Summary() map[string]float64 {
	summary := make(map[string]float64)

	families, err := r.registry.Gather()
	if err != nil {
		return summary
	}

	for _, family := range families {
		var total float64
		for _, m := range family.GetMetric() {
			if counter := m.GetCounter(); counter != nil {
				total += counter.GetValue()
			}
			if gauge := m.GetGauge(); gauge != nil {
				total += gauge.GetValue()
			}
		}
		summary[family.GetName()] = total
	}

	return summary
}
