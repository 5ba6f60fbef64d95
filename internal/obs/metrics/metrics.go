// Package metrics exposes the counters and histograms the operator CLI
// dumps via "notesbridgectl metrics". Nothing in the core serves these over
// HTTP; there is no server in scope.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the core components record into.
type Registry struct {
	reg *prometheus.Registry

	SearchLatency  *prometheus.HistogramVec // labeled by source: basic|fts|semantic
	SearchResults  *prometheus.HistogramVec // result count per search, by source
	RebuildTotal   *prometheus.CounterVec   // labeled by index: fts|semantic
	RebuildSeconds *prometheus.HistogramVec
	StaleServed    prometheus.Counter
}

// New builds a fresh, self-contained registry (not the global default one,
// so tests can construct as many as they like without collector collisions).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notesbridge",
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Search call latency by source subsystem.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SearchResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notesbridge",
			Subsystem: "search",
			Name:      "result_count",
			Help:      "Number of results returned by source subsystem.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}, []string{"source"}),
		RebuildTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notesbridge",
			Subsystem: "index",
			Name:      "rebuild_total",
			Help:      "Completed index rebuilds by index kind.",
		}, []string{"index"}),
		RebuildSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notesbridge",
			Subsystem: "index",
			Name:      "rebuild_seconds",
			Help:      "Index rebuild duration by index kind.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"index"}),
		StaleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notesbridge",
			Subsystem: "index",
			Name:      "stale_served_total",
			Help:      "Searches served against a stale FTS index while a rebuild was enqueued.",
		}),
	}

	reg.MustRegister(r.SearchLatency, r.SearchResults, r.RebuildTotal, r.RebuildSeconds, r.StaleServed)
	return r
}

// Gather collects every registered metric as a list of metric families;
// rendering them as text is left to the caller.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}
