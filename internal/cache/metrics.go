package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewbaird/accountdesk/internal/metrics"
)

// Metrics holds the cache's Prometheus instruments.
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	fetchErrors   prometheus.Counter
	evictions     prometheus.Counter
	invalidations prometheus.Counter
	size          prometheus.Gauge
}

// NewMetrics creates and registers cache metrics with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		hits:          counter("hits_total", "Total number of cache hits"),
		misses:        counter("misses_total", "Total number of cache misses"),
		fetchErrors:   counter("fetch_errors_total", "Directory fetches that failed and were not cached"),
		evictions:     counter("evictions_total", "Entries removed by expiry sweeps"),
		invalidations: counter("invalidations_total", "Explicit invalidations"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "cache",
			Name:      "size",
			Help:      "Current number of entries in cache",
		}),
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.fetchErrors, m.evictions, m.invalidations, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// nil-safe recorders

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) fetchError() {
	if m != nil {
		m.fetchErrors.Inc()
	}
}

func (m *Metrics) evicted(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(float64(n))
	}
}

func (m *Metrics) invalidated() {
	if m != nil {
		m.invalidations.Inc()
	}
}

func (m *Metrics) setSize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
