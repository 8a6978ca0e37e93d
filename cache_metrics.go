package diskarray

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	spills    prometheus.Counter
	spillHits prometheus.Counter
	resident  prometheus.Gauge
}

// newCacheMetrics builds the collectors of one cache. A nil registerer
// leaves them unregistered.
func newCacheMetrics(reg prometheus.Registerer, name string) *cacheMetrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"cache": name}
	counter := func(n, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace:   "diskarray",
			Subsystem:   "chunk_cache",
			Name:        n,
			Help:        help,
			ConstLabels: labels,
		})
	}
	return &cacheMetrics{
		hits:      counter("hits_total", "Number of chunk reads served from memory"),
		misses:    counter("misses_total", "Number of chunks fetched from the wrapped backend"),
		evictions: counter("evictions_total", "Number of chunks evicted from memory"),
		spills:    counter("spills_total", "Number of evicted chunks written to a mapped file"),
		spillHits: counter("spill_hits_total", "Number of chunk reads served from a mapped file"),
		resident: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "diskarray",
			Subsystem:   "chunk_cache",
			Name:        "resident_bytes",
			Help:        "Bytes of chunk data held in memory",
			ConstLabels: labels,
		}),
	}
}
