// Package metrics wraps the module's Prometheus collectors: cache
// hit/miss/put/eviction counters, batch-reader hit/pending/miss counters, a
// grouping-sets-per-load histogram, and a flush duration histogram.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mondrian",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Segment cache hits by worker tier.",
	}, []string{"tier"})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mondrian",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Segment cache misses across all worker tiers.",
	})

	cachePuts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mondrian",
		Subsystem: "cache",
		Name:      "puts_total",
		Help:      "Segments admitted to the in-memory worker.",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mondrian",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "LRU evictions from the in-memory worker.",
	})

	batchReaderHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mondrian",
		Subsystem: "batchreader",
		Name:      "hits_total",
		Help:      "Cell requests answered directly from an already-registered segment.",
	})
	batchReaderPending = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mondrian",
		Subsystem: "batchreader",
		Name:      "pending_total",
		Help:      "Cell requests that hit an in-flight, not-yet-complete future.",
	})
	batchReaderMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mondrian",
		Subsystem: "batchreader",
		Name:      "misses_total",
		Help:      "Cell requests queued for the next batch load.",
	})

	groupingSetsPerLoad = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mondrian",
		Subsystem: "loader",
		Name:      "grouping_sets_per_load",
		Help:      "Number of grouping sets fused into a single SQL statement.",
		Buckets:   []float64{1, 2, 4, 8, 16, 32},
	})

	flushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mondrian",
		Subsystem: "flush",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of a Flush invocation.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		cacheHits, cacheMisses, cachePuts, cacheEvictions,
		batchReaderHits, batchReaderPending, batchReaderMisses,
		groupingSetsPerLoad, flushDuration,
	)
}

func CacheHit(tier string) { cacheHits.WithLabelValues(tier).Inc() }
func CacheMiss()           { cacheMisses.Inc() }
func CachePut()            { cachePuts.Inc() }
func CacheEviction()       { cacheEvictions.Inc() }

func BatchReaderHit()    { batchReaderHits.Inc() }
func BatchReaderPending() { batchReaderPending.Inc() }
func BatchReaderMiss()    { batchReaderMisses.Inc() }

func ObserveGroupingSets(n int) { groupingSetsPerLoad.Observe(float64(n)) }

// TimeFlush returns a func to call (typically via defer) to record the
// elapsed flush duration.
func TimeFlush() func() {
	start := time.Now()
	return func() { flushDuration.Observe(time.Since(start).Seconds()) }
}
