// Package metrics exposes optional Prometheus instrumentation for the
// secrets client. Collection is flag-gated: a disabled (or nil) Recorder is
// a no-op, so callers never need to guard call sites.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchDuration *prometheus.HistogramVec

	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	cacheEvictionsTotal prometheus.Counter
	cacheMemoryBytes    prometheus.Gauge

	registerOnce sync.Once
)

func register() {
	registerOnce.Do(func() {
		fetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "envsecrets_fetch_duration_seconds",
				Help:    "Duration of secret resolution calls in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"application", "environment", "cache"},
		)

		cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "envsecrets_cache_hits_total",
			Help: "Total number of secret cache hits",
		})

		cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "envsecrets_cache_misses_total",
			Help: "Total number of secret cache misses",
		})

		cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "envsecrets_cache_evictions_total",
			Help: "Total number of cache entries evicted under memory pressure",
		})

		cacheMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "envsecrets_cache_memory_bytes",
			Help: "Estimated memory held by the secret cache",
		})
	})
}

// Recorder records client and cache metrics. The zero value and nil are
// both safe no-ops.
type Recorder struct {
	enabled bool
}

// NewRecorder creates a Recorder. When enabled is true the collectors are
// registered with the default Prometheus registry (once per process).
func NewRecorder(enabled bool) *Recorder {
	if enabled {
		register()
	}
	return &Recorder{enabled: enabled}
}

// ObserveFetch records one resolution call.
func (r *Recorder) ObserveFetch(application, environment string, cacheHit bool, d time.Duration) {
	if r == nil || !r.enabled {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	fetchDuration.WithLabelValues(application, environment, cache).Observe(d.Seconds())
}

// CacheHit increments the hit counter.
func (r *Recorder) CacheHit() {
	if r == nil || !r.enabled {
		return
	}
	cacheHitsTotal.Inc()
}

// CacheMiss increments the miss counter.
func (r *Recorder) CacheMiss() {
	if r == nil || !r.enabled {
		return
	}
	cacheMissesTotal.Inc()
}

// Eviction increments the eviction counter.
func (r *Recorder) Eviction() {
	if r == nil || !r.enabled {
		return
	}
	cacheEvictionsTotal.Inc()
}

// SetMemoryBytes records the cache's current memory estimate.
func (r *Recorder) SetMemoryBytes(n int64) {
	if r == nil || !r.enabled {
		return
	}
	cacheMemoryBytes.Set(float64(n))
}
