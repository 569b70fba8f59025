package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Miss reasons recorded on the misses counter.
const (
	MissAbsent     = "absent"
	MissCorrupt    = "corrupt"
	MissExpired    = "expired"
	MissInvalid    = "invalid"
	MissForced     = "forced"
	MissStoreError = "store_error"
)

// Metrics holds the Prometheus instruments for a FetchCache.
type Metrics struct {
	Hits         prometheus.Counter
	Misses       *prometheus.CounterVec
	FetchErrors  prometheus.Counter
	StoreErrors  prometheus.Counter
	FetchSeconds prometheus.Histogram
}

// NewMetrics creates and registers the cache metrics on the given registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jitbench",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of lookups served from the cache",
		}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jitbench",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of lookups that required a fetch, by reason",
		}, []string{"reason"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jitbench",
			Subsystem: "cache",
			Name:      "fetch_errors_total",
			Help:      "Number of upstream fetches that failed",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jitbench",
			Subsystem: "cache",
			Name:      "store_errors_total",
			Help:      "Number of cache writes that failed",
		}),
		FetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jitbench",
			Subsystem: "cache",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of upstream fetches",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(m.Hits, m.Misses, m.FetchErrors, m.StoreErrors, m.FetchSeconds)
	return m
}
