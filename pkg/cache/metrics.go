package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks fresh entries served from Redis
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volley_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// cacheMisses tracks lookups that found nothing usable
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volley_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// cacheStores tracks entries written to Redis
	cacheStores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volley_cache_stores_total",
			Help: "Total number of responses stored in the cache",
		},
	)

	// cacheSize tracks bytes written to the cache
	cacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "volley_cache_size_bytes",
			Help: "Bytes of response data written to the cache",
		},
	)

	// cacheErrors tracks cache operation errors
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volley_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)
)
