package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// poolConnsOpen tracks established connections (idle + checked out)
	poolConnsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volley_pool_connections_open",
			Help: "Open connections per authority",
		},
		[]string{"authority"},
	)

	// poolConnsIdle tracks connections parked on the idle stacks
	poolConnsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volley_pool_connections_idle",
			Help: "Idle connections per authority",
		},
		[]string{"authority"},
	)

	// poolDials tracks newly established connections
	poolDials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volley_pool_dials_total",
			Help: "Total number of connections established",
		},
		[]string{"authority"},
	)

	// poolReuses tracks checkouts served from the idle stacks
	poolReuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volley_pool_reuses_total",
			Help: "Total number of checkouts served by an idle connection",
		},
		[]string{"authority"},
	)

	// poolExhausted tracks acquires that gave up waiting for a slot
	poolExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volley_pool_exhausted_total",
			Help: "Total number of acquires that timed out waiting for a connection slot",
		},
	)

	// poolEvictions tracks discarded connections by reason
	poolEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volley_pool_evictions_total",
			Help: "Total number of connections discarded",
		},
		[]string{"reason"}, // "idle_timeout", "stale", "unhealthy", "closed"
	)

	// poolAcquireWait tracks time spent waiting in Acquire
	poolAcquireWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volley_pool_acquire_wait_seconds",
			Help:    "Time spent waiting for a connection slot",
			Buckets: prometheus.DefBuckets,
		},
	)
)
