package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchesTotal tracks batches run by failure discipline
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volley_batches_total",
			Help: "Total number of batches run",
		},
		[]string{"mode"}, // "isolate", "fail_fast"
	)

	// batchSize tracks how many requests each batch carries
	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volley_batch_size",
			Help:    "Number of requests per batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// batchDuration tracks wall time per batch
	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "volley_batch_duration_seconds",
			Help:    "Wall time per batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// longtailCancels tracks requests cancelled by the longtail cutoff
	longtailCancels = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volley_longtail_cancels_total",
			Help: "Total number of requests cancelled by the longtail cutoff",
		},
	)
)
