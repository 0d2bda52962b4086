// Package metrics provides the centralized Prometheus metrics registry for
// volley. All metrics are defined in their respective packages (pool, batch,
// client, cache) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by volley.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pool Metrics (pkg/pool):
//   - volley_pool_connections_open{authority} (Gauge): Open connections per authority
//   - volley_pool_connections_idle{authority} (Gauge): Idle connections per authority
//   - volley_pool_dials_total{authority} (Counter): New connections established
//   - volley_pool_reuses_total{authority} (Counter): Checkouts served from the idle list
//   - volley_pool_exhausted_total (Counter): Acquires that timed out waiting for a slot
//   - volley_pool_evictions_total{reason} (Counter): Connections evicted (idle_timeout, stale, unhealthy, closed)
//   - volley_pool_acquire_wait_seconds (Histogram): Time spent waiting for a connection slot
//
// Batch Metrics (pkg/batch):
//   - volley_batches_total{mode} (Counter): Batches run by mode (isolate, fail_fast)
//   - volley_batch_size (Histogram): Number of requests per batch
//   - volley_batch_duration_seconds{mode} (Histogram): Wall time per batch
//   - volley_longtail_cancels_total (Counter): Stragglers cancelled by the longtail cutoff
//
// Request Metrics (pkg/client):
//   - volley_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - volley_request_duration_seconds{method} (Histogram): Request duration by method
//   - volley_errors_total{class} (Counter): Failures by class (validation, pool_exhausted,
//     timeout, transport, protocol, cancelled)
//   - volley_warmup_probes_total{outcome} (Counter): Warmup probes by outcome (ok, error)
//
// Cache Metrics (pkg/cache):
//   - volley_cache_hits_total (Counter): Cache hits
//   - volley_cache_misses_total (Counter): Cache misses
//   - volley_cache_stores_total (Counter): Responses written to the cache
//   - volley_cache_size_bytes (Gauge): Bytes of response data written to the cache
//   - volley_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Connection Reuse Rate
//   sum(rate(volley_pool_reuses_total[5m])) /
//   (sum(rate(volley_pool_reuses_total[5m])) + sum(rate(volley_pool_dials_total[5m])))
//
//   # Pool Pressure
//   rate(volley_pool_exhausted_total[5m])
//
//   # Request Error Rate
//   rate(volley_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(volley_request_duration_seconds_bucket[5m]))
//
//   # P95 Acquire Wait
//   histogram_quantile(0.95, rate(volley_pool_acquire_wait_seconds_bucket[5m]))
