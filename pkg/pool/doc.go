// Package pool manages reusable HTTP connections keyed by authority
// (scheme, host, port).
//
// The pool bounds resource usage while keeping connections warm:
//
// - Per-authority and global caps on open connections
// - Blocking acquire with a bounded wait (ErrExhausted on timeout)
// - LIFO idle reuse so cold connections age out first
// - Liveness probing at checkout (no request rides a dead socket)
// - Background sweeper evicting idle connections past IdleTimeout
// - Eager warmup without sending a single request
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	p, err := pool.New(pool.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	key, err := pool.ParseKey("https://api.example.com")
//	if err != nil {
//		return err
//	}
//
//	conn, err := p.Acquire(ctx, key)
//	if err != nil {
//		return err
//	}
//
//	// ... write a request, read the response ...
//
//	// healthy connections go back on the idle stack
//	p.Release(conn, true)
//
// # Warmup
//
//	// open up to 5 connections per key before the first batch
//	results := p.Warm(ctx, []pool.Key{key}, 5)
//	for _, r := range results {
//		if r.Err != nil {
//			log.Warn().Err(r.Err).Msg("warmup incomplete")
//		}
//	}
//
// # Ownership
//
// A connection is owned by the pool except while checked out to exactly one
// caller. Callers must hand every acquired connection back through Release,
// marking it unhealthy after any transport error, deadline expiry, or when
// the server signalled it will close the stream.
//
// # Metrics
//
// The pool exports Prometheus metrics:
//
//   - volley_pool_connections_open{authority} - Open connections
//   - volley_pool_connections_idle{authority} - Idle connections
//   - volley_pool_dials_total{authority} - New connections established
//   - volley_pool_reuses_total{authority} - Checkouts served from idle
//   - volley_pool_exhausted_total - Acquire waits that timed out
//   - volley_pool_evictions_total{reason} - Discarded connections
//   - volley_pool_acquire_wait_seconds - Time spent waiting in Acquire
package pool
