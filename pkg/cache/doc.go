// Package cache provides a Redis-backed response cache for idempotent
// GET traffic.
//
// The cache is optional: the engine consults it only when a Redis client
// is configured. Entries are keyed by method and full URL, serialized as
// JSON, and expire both in Redis (key TTL) and logically (entry expiry).
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager
//	manager := cache.NewManager(redisClient)
//
//	// Look up a response
//	key := cache.Key{Method: "GET", URL: "https://api.example.com/items?page=1"}
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch upstream
//	}
//
// # Storing Responses
//
//	// Convert a completed response to a cache entry
//	if cache.Cacheable(resp) {
//		entry := cache.FromResponse(resp, cache.DefaultTTL)
//		if err := manager.Set(ctx, key, entry); err != nil {
//			// degrade: the response is still good, only the store failed
//		}
//	}
//
// # Freshness
//
// Entry lifetime follows the response headers: Cache-Control max-age wins,
// then an absolute Expires header, then the configured default TTL. Entries
// at or past their expiry count as misses and are deleted on sight.
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - volley_cache_hits_total - Cache hits
//   - volley_cache_misses_total - Cache misses
//   - volley_cache_stores_total - Responses stored
//   - volley_cache_size_bytes - Bytes written to the cache
//   - volley_cache_errors_total{operation} - Cache operation errors
//
// Redis failures never fail a request: callers treat any Manager error as
// a cache miss and fall through to the network.
package cache
