// Package integration exercises the full engine stack end to end: pool,
// batch scheduler, warmup, and the Redis-backed response cache against a
// live Redis container and local HTTP servers.
package integration

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/volley/internal/testutil"
	"github.com/Sternrassler/volley/pkg/client"
	"github.com/Sternrassler/volley/pkg/pool"
	"github.com/Sternrassler/volley/pkg/request"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newEngine(t *testing.T, mutate func(*client.Config)) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.AcquireTimeout = 2 * time.Second
	cfg.RequestTimeout = 10 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func getRequest(t *testing.T, url string, opts ...request.Option) *request.Request {
	t.Helper()

	req, err := request.NewRequest("GET", url, opts...)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	return req
}

// deadPort returns an address that refuses connections.
func deadPort(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// TestFullRequestFlow runs a batch through the whole stack twice: the
// first pass misses the cache and hits the origin, the second pass is
// served entirely from Redis.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	server := testutil.NewMockServer()
	defer server.Close()
	for id := 1; id <= 3; id++ {
		server.SetResponse(fmt.Sprintf("/posts/%d", id), testutil.MockResponse{
			StatusCode: 200,
			Body:       fmt.Sprintf(`{"id":%d}`, id),
			Headers: map[string]string{
				"Content-Type":  "application/json",
				"Cache-Control": "max-age=300",
			},
		})
	}

	engine := newEngine(t, func(cfg *client.Config) {
		cfg.Redis = redisClient
	})

	reqs := make([]*request.Request, 3)
	for i := range reqs {
		reqs[i] = getRequest(t, fmt.Sprintf("%s/posts/%d", server.URL(), i+1))
	}

	ctx := context.Background()

	t.Log("Batch 1: cache misses, requests reach the origin")
	results, err := engine.Run(ctx, reqs)
	if err != nil {
		t.Fatalf("Batch 1 failed: %v", err)
	}
	for i, res := range results {
		if !res.OK() {
			t.Fatalf("Result %d failed: %v", i, res.Err)
		}
		want := fmt.Sprintf(`{"id":%d}`, i+1)
		if res.Response.Text() != want {
			t.Errorf("Result %d body = %q, want %q (order must match submission)", i, res.Response.Text(), want)
		}
	}
	if server.GetRequestCount() != 3 {
		t.Errorf("Origin requests = %d, want 3", server.GetRequestCount())
	}

	t.Log("Batch 2: served from cache, origin sees nothing new")
	again := make([]*request.Request, 3)
	for i := range again {
		again[i] = getRequest(t, fmt.Sprintf("%s/posts/%d", server.URL(), i+1))
	}
	results2, err := engine.Run(ctx, again)
	if err != nil {
		t.Fatalf("Batch 2 failed: %v", err)
	}
	for i, res := range results2 {
		if !res.OK() {
			t.Fatalf("Cached result %d failed: %v", i, res.Err)
		}
		want := fmt.Sprintf(`{"id":%d}`, i+1)
		if res.Response.Text() != want {
			t.Errorf("Cached result %d body = %q, want %q", i, res.Response.Text(), want)
		}
	}
	if server.GetRequestCount() != 3 {
		t.Errorf("Origin requests after cached batch = %d, want 3", server.GetRequestCount())
	}
}

// TestCacheExpiration verifies that entries expire with max-age and the
// next request goes back to the origin.
func TestCacheExpiration(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/status", testutil.MockResponse{
		StatusCode: 200,
		Body:       `{"status":"ok"}`,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Cache-Control": "max-age=1",
		},
	})

	engine := newEngine(t, func(cfg *client.Config) {
		cfg.Redis = redisClient
	})

	ctx := context.Background()

	if res := engine.Do(ctx, getRequest(t, server.URL()+"/status")); res.Err != nil {
		t.Fatalf("First request failed: %v", res.Err)
	}
	if res := engine.Do(ctx, getRequest(t, server.URL()+"/status")); res.Err != nil {
		t.Fatalf("Second request failed: %v", res.Err)
	}
	if server.GetRequestCount() != 1 {
		t.Fatalf("Origin requests = %d, want 1 (second served from cache)", server.GetRequestCount())
	}

	// Wait out the max-age window.
	time.Sleep(1200 * time.Millisecond)

	if res := engine.Do(ctx, getRequest(t, server.URL()+"/status")); res.Err != nil {
		t.Fatalf("Post-expiry request failed: %v", res.Err)
	}
	if server.GetRequestCount() != 2 {
		t.Errorf("Origin requests = %d, want 2 (expired entry refetched)", server.GetRequestCount())
	}
}

// TestConnectionReuseAcrossBatches verifies the per-host cap holds under
// concurrent load and that a later batch reuses the pooled connections.
func TestConnectionReuseAcrossBatches(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/item", testutil.NewDelayedResponse(`{"ok":true}`, 30*time.Millisecond))

	engine := newEngine(t, func(cfg *client.Config) {
		cfg.MaxConnsPerHost = 3
	})

	ctx := context.Background()

	reqs := make([]*request.Request, 9)
	for i := range reqs {
		reqs[i] = getRequest(t, server.URL()+"/item")
	}
	results, err := engine.Run(ctx, reqs)
	if err != nil {
		t.Fatalf("Batch 1 failed: %v", err)
	}
	for i, res := range results {
		if !res.OK() {
			t.Fatalf("Result %d failed: %v", i, res.Err)
		}
	}

	if opened := server.GetOpenedConns(); opened > 3 {
		t.Errorf("Opened connections = %d, want <= 3 (per-host cap)", opened)
	}
	if server.GetMaxInFlight() > 3 {
		t.Errorf("Max in flight = %d, want <= 3", server.GetMaxInFlight())
	}

	openedAfterFirst := server.GetOpenedConns()

	reqs2 := make([]*request.Request, 6)
	for i := range reqs2 {
		reqs2[i] = getRequest(t, server.URL()+"/item")
	}
	if _, err := engine.Run(ctx, reqs2); err != nil {
		t.Fatalf("Batch 2 failed: %v", err)
	}

	if opened := server.GetOpenedConns(); opened != openedAfterFirst {
		t.Errorf("Opened connections after batch 2 = %d, want %d (reuse, no new dials)", opened, openedAfterFirst)
	}
}

// TestWarmupEliminatesDials pre-opens the pool and verifies the
// following batch dials nothing new.
func TestWarmupEliminatesDials(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/data", testutil.NewDelayedResponse(`{"ok":true}`, 20*time.Millisecond))

	engine := newEngine(t, func(cfg *client.Config) {
		cfg.MaxConnsPerHost = 5
	})

	ctx := context.Background()

	res := engine.WarmupCount(ctx, server.URL(), 5)
	if res.Err != nil {
		t.Fatalf("Warmup failed: %v", res.Err)
	}
	if res.Opened != 5 {
		t.Fatalf("Warmup opened %d connections, want 5", res.Opened)
	}
	if server.GetRequestCount() != 0 {
		t.Errorf("Warmup sent %d requests, want 0", server.GetRequestCount())
	}

	// The origin may lag behind the dialer in accepting.
	deadline := time.Now().Add(2 * time.Second)
	for server.GetOpenedConns() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if opened := server.GetOpenedConns(); opened != 5 {
		t.Fatalf("Origin saw %d connections after warmup, want 5", opened)
	}

	reqs := make([]*request.Request, 10)
	for i := range reqs {
		reqs[i] = getRequest(t, server.URL()+"/data")
	}
	results, err := engine.Run(ctx, reqs)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	for i, r := range results {
		if !r.OK() {
			t.Fatalf("Result %d failed: %v", i, r.Err)
		}
	}

	if opened := server.GetOpenedConns(); opened != 5 {
		t.Errorf("Opened connections after batch = %d, want 5 (warmed pool reused)", opened)
	}

	key, err := pool.ParseKey(server.URL())
	if err != nil {
		t.Fatalf("Failed to parse pool key: %v", err)
	}
	stats := engine.PoolStats()
	if stats.PerKey[key].Open != 5 {
		t.Errorf("Pool open for %s = %d, want 5", key, stats.PerKey[key].Open)
	}
}

// TestConcurrencyCeiling verifies the batch option caps in-flight
// requests below the pool capacity.
func TestConcurrencyCeiling(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/slow", testutil.NewDelayedResponse(`{"ok":true}`, 50*time.Millisecond))

	engine := newEngine(t, nil)

	reqs := make([]*request.Request, 12)
	for i := range reqs {
		reqs[i] = getRequest(t, server.URL()+"/slow")
	}

	results, err := engine.Run(context.Background(), reqs, client.WithConcurrency(3))
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	for i, res := range results {
		if !res.OK() {
			t.Fatalf("Result %d failed: %v", i, res.Err)
		}
	}

	if server.GetMaxInFlight() > 3 {
		t.Errorf("Max in flight = %d, want <= 3", server.GetMaxInFlight())
	}
}

// TestMixedOutcomeBatch verifies per-request isolation: each request
// carries its own outcome and failures do not disturb their neighbors.
func TestMixedOutcomeBatch(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/ok", testutil.NewJSONResponse(`{"ok":true}`))
	server.SetResponse("/error", testutil.NewServerErrorResponse())
	server.SetResponse("/slow", testutil.NewDelayedResponse(`{"ok":true}`, 2*time.Second))

	engine := newEngine(t, nil)

	reqs := []*request.Request{
		getRequest(t, server.URL()+"/ok"),
		getRequest(t, server.URL()+"/error"),
		getRequest(t, "http://"+deadPort(t)+"/unreachable"),
		getRequest(t, server.URL()+"/slow", request.WithTimeout(300*time.Millisecond)),
	}

	results, err := engine.Run(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Results = %d, want 4", len(results))
	}

	if !results[0].OK() || results[0].StatusCode() != 200 {
		t.Errorf("Result 0 = status %d, err %v; want 200", results[0].StatusCode(), results[0].Err)
	}

	// A 5xx is a completed exchange, not an error.
	if results[1].Err != nil {
		t.Errorf("Result 1 err = %v, want nil", results[1].Err)
	}
	if results[1].StatusCode() != 500 {
		t.Errorf("Result 1 status = %d, want 500", results[1].StatusCode())
	}

	if results[2].Err == nil {
		t.Error("Result 2 should have failed")
	} else if results[2].ErrorClass() != request.ClassTransport {
		t.Errorf("Result 2 class = %q, want transport", results[2].ErrorClass())
	}

	if results[3].Err == nil {
		t.Error("Result 3 should have timed out")
	} else if results[3].ErrorClass() != request.ClassTimeout {
		t.Errorf("Result 3 class = %q, want timeout", results[3].ErrorClass())
	}
}

// TestCacheDegradation stops Redis mid-run and verifies requests keep
// flowing to the origin.
func TestCacheDegradation(t *testing.T) {
	redisClient, cleanup := setupRedis(t)

	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/data", testutil.MockResponse{
		StatusCode: 200,
		Body:       `{"ok":true}`,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Cache-Control": "max-age=300",
		},
	})

	engine := newEngine(t, func(cfg *client.Config) {
		cfg.Redis = redisClient
	})

	ctx := context.Background()

	if res := engine.Do(ctx, getRequest(t, server.URL()+"/data")); res.Err != nil {
		t.Fatalf("Request with live Redis failed: %v", res.Err)
	}

	// Kill Redis; the cache layer must degrade, not fail the request.
	cleanup()

	res := engine.Do(ctx, getRequest(t, server.URL()+"/data"))
	if res.Err != nil {
		t.Fatalf("Request with dead Redis failed: %v", res.Err)
	}
	if res.StatusCode() != 200 {
		t.Errorf("Status = %d, want 200", res.StatusCode())
	}
	if server.GetRequestCount() != 2 {
		t.Errorf("Origin requests = %d, want 2 (cache unavailable on second)", server.GetRequestCount())
	}
}
