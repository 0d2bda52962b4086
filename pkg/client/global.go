package client

import (
	"context"
	"sync"

	"github.com/Sternrassler/volley/pkg/request"
)

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide client, creating it with DefaultConfig
// on first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient == nil {
		c, err := New(DefaultConfig())
		if err != nil {
			// DefaultConfig always validates; failing here is a bug
			panic("client: creating default client: " + err.Error())
		}
		defaultClient = c
	}
	return defaultClient
}

// ResetDefault closes the process-wide client. The next package-level call
// creates a fresh one.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		defaultClient.Close()
		defaultClient = nil
	}
}

// Run submits a batch through the default client.
func Run(ctx context.Context, reqs []*request.Request, opts ...RunOption) ([]*request.Result, error) {
	return Default().Run(ctx, reqs, opts...)
}

// Do executes one request through the default client.
func Do(ctx context.Context, req *request.Request) *request.Result {
	return Default().Do(ctx, req)
}

// Warmup warms the default client's pool.
func Warmup(ctx context.Context, targets ...string) []WarmupResult {
	return Default().Warmup(ctx, targets...)
}

// WarmupCount warms one target in the default client's pool with an
// explicit connection count.
func WarmupCount(ctx context.Context, target string, n int) WarmupResult {
	return Default().WarmupCount(ctx, target, n)
}

// WarmupAdvanced issues warmup probes through the default client.
func WarmupAdvanced(ctx context.Context, opts WarmupOptions) ([]ProbeResult, error) {
	return Default().WarmupAdvanced(ctx, opts)
}
