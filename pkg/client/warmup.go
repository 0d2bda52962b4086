package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/volley/pkg/pool"
	"github.com/Sternrassler/volley/pkg/request"
)

// DefaultWarmupConns is how many connections Warmup opens per target.
const DefaultWarmupConns = 5

var warmupProbes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "volley_warmup_probes_total",
	Help: "Total warmup probe requests by outcome",
}, []string{"outcome"}) // "ok", "error"

// WarmupResult reports the warmup outcome for one target.
type WarmupResult struct {
	Target   string
	Existing int   // idle connections already present
	Opened   int   // connections established by this call
	Err      error // first failure, when the target was not fully warmed
}

// Warmup pre-opens DefaultWarmupConns connections to each target so later
// requests skip the dial. Warmup is an optimization, not a precondition:
// per-target failures are reported in the results, never escalated.
func (c *Client) Warmup(ctx context.Context, targets ...string) []WarmupResult {
	return c.warm(ctx, targets, DefaultWarmupConns)
}

// WarmupCount pre-opens n connections to one target.
func (c *Client) WarmupCount(ctx context.Context, target string, n int) WarmupResult {
	return c.warm(ctx, []string{target}, n)[0]
}

func (c *Client) warm(ctx context.Context, targets []string, count int) []WarmupResult {
	results := make([]WarmupResult, 0, len(targets))

	for _, target := range targets {
		if c.closed.Load() {
			results = append(results, WarmupResult{Target: target, Err: ErrClientClosed})
			continue
		}

		key, err := pool.ParseKey(target)
		if err != nil {
			results = append(results, WarmupResult{Target: target, Err: err})
			continue
		}

		wr := c.pool.Warm(ctx, []pool.Key{key}, count)[0]
		results = append(results, WarmupResult{
			Target:   target,
			Existing: wr.Existing,
			Opened:   wr.Opened,
			Err:      wr.Err,
		})
	}

	return results
}

// WarmupOptions configures WarmupAdvanced.
type WarmupOptions struct {
	// BaseURL is the scheme and authority probes are sent to.
	BaseURL string

	// Paths are probed round-robin under BaseURL. Empty means "/".
	Paths []string

	// Connections is how many probes to issue. Zero means
	// DefaultWarmupConns.
	Connections int

	// Method is the probe method. Empty means HEAD.
	Method string
}

// ProbeResult reports one warmup probe.
type ProbeResult struct {
	URL     string
	Status  int
	Elapsed time.Duration
	Err     error
}

// WarmupAdvanced warms by issuing real lightweight requests instead of
// bare dials, for servers that drop sockets which never carry traffic.
// All probes run concurrently through the engine; a failed probe is
// information in its ProbeResult, not an error.
func (c *Client) WarmupAdvanced(ctx context.Context, opts WarmupOptions) ([]ProbeResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	n := opts.Connections
	if n == 0 {
		n = DefaultWarmupConns
	}
	if n < 0 {
		return nil, fmt.Errorf("client: warmup connections must be positive, got %d", opts.Connections)
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid warmup base URL %q", opts.BaseURL)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodHead
	}

	paths := opts.Paths
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	reqs := make([]*request.Request, n)
	for i := range reqs {
		target := base.JoinPath(paths[i%len(paths)]).String()
		req, err := request.NewRequest(method, target)
		if err != nil {
			return nil, fmt.Errorf("client: building warmup probe for %q: %w", target, err)
		}
		reqs[i] = req
	}

	// every probe needs its own connection, so the fan-out must not be
	// narrower than the probe count
	results, err := c.Run(ctx, reqs, WithConcurrency(n), WithFailFast(false), WithLongtail(0, 0))
	if err != nil {
		return nil, err
	}

	probes := make([]ProbeResult, n)
	for i, res := range results {
		probes[i] = ProbeResult{
			URL:     reqs[i].URL.String(),
			Elapsed: res.Elapsed,
		}
		if res.Err != nil {
			probes[i].Err = res.Err
			warmupProbes.WithLabelValues("error").Inc()
			continue
		}
		probes[i].Status = res.Response.StatusCode
		warmupProbes.WithLabelValues("ok").Inc()
	}

	c.logger.Info().
		Str("base_url", opts.BaseURL).
		Int("probes", n).
		Msg("advanced warmup complete")

	return probes, nil
}
