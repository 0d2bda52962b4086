// Package client provides the engine facade: a pooled HTTP client that
// executes single requests and concurrent batches with per-request
// outcome classification.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/volley/pkg/batch"
	"github.com/Sternrassler/volley/pkg/cache"
	"github.com/Sternrassler/volley/pkg/logging"
	"github.com/Sternrassler/volley/pkg/pool"
	"github.com/Sternrassler/volley/pkg/request"
)

// Version is the library version, reported in the default User-Agent.
const Version = "0.1.0"

// Prometheus metrics for request execution.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volley_requests_total",
		Help: "Total requests by method and outcome (status code or error class)",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "volley_request_duration_seconds",
		Help:    "Request duration in seconds by method",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volley_errors_total",
		Help: "Total failed requests by error class",
	}, []string{"class"})
)

// Client executes requests over a shared connection pool.
type Client struct {
	pool   *pool.Pool
	cache  *cache.Manager // nil without a Redis backend
	runner *batch.Runner
	config Config
	logger zerolog.Logger
	closed atomic.Bool
}

// Config holds the client configuration.
type Config struct {
	// MaxConnsPerHost caps open connections per authority.
	MaxConnsPerHost int

	// MaxConns caps open connections across all authorities.
	// Zero disables the global cap.
	MaxConns int

	// IdleTimeout evicts idle connections not reused within this window.
	IdleTimeout time.Duration

	// AcquireTimeout bounds how long a request waits for a connection slot
	// before failing as pool_exhausted.
	AcquireTimeout time.Duration

	// RequestTimeout is the default deadline for a whole exchange. A
	// positive Request.Timeout takes precedence. Zero applies no default.
	RequestTimeout time.Duration

	// Concurrency is the default batch fan-out ceiling.
	// Zero means batch.DefaultConcurrency.
	Concurrency int

	// FailFast aborts batches on the first failure instead of collecting
	// per-request outcomes.
	FailFast bool

	// LongtailPercentile and LongtailWait enable longtail cancellation:
	// once ceil(p*N) results have landed, stragglers are cancelled after
	// the wait. Both must be set together.
	LongtailPercentile float64
	LongtailWait       time.Duration

	// EnableCompression advertises gzip and transparently decodes gzip
	// response bodies.
	EnableCompression bool

	// UserAgent is sent on requests that do not set their own.
	UserAgent string

	// TLSConfig applies to https connections.
	TLSConfig *tls.Config

	// Redis enables the response cache when set.
	Redis *redis.Client

	// CacheTTL is the fallback freshness lifetime for cached responses
	// without caching headers.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnsPerHost: 10,
		MaxConns:        100,
		IdleTimeout:     90 * time.Second,
		AcquireTimeout:  30 * time.Second,
		RequestTimeout:  60 * time.Second,
		UserAgent:       "volley/" + Version,
		CacheTTL:        cache.DefaultTTL,
	}
}

// New creates a client. The pool and batch layers validate their own
// knobs, so a half-filled Config fails here rather than at first use.
func New(cfg Config) (*Client, error) {
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("client: RequestTimeout must not be negative, got %v", cfg.RequestTimeout)
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("client: CacheTTL must not be negative, got %v", cfg.CacheTTL)
	}

	poolCfg := pool.DefaultConfig()
	poolCfg.MaxPerKey = cfg.MaxConnsPerHost
	poolCfg.MaxTotal = cfg.MaxConns
	poolCfg.IdleTimeout = cfg.IdleTimeout
	poolCfg.AcquireTimeout = cfg.AcquireTimeout
	poolCfg.TLSConfig = cfg.TLSConfig

	p, err := pool.New(poolCfg)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		pool:   p,
		config: cfg,
		logger: logging.NewLogger("client"),
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	runner, err := batch.NewRunner(c, c.batchConfig())
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("client: %w", err)
	}
	c.runner = runner

	return c, nil
}

// batchConfig derives the default batch configuration from the client
// configuration.
func (c *Client) batchConfig() batch.Config {
	return batch.Config{
		Concurrency:        c.config.Concurrency,
		FailFast:           c.config.FailFast,
		LongtailPercentile: c.config.LongtailPercentile,
		LongtailWait:       c.config.LongtailWait,
	}
}

// RunOption overrides batch behavior for a single Run call.
type RunOption func(*batch.Config)

// WithConcurrency overrides the fan-out ceiling for one call.
func WithConcurrency(n int) RunOption {
	return func(cfg *batch.Config) {
		cfg.Concurrency = n
	}
}

// WithFailFast switches the failure discipline for one call.
func WithFailFast(enabled bool) RunOption {
	return func(cfg *batch.Config) {
		cfg.FailFast = enabled
	}
}

// WithLongtail sets the longtail cancellation knobs for one call.
// WithLongtail(0, 0) disables longtail cancellation.
func WithLongtail(percentile float64, wait time.Duration) RunOption {
	return func(cfg *batch.Config) {
		cfg.LongtailPercentile = percentile
		cfg.LongtailWait = wait
	}
}

// Run submits a batch of requests and reports one result per request,
// results[i] matching reqs[i]. Options override the configured batch
// behavior for this call only.
func (c *Client) Run(ctx context.Context, reqs []*request.Request, opts ...RunOption) ([]*request.Result, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	runner := c.runner
	if len(opts) > 0 {
		cfg := c.batchConfig()
		for _, opt := range opts {
			opt(&cfg)
		}
		r, err := batch.NewRunner(c, cfg)
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
		runner = r
	}

	return runner.Run(ctx, reqs)
}

// PoolStats reports a snapshot of the connection pool.
func (c *Client) PoolStats() pool.Stats {
	return c.pool.Stats()
}

// Close releases the connection pool. In-flight exchanges finish on their
// own connections; new work is refused.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.pool.Close()
	c.logger.Debug().Msg("client closed")
	return nil
}
