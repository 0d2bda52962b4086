package batch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/volley/pkg/logging"
	"github.com/Sternrassler/volley/pkg/request"
)

// DefaultConcurrency is the in-flight ceiling applied when the caller does
// not choose one. The effective ceiling never exceeds the batch size.
const DefaultConcurrency = 100

// Executor performs one request end-to-end. Implementations must return a
// result for every call, classifying failures instead of raising them, and
// should abandon work promptly when ctx is cancelled.
type Executor interface {
	Do(ctx context.Context, req *request.Request) *request.Result
}

// Config holds runner configuration.
type Config struct {
	// Concurrency caps simultaneously in-flight requests. Zero applies
	// DefaultConcurrency.
	Concurrency int

	// FailFast aborts the batch on the first failure instead of reporting
	// failures inline.
	FailFast bool

	// LongtailPercentile is the completed fraction (0.0, 1.0] that arms the
	// longtail cutoff. Must be set together with LongtailWait.
	LongtailPercentile float64

	// LongtailWait is the grace period after the percentile is reached
	// before remaining requests are cancelled.
	LongtailWait time.Duration
}

// DefaultConfig returns a default runner configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: DefaultConcurrency,
	}
}

// longtailEnabled reports whether the longtail cutoff is armed.
func (cfg Config) longtailEnabled() bool {
	return cfg.LongtailPercentile > 0 && cfg.LongtailWait > 0
}

// Runner fans batches of requests out to an executor under a concurrency
// ceiling and collects results in submission order.
type Runner struct {
	exec   Executor
	cfg    Config
	logger zerolog.Logger
}

// NewRunner validates cfg and builds a runner around exec.
func NewRunner(exec Executor, cfg Config) (*Runner, error) {
	if exec == nil {
		return nil, fmt.Errorf("batch: executor must not be nil")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("batch: Concurrency must not be negative, got %d", cfg.Concurrency)
	}
	if (cfg.LongtailPercentile != 0) != (cfg.LongtailWait != 0) {
		return nil, fmt.Errorf("batch: LongtailPercentile and LongtailWait must be set together")
	}
	if cfg.LongtailPercentile < 0 || cfg.LongtailPercentile > 1 {
		return nil, fmt.Errorf("batch: LongtailPercentile must be between 0.0 and 1.0, got %v", cfg.LongtailPercentile)
	}
	if cfg.LongtailWait < 0 {
		return nil, fmt.Errorf("batch: LongtailWait must not be negative, got %v", cfg.LongtailWait)
	}
	if cfg.FailFast && cfg.longtailEnabled() {
		return nil, fmt.Errorf("batch: FailFast and longtail cancellation cannot be combined")
	}

	return &Runner{
		exec:   exec,
		cfg:    cfg,
		logger: logging.NewLogger("batch"),
	}, nil
}

// Run executes reqs and returns one result per request, with results[i]
// answering reqs[i] no matter how completions interleave.
//
// In the default isolate mode the returned slice always has len(reqs)
// entries mixing successes and failures, and the error is nil. In fail-fast
// mode the first failure aborts the batch: Run returns a nil slice and an
// *AbortError naming the failing index and class; results already completed
// are discarded, so a non-nil slice always means every entry is populated.
//
// An empty batch returns an empty, non-nil slice without invoking the
// executor.
func (r *Runner) Run(ctx context.Context, reqs []*request.Request) ([]*request.Result, error) {
	if len(reqs) == 0 {
		return []*request.Result{}, nil
	}
	for i, req := range reqs {
		if req == nil {
			return nil, &request.Error{
				Class:   request.ClassValidation,
				Message: fmt.Sprintf("request %d is nil", i),
			}
		}
	}

	mode := "isolate"
	if r.cfg.FailFast {
		mode = "fail_fast"
	}
	limit := r.limitFor(len(reqs))

	start := time.Now()
	batchesTotal.WithLabelValues(mode).Inc()
	batchSize.Observe(float64(len(reqs)))
	defer func() {
		batchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	r.logger.Info().
		Int("batch_size", len(reqs)).
		Int("concurrency", limit).
		Str("mode", mode).
		Msg("batch started")

	if r.cfg.FailFast {
		return r.runFailFast(ctx, reqs, limit)
	}

	results := r.runIsolate(ctx, reqs, limit)

	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
		}
	}
	r.logger.Info().
		Int("batch_size", len(reqs)).
		Int("failures", failures).
		Dur("elapsed", time.Since(start)).
		Msg("batch finished")

	return results, nil
}

// limitFor resolves the effective concurrency ceiling for a batch of n.
func (r *Runner) limitFor(n int) int {
	limit := r.cfg.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if limit > n {
		limit = n
	}
	return limit
}

// runIsolate executes every request regardless of sibling failures. Results
// land in slots indexed by submission position; requests cut off by the
// longtail watcher or the caller's context still produce a result.
func (r *Runner) runIsolate(ctx context.Context, reqs []*request.Request, limit int) []*request.Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*request.Result, len(reqs))
	sem := semaphore.NewWeighted(int64(limit))
	completions := make(chan struct{}, len(reqs))

	cutoff := r.watchLongtail(ctx, cancel, len(reqs), completions)

	var wg sync.WaitGroup
	for i, req := range reqs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// cancelled before this request was admitted
			results[i] = cancelledResult(req, ctx.Err())
			completions <- struct{}{}
			continue
		}

		wg.Add(1)
		go func(i int, req *request.Request) {
			defer wg.Done()
			defer sem.Release(1)

			results[i] = r.exec.Do(ctx, req)
			completions <- struct{}{}
		}(i, req)
	}
	wg.Wait()

	if cutoff != nil && cutoff.Load() {
		cancelled := 0
		for _, res := range results {
			if request.IsClass(res.Err, request.ClassCancelled) {
				cancelled++
			}
		}
		longtailCancels.Add(float64(cancelled))
		r.logger.Info().
			Int("cancelled", cancelled).
			Msg("longtail cutoff applied")
	}

	return results
}

// watchLongtail arms the longtail cutoff when configured: once threshold
// completions have landed it waits the grace period and then cancels
// whatever is still running. The returned flag reports whether the cutoff
// fired.
func (r *Runner) watchLongtail(ctx context.Context, cancel context.CancelFunc, n int, completions <-chan struct{}) *atomic.Bool {
	if !r.cfg.longtailEnabled() {
		return nil
	}

	threshold := int(math.Ceil(r.cfg.LongtailPercentile * float64(n)))
	if threshold >= n {
		// nothing would be left to cancel
		return nil
	}

	fired := &atomic.Bool{}
	go func() {
		for done := 0; done < threshold; done++ {
			select {
			case <-completions:
			case <-ctx.Done():
				return
			}
		}

		timer := time.NewTimer(r.cfg.LongtailWait)
		defer timer.Stop()

		select {
		case <-timer.C:
			fired.Store(true)
			r.logger.Warn().
				Int("completed", threshold).
				Int("batch_size", n).
				Dur("waited", r.cfg.LongtailWait).
				Msg("longtail cutoff cancelling stragglers")
			cancel()
		case <-ctx.Done():
		}
	}()
	return fired
}

// runFailFast stops admitting requests after the first failure, cancels the
// ones in flight, and reports the failure as a single *AbortError.
func (r *Runner) runFailFast(ctx context.Context, reqs []*request.Request, limit int) ([]*request.Result, error) {
	results := make([]*request.Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, req := range reqs {
		if gctx.Err() != nil {
			// a failure has been observed; stop admitting
			break
		}
		g.Go(func() error {
			res := r.exec.Do(gctx, req)
			if res.Err != nil {
				return &AbortError{
					Index: i,
					Class: request.ClassOf(res.Err),
					Err:   res.Err,
				}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// completed successes are discarded along with the batch
		r.logger.Error().Err(err).Msg("batch aborted")
		return nil, err
	}
	return results, nil
}

// cancelledResult builds the result for a request that was never dispatched.
func cancelledResult(req *request.Request, cause error) *request.Result {
	return &request.Result{
		RequestID: req.ID,
		Err: &request.Error{
			Class:     request.ClassCancelled,
			Message:   "request cancelled before dispatch",
			URL:       req.URL.String(),
			RequestID: req.ID,
			Err:       cause,
		},
	}
}
