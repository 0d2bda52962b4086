package client

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/volley/pkg/cache"
	"github.com/Sternrassler/volley/pkg/logging"
	"github.com/Sternrassler/volley/pkg/pool"
	"github.com/Sternrassler/volley/pkg/request"
)

// Do executes a single request through the pool and returns its result.
// It implements batch.Executor, so batch fan-out runs through this path.
func (c *Client) Do(ctx context.Context, req *request.Request) *request.Result {
	start := time.Now()

	if req == nil {
		errorsTotal.WithLabelValues(string(request.ClassValidation)).Inc()
		return &request.Result{
			Elapsed: time.Since(start),
			Err: &request.Error{
				Class:   request.ClassValidation,
				Message: "request must not be nil",
			},
		}
	}

	if c.closed.Load() {
		return c.failure(req, start, &request.Error{
			Class:     request.ClassValidation,
			Message:   "client is closed",
			URL:       req.URL.String(),
			RequestID: req.ID,
			Err:       ErrClientClosed,
		})
	}

	// a batch abort may cancel before this request ever ran
	if err := ctx.Err(); err != nil {
		class := request.ClassCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			class = request.ClassTimeout
		}
		return c.failure(req, start, &request.Error{
			Class:     class,
			Message:   "request cancelled before dispatch",
			URL:       req.URL.String(),
			RequestID: req.ID,
			Err:       err,
		})
	}

	// per-request timeout, falling back to the client default
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if res := c.fromCache(ctx, req, start); res != nil {
		return res
	}

	res := c.exchange(ctx, req, start)
	if res.Err == nil {
		c.storeCache(ctx, req, res.Response)
	}
	return res
}

// exchange performs the wire exchange: acquire, send, receive, release.
func (c *Client) exchange(ctx context.Context, req *request.Request, start time.Time) *request.Result {
	key, err := pool.KeyFromURL(req.URL)
	if err != nil {
		return c.failure(req, start, &request.Error{
			Class:     request.ClassValidation,
			Message:   "deriving pool key",
			URL:       req.URL.String(),
			RequestID: req.ID,
			Err:       err,
		})
	}

	conn, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return c.failure(req, start, classifyAcquire(req, err))
	}

	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		// the connection was never written to; keep it
		c.pool.Release(conn, true)
		return c.failure(req, start, asRequestError(req, err))
	}
	c.prepare(httpReq)

	// socket deadline spanning the whole exchange
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	stop := watchCancel(ctx, conn)

	if err := httpReq.Write(conn); err != nil {
		stop()
		c.pool.Release(conn, false)
		return c.failure(req, start, classifyIO(ctx, req, phaseSend, err))
	}

	resp, err := http.ReadResponse(conn.Reader(), httpReq)
	if err != nil {
		stop()
		c.pool.Release(conn, false)
		return c.failure(req, start, classifyIO(ctx, req, phaseReceive, err))
	}

	body, err := c.readBody(resp)
	if err != nil {
		stop()
		c.pool.Release(conn, false)
		return c.failure(req, start, classifyIO(ctx, req, phaseBody, err))
	}

	// the watcher must be gone before the connection can change hands
	stop()

	conn.SetDeadline(time.Time{})
	c.pool.Release(conn, !resp.Close)

	return c.success(req, start, &request.Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
		URL:        req.URL.String(),
	})
}

// watchCancel force-closes the connection when ctx ends while the exchange
// is blocked on it. The returned stop function waits for the watcher to
// exit, so a recycled connection can never be closed by a stale watcher.
func watchCancel(ctx context.Context, conn *pool.Conn) (stop func()) {
	stopped := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopped:
		}
	}()

	return func() {
		close(stopped)
		<-done
	}
}

// prepare applies client-wide headers the descriptor did not set.
func (c *Client) prepare(httpReq *http.Request) {
	if c.config.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.EnableCompression && httpReq.Header.Get("Accept-Encoding") == "" {
		httpReq.Header.Set("Accept-Encoding", "gzip")
	}
}

// readBody drains and closes the response body, transparently decoding
// gzip when compression is enabled.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if c.config.EnableCompression && strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz

		// the caller sees the decoded body
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
	}

	return io.ReadAll(reader)
}

// fromCache serves a GET from the response cache when a fresh entry
// exists. Cache trouble is logged and degrades to a miss.
func (c *Client) fromCache(ctx context.Context, req *request.Request, start time.Time) *request.Result {
	if c.cache == nil || req.Method != http.MethodGet {
		return nil
	}

	key := cache.Key{Method: req.Method, URL: req.URL.String()}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn().
				Err(err).
				Str("url", req.URL.String()).
				Msg("cache lookup failed, falling through to network")
		}
		return nil
	}

	logging.WithRequestID(c.logger, req.ID).Debug().
		Str("url", req.URL.String()).
		Msg("served from cache")
	return c.success(req, start, entry.Response(req.URL.String()))
}

// storeCache stores a cacheable GET response. Failures are logged, never
// surfaced: the response in hand is already good.
func (c *Client) storeCache(ctx context.Context, req *request.Request, resp *request.Response) {
	if c.cache == nil || req.Method != http.MethodGet || !cache.Cacheable(resp) {
		return
	}

	key := cache.Key{Method: req.Method, URL: req.URL.String()}
	if err := c.cache.Set(ctx, key, cache.FromResponse(resp, c.config.CacheTTL)); err != nil {
		c.logger.Warn().
			Err(err).
			Str("url", req.URL.String()).
			Msg("cache store failed")
	}
}

// success records metrics and builds the Success result.
func (c *Client) success(req *request.Request, start time.Time, resp *request.Response) *request.Result {
	elapsed := time.Since(start)
	requestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	requestDuration.WithLabelValues(req.Method).Observe(elapsed.Seconds())

	logging.WithRequestID(c.logger, req.ID).Debug().
		Str("method", req.Method).
		Str("url", resp.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("request complete")

	return &request.Result{
		RequestID: req.ID,
		Elapsed:   elapsed,
		Response:  resp,
	}
}

// failure records metrics and builds the Failure result.
func (c *Client) failure(req *request.Request, start time.Time, reqErr *request.Error) *request.Result {
	elapsed := time.Since(start)
	requestsTotal.WithLabelValues(req.Method, string(reqErr.Class)).Inc()
	requestDuration.WithLabelValues(req.Method).Observe(elapsed.Seconds())
	errorsTotal.WithLabelValues(string(reqErr.Class)).Inc()

	logging.WithRequestID(c.logger, req.ID).Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("class", string(reqErr.Class)).
		Dur("elapsed", elapsed).
		Err(reqErr).
		Msg("request failed")

	return &request.Result{
		RequestID: req.ID,
		Elapsed:   elapsed,
		Err:       reqErr,
	}
}

// asRequestError keeps an existing *request.Error or wraps err as a
// validation failure.
func asRequestError(req *request.Request, err error) *request.Error {
	var reqErr *request.Error
	if errors.As(err, &reqErr) {
		if reqErr.RequestID == "" {
			reqErr.RequestID = req.ID
		}
		if reqErr.URL == "" {
			reqErr.URL = req.URL.String()
		}
		return reqErr
	}
	return &request.Error{
		Class:     request.ClassValidation,
		Message:   "building http request",
		URL:       req.URL.String(),
		RequestID: req.ID,
		Err:       err,
	}
}
