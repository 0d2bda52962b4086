// volleyd exposes the request engine over HTTP: submit a batch of
// requests as JSON, get the per-request outcomes back as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/volley/internal/config"
	"github.com/Sternrassler/volley/pkg/batch"
	"github.com/Sternrassler/volley/pkg/client"
	"github.com/Sternrassler/volley/pkg/logging"
	"github.com/Sternrassler/volley/pkg/request"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.LogLevel)
	logging.Setup(logCfg)
	logger := logging.NewLogger("volleyd")

	// Redis is optional. When it is down at startup the cache layer
	// degrades to direct requests, so a failed ping is not fatal.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, caching disabled until it recovers")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("response cache enabled")
		}
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Redis = redisClient
	engine, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create request engine")
	}
	defer engine.Close()

	if len(cfg.Warmup.Targets) > 0 {
		warmTargets(logger, engine, cfg)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient, engine))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/run", runHandler(engine))

	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddress).Str("version", client.Version).Msg("volleyd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}

// warmTargets pre-opens connections to the configured targets so the
// first batches do not pay dial latency.
func warmTargets(logger zerolog.Logger, engine *client.Client, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, res := range engine.Warmup(ctx, cfg.Warmup.Targets...) {
		if res.Err != nil {
			logger.Warn().Err(res.Err).Str("target", res.Target).Msg("warmup failed")
			continue
		}
		logger.Info().
			Str("target", res.Target).
			Int("opened", res.Opened).
			Int("existing", res.Existing).
			Msg("warmup complete")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether volleyd can serve traffic: the engine is
// up and Redis answers pings when caching is configured.
func readyHandler(redisClient *redis.Client, engine *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
			return
		}
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("redis unavailable: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// runRequest is the JSON body of POST /run.
type runRequest struct {
	Requests []requestSpec `json:"requests"`
}

// requestSpec describes one request of a submitted batch.
type requestSpec struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    string            `json:"body,omitempty"`
	JSON    json.RawMessage   `json:"json,omitempty"`
	Timeout string            `json:"timeout,omitempty"`
}

// resultPayload is the JSON form of one request outcome.
type resultPayload struct {
	RequestID  string            `json:"request_id"`
	Status     int               `json:"status,omitempty"`
	ElapsedMS  float64           `json:"elapsed_ms"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorClass string            `json:"error_class,omitempty"`
}

type runResponse struct {
	Results []resultPayload `json:"results"`
}

// runHandler executes a submitted batch. Query parameters concurrency
// and fail_fast override the configured batch defaults per call.
func runHandler(engine *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload runRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
			return
		}
		if len(payload.Requests) == 0 {
			http.Error(w, "requests must not be empty", http.StatusBadRequest)
			return
		}

		reqs := make([]*request.Request, len(payload.Requests))
		for i, spec := range payload.Requests {
			req, err := buildRequest(spec)
			if err != nil {
				http.Error(w, fmt.Sprintf("request %d: %v", i, err), http.StatusBadRequest)
				return
			}
			reqs[i] = req
		}

		opts, err := runOptions(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		results, err := engine.Run(r.Context(), reqs, opts...)
		if err != nil {
			var abort *batch.AbortError
			if errors.As(err, &abort) {
				http.Error(w, fmt.Sprintf("batch aborted at request %d: %v", abort.Index, abort.Err), http.StatusBadGateway)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := runResponse{Results: make([]resultPayload, len(results))}
		for i, res := range results {
			resp.Results[i] = toPayload(res)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logging.NewLogger("volleyd").Error().Err(err).Msg("failed to write run response")
		}
	}
}

// buildRequest maps one wire spec onto an engine request.
func buildRequest(spec requestSpec) (*request.Request, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var opts []request.Option
	for key, value := range spec.Headers {
		opts = append(opts, request.WithHeader(key, value))
	}
	for key, value := range spec.Query {
		opts = append(opts, request.WithQuery(key, value))
	}
	if spec.Body != "" && len(spec.JSON) > 0 {
		return nil, errors.New("body and json are mutually exclusive")
	}
	if spec.Body != "" {
		opts = append(opts, request.WithBody([]byte(spec.Body)))
	}
	if len(spec.JSON) > 0 {
		opts = append(opts, request.WithJSON(spec.JSON))
	}
	if spec.Timeout != "" {
		d, err := time.ParseDuration(spec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", spec.Timeout, err)
		}
		opts = append(opts, request.WithTimeout(d))
	}

	return request.NewRequest(method, spec.URL, opts...)
}

// runOptions translates the concurrency and fail_fast query parameters.
func runOptions(r *http.Request) ([]client.RunOption, error) {
	var opts []client.RunOption

	if raw := r.URL.Query().Get("concurrency"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid concurrency %q", raw)
		}
		opts = append(opts, client.WithConcurrency(n))
	}
	if raw := r.URL.Query().Get("fail_fast"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fail_fast %q", raw)
		}
		opts = append(opts, client.WithFailFast(enabled))
	}

	return opts, nil
}

func toPayload(res *request.Result) resultPayload {
	p := resultPayload{
		RequestID: res.RequestID,
		ElapsedMS: float64(res.Elapsed.Microseconds()) / 1000.0,
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
		p.ErrorClass = string(res.ErrorClass())
		return p
	}
	p.Status = res.Response.StatusCode
	p.Body = string(res.Response.Body)
	p.Headers = make(map[string]string, len(res.Response.Header))
	for key := range res.Response.Header {
		p.Headers[key] = res.Response.Header.Get(key)
	}
	return p
}
