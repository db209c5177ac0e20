package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/civicsource/fetch-helpers/pkg/batch"
	"github.com/civicsource/fetch-helpers/pkg/client"
	"github.com/civicsource/fetch-helpers/pkg/keypath"
	"github.com/civicsource/fetch-helpers/pkg/logging"
	"github.com/civicsource/fetch-helpers/pkg/metrics"
	"github.com/civicsource/fetch-helpers/pkg/redisfetch"
	"github.com/civicsource/fetch-helpers/pkg/status"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const userAgent = "fetch-helpers-batch-proxy/0.1.0"

// loader is satisfied by every batch.Coordinator keyed by string.
type loader[T any] interface {
	Load(ctx context.Context, key string, extra ...any) (T, error)
}

// pinger reports whether the item source is reachable.
type pinger func(ctx context.Context) error

func main() {
	// Configuration from environment
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnvBool("LOG_PRETTY", false),
		Output: os.Stderr,
	}).With().Str("component", "batch-proxy").Logger()

	port := getEnv("PORT", "8080")
	source := getEnv("SOURCE", "http")

	cfg := batch.DefaultConfig()
	cfg.Name = source
	cfg.MaxBatchSize = getEnvInt("MAX_BATCH_SIZE", cfg.MaxBatchSize)
	cfg.Timeout = getEnvDuration("BATCH_TIMEOUT", cfg.Timeout)

	var (
		items http.Handler
		ready pinger
		stop  func()
	)

	switch source {
	case "http":
		upstream := getEnv("UPSTREAM_URL", "")
		c, err := client.New(client.DefaultConfig(upstream, userAgent))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create upstream client")
		}

		fetch := client.BatchFetch[string, json.RawMessage](c, client.QueryBuilder[string](
			getEnv("UPSTREAM_PATH", "/items"),
			getEnv("KEY_PARAM", "id"),
		))
		coord := batch.New(keypath.String(getEnv("KEY_PATH", "id")), fetch, cfg)
		items, stop = itemsHandler[json.RawMessage](coord, logger), coord.Close

		logger.Info().Str("upstream", upstream).Msg("Using upstream HTTP source")

	case "redis":
		redisURL := getEnv("REDIS_URL", "localhost:6379")
		redisClient := redis.NewClient(&redis.Options{
			Addr: redisURL,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
		}

		src := redisfetch.New(redisClient, getEnv("REDIS_PREFIX", ""), logger)
		coord := batch.New(redisfetch.KeyOf, src.Fetch, cfg)
		items, ready, stop = itemsHandler[redisfetch.Entry](coord, logger), src.Ping, coord.Close

		logger.Info().Str("addr", redisURL).Msg("Using Redis source")

	default:
		logger.Fatal().Str("source", source).Msg("Unknown SOURCE (want http or redis)")
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(items, ready),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int("max_batch_size", cfg.MaxBatchSize).
			Dur("batch_timeout", cfg.Timeout).
			Msg("Starting batch proxy server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
	stop()
}

func newRouter(items http.Handler, ready pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /items/{key}", items)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ping pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := ping(ctx); err != nil {
				http.Error(w, fmt.Sprintf("source not ready: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// itemsHandler serves GET /items/{key} through the coordinator, so concurrent
// requests for different keys share upstream calls.
func itemsHandler[T any](l loader[T], logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		item, err := l.Load(ctx, key)
		if err != nil {
			code := errorStatus(err)
			logger.Debug().Err(err).Str("key", key).Int("status", code).Msg("Item request failed")
			writeJSON(w, code, map[string]any{"message": err.Error(), "status": code})
			return
		}

		writeJSON(w, http.StatusOK, item)
	}
}

// errorStatus maps err to the HTTP status returned to the caller.
func errorStatus(err error) int {
	if code, ok := status.StatusCode(err); ok {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
