package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/skip-hire/internal/config"
	"github.com/noah-isme/skip-hire/internal/pipeline"
	"github.com/noah-isme/skip-hire/internal/ratelimit"
	"github.com/noah-isme/skip-hire/internal/resilience"
	"github.com/noah-isme/skip-hire/internal/skipapi"
)

const upstreamName = "skips"

// Dependencies holds the long-lived clients shared by the API server and
// the terminal picker.
type Dependencies struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Breaker *resilience.Breaker
	Skips   *skipapi.HTTPClient
	// Redis is nil when REDIS_URL is unset.
	Redis   *redis.Client
	Limiter ratelimit.Limiter

	closers []func() error
}

// New builds the outbound skips client and, when configured, connects to
// Redis. Without Redis the rate limiter falls back to process memory.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	client, breaker, err := NewSkipsClient(cfg.Skips, logger)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Breaker: breaker,
		Skips:   client,
		Limiter: ratelimit.NewMemory("skiphire:rl:"),
	}

	if cfg.RedisURL != "" {
		rdb, err := OpenRedis(ctx, cfg.RedisURL, cfg.Obs.EnablePrometheus, logger)
		if err != nil {
			return nil, err
		}
		deps.Redis = rdb
		deps.Limiter = ratelimit.RedisSliding{Client: rdb, Prefix: "skiphire:rl:"}
		deps.closers = append(deps.closers, rdb.Close)
	}
	return deps, nil
}

// NewSkipsClient wires the skips API client behind a circuit breaker and
// retrying, traced transport.
func NewSkipsClient(cfg config.SkipsConfig, logger zerolog.Logger) (*skipapi.HTTPClient, *resilience.Breaker, error) {
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithUpstream(upstreamName).
		WithLogger(logger)
	doer := resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		BaseBackoff: 200 * time.Millisecond,
		MaxAttempts: cfg.FetchAttempts,
		Jitter:      0.2,
		Timeout:     cfg.FetchTimeout,
		Upstream:    upstreamName,
	}
	client, err := skipapi.New(cfg.APIURL, doer)
	if err != nil {
		return nil, nil, err
	}
	return client, breaker, nil
}

// OpenRedis parses url, instruments the client and pings it.
func OpenRedis(ctx context.Context, url string, withMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewPipeline returns a pipeline fetching through the shared skips client.
func (d *Dependencies) NewPipeline() (*pipeline.Pipeline, error) {
	logger := d.Logger
	return pipeline.New(pipeline.Config{Fetcher: d.Skips, Logger: &logger})
}

// Close releases every opened client.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// OpenLogOutput returns the writer for path, or fallback when path is empty.
// The returned close func is never nil.
func OpenLogOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return fallback, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f.Close, nil
}
