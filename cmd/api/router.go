package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skip-hire/internal/app"
	"github.com/noah-isme/skip-hire/internal/common"
	"github.com/noah-isme/skip-hire/internal/config"
	"github.com/noah-isme/skip-hire/internal/health"
	"github.com/noah-isme/skip-hire/internal/obs"
	"github.com/noah-isme/skip-hire/internal/ratelimit"
	"github.com/noah-isme/skip-hire/internal/security"
	"github.com/noah-isme/skip-hire/internal/session"
)

type routerConfig struct {
	Config   *config.Config
	Deps     *app.Dependencies
	Registry *session.Registry
	Logger   zerolog.Logger
	// Metrics is nil when Prometheus is disabled.
	Metrics *obs.HTTPMetrics
	Tracing bool
}

func newRouter(rc routerConfig) (http.Handler, error) {
	cfg := rc.Config
	onLimiterError := func(err error) {
		rc.Logger.Warn().Err(err).Msg("rate limiter unavailable")
	}
	retryLimit := ratelimit.Handler{
		Limiter: rc.Deps.Limiter,
		Config: ratelimit.Config{
			Name:   "retry",
			Key:    func(r *http.Request) string { return "retry:" + chi.URLParam(r, "id") },
			Window: cfg.RateLimit.RetryWindow,
			Max:    cfg.RateLimit.RetryMax,
		},
		OnError: onLimiterError,
	}
	createLimit := ratelimit.Handler{
		Limiter: rc.Deps.Limiter,
		Config: ratelimit.Config{
			Name:   "create",
			Key:    func(r *http.Request) string { return "create:" + common.ClientIP(r) },
			Window: time.Minute,
			Max:    cfg.RateLimit.CreateMax,
		},
		OnError: onLimiterError,
	}

	sessions, err := session.NewHandler(session.HandlerConfig{
		Registry:     rc.Registry,
		FetchTimeout: cfg.Skips.FetchTimeout,
		RetryLimit:   retryLimit.Middleware,
		CreateLimit:  createLimit.Middleware,
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rc.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rc.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: cfg.Security.Headers, HSTSMaxAge: cfg.Security.HSTSMaxAge}.Middleware)

	if rc.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker: health.DependencyChecker{Breaker: rc.Deps.Breaker, Redis: rc.Deps.Redis},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", sessions.Register)
	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
