package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// DefaultSkipsAPIURL lists skips for the NR32 Lowestoft location.
const DefaultSkipsAPIURL = "https://app.wewantwaste.co.uk/api/skips/by-location?postcode=NR32&area=Lowestoft"

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	Skips     SkipsConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Obs       ObsConfig
}

// SecurityConfig toggles response hardening headers.
type SecurityConfig struct {
	Headers    bool
	HSTSMaxAge int
}

// SkipsConfig controls the outbound skips API client.
type SkipsConfig struct {
	APIURL              string
	FetchTimeout        time.Duration
	FetchAttempts       int
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// SessionConfig controls the in-memory session registry.
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig bounds how often a session may refetch.
type RateLimitConfig struct {
	RetryMax    int
	RetryWindow time.Duration
	CreateMax   int
}

// ObsConfig holds logging, metrics and tracing switches.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	LogFile          string
	EnablePrometheus bool
	MetricsNamespace string
	MetricsBuckets   string
	EnableTracing    bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	ServiceName      string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Skips: SkipsConfig{
			APIURL:              valueOrDefault(k.String("SKIPS_API_URL"), DefaultSkipsAPIURL),
			FetchTimeout:        parseDuration(k.String("SKIPS_FETCH_TIMEOUT"), "8s"),
			FetchAttempts:       parseInt(k.String("SKIPS_FETCH_ATTEMPTS"), 1),
			BreakerMinRequests:  parseInt(k.String("SKIPS_BREAKER_MIN_REQUESTS"), 5),
			BreakerFailureRatio: parseFloat(k.String("SKIPS_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:      parseDuration(k.String("SKIPS_BREAKER_OPEN_FOR"), "30s"),
		},
		Session: SessionConfig{
			IdleTTL:       parseDuration(k.String("SESSION_IDLE_TTL"), "30m"),
			SweepInterval: parseDuration(k.String("SESSION_SWEEP_INTERVAL"), "1m"),
		},
		RateLimit: RateLimitConfig{
			RetryMax:    parseInt(k.String("RETRY_RATE_LIMIT_MAX"), 5),
			RetryWindow: parseDuration(k.String("RETRY_RATE_LIMIT_WINDOW"), "1m"),
			CreateMax:   parseInt(k.String("SESSION_CREATE_RATE_LIMIT_MAX"), 30),
		},
		Security: SecurityConfig{
			Headers:    parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
			HSTSMaxAge: parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 0),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			LogFile:          strings.TrimSpace(k.String("OBS_LOG_FILE")),
			EnablePrometheus: parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "skiphire"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING")),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "skip-hire"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Skips.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SKIPS_API_URL must be an absolute http(s) URL, got %q", c.Skips.APIURL)
	}
	if c.Skips.FetchAttempts < 1 {
		return errors.New("SKIPS_FETCH_ATTEMPTS must be at least 1")
	}
	if c.Skips.BreakerFailureRatio <= 0 || c.Skips.BreakerFailureRatio > 1 {
		return errors.New("SKIPS_BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	if c.Session.IdleTTL <= 0 {
		return errors.New("SESSION_IDLE_TTL must be positive")
	}
	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
