package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SkipsFetchTotal counts skips API fetches by result (ok or a failure kind).
	SkipsFetchTotal *prometheus.CounterVec
	// SkipsFetchDuration records fetch latency in milliseconds.
	SkipsFetchDuration *prometheus.HistogramVec
	// ActiveSessions tracks live selection sessions.
	ActiveSessions prometheus.Gauge
	// SessionsEvicted counts sessions removed by the idle janitor.
	SessionsEvicted prometheus.Counter
	// RateLimitRejected counts requests refused by the rate limiter.
	RateLimitRejected *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SkipsFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skips_fetch_total",
			Help:      "Count of skips API fetches by result.",
		}, []string{"result"})
		SkipsFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "skips_fetch_duration_ms",
			Help:      "Latency of skips API fetches in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"})
		ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live selection sessions.",
		})
		SessionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed after exceeding the idle TTL.",
		})
		RateLimitRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"})

		register(reg, &SkipsFetchTotal)
		register(reg, &SkipsFetchDuration)
		register(reg, &ActiveSessions)
		register(reg, &SessionsEvicted)
		register(reg, &RateLimitRejected)
	})
}

// ObserveSkipsFetch records one fetch outcome. It is a no-op until the
// domain metrics are registered.
func ObserveSkipsFetch(result string, took time.Duration) {
	if SkipsFetchTotal != nil {
		SkipsFetchTotal.WithLabelValues(result).Inc()
	}
	if SkipsFetchDuration != nil {
		SkipsFetchDuration.WithLabelValues(result).Observe(DurationMillis(took))
	}
}

// SetActiveSessions publishes the current session count.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}

// AddSessionsEvicted counts janitor evictions.
func AddSessionsEvicted(n int) {
	if SessionsEvicted != nil && n > 0 {
		SessionsEvicted.Add(float64(n))
	}
}

// IncRateLimitRejected counts a limiter rejection for route.
func IncRateLimitRejected(route string) {
	if RateLimitRejected != nil {
		RateLimitRejected.WithLabelValues(route).Inc()
	}
}
