package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_breaker_state",
			Help: "Current breaker state per upstream: 0=closed,1=open,2=half-open",
		},
		[]string{"upstream"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_breaker_transition_total",
			Help: "Count of breaker state transitions per upstream",
		},
		[]string{"upstream", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_breaker_open_total",
			Help: "Number of times a breaker transitioned into open state",
		},
		[]string{"upstream"},
	)
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_request_attempts_total",
			Help: "Outbound request attempts by outcome",
		},
		[]string{"upstream", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, RetryAttempts)
}
