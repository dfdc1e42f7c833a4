package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/skip-hire/internal/resilience"
)

// DependencyChecker probes the skips API breaker and the optional Redis.
type DependencyChecker struct {
	Breaker *resilience.Breaker
	Redis   *redis.Client
}

// PingUpstream reports the skips API as unavailable while its breaker is
// open. It does not call the API: readiness probes must not spend the
// upstream's budget.
func (c DependencyChecker) PingUpstream(_ context.Context, _ time.Duration) error {
	if c.Breaker == nil {
		return nil
	}
	if c.Breaker.State() == resilience.Open {
		return resilience.ErrOpenCircuit
	}
	return nil
}

// PingRedis pings Redis within timeout, or returns ErrDisabled without a client.
func (c DependencyChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.Redis == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}
