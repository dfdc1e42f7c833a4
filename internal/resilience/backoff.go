package resilience

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry number attempt (1-based): base
// doubled per attempt, spread by ±jitterPct (0.2 means 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	attempt = max(attempt, 1)
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
