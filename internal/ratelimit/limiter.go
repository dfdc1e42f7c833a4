package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Limiter decides whether another event for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, remaining int, reset time.Time, err error)
}

// RedisSliding implements a sliding window rate limiter backed by Redis
// sorted sets. Limits are shared by every replica using the same Redis.
type RedisSliding struct {
	Client *redis.Client
	Prefix string
}

// Allow registers an event for the given key and returns whether it is within the limit.
func (l RedisSliding) Allow(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || limit <= 0 || window <= 0 {
		return true, limit, time.Now().Add(window), nil
	}

	now := time.Now()
	until := now.Add(window)
	cutoff := float64(now.Add(-window).UnixNano())

	redisKey := l.Prefix + key
	member := key + ":" + uuid.NewString()

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, until, fmt.Errorf("ratelimit: redis pipeline: %w", err)
	}

	current := int(countCmd.Val())
	return current <= limit, max(0, limit-current), until, nil
}

// Memory is a process-local fixed window limiter on the ulule memory store.
// It serves single-instance deployments that run without Redis.
type Memory struct {
	store limiter.Store
}

// NewMemory returns a Memory limiter whose keys are namespaced by prefix.
func NewMemory(prefix string) *Memory {
	return &Memory{store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: time.Minute,
	})}
}

// Allow counts one event for key.
func (m *Memory) Allow(ctx context.Context, key string, window time.Duration, limit int) (bool, int, time.Time, error) {
	if limit <= 0 || window <= 0 {
		return true, limit, time.Now().Add(window), nil
	}
	res, err := m.store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(limit)})
	if err != nil {
		return false, 0, time.Now().Add(window), fmt.Errorf("ratelimit: memory store: %w", err)
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
