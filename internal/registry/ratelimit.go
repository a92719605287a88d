package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces a per-tool, per-minute invocation budget.
type Limiter interface {
	Allow(ctx context.Context, tool string, perMinute int) (bool, error)
}

// RedisLimiter counts invocations in fixed one-minute windows using
// INCR + EXPIRE, so the budget is shared by every process pointed at the
// same Redis.
type RedisLimiter struct {
	rdb *redis.Client
}

// NewRedisLimiter connects a Redis client and verifies it with a ping.
func NewRedisLimiter(redisURL string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLimiter{rdb: rdb}, nil
}

const limiterKeyPrefix = "medquery:ratelimit:"

// Allow increments the current window's counter and compares it to the budget.
func (l *RedisLimiter) Allow(ctx context.Context, tool string, perMinute int) (bool, error) {
	window := time.Now().Unix() / 60
	key := fmt.Sprintf("%s%s:%d", limiterKeyPrefix, tool, window)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		// First hit in the window owns the expiry.
		if err := l.rdb.Expire(ctx, key, 2*time.Minute).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count <= int64(perMinute), nil
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.rdb.Close()
}

// MemoryLimiter is the single-process fallback when Redis is not configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
}

type memWindow struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates an in-process fixed-window limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memWindow)}
}

// Allow counts invocations in a rolling one-minute fixed window per tool.
func (l *MemoryLimiter) Allow(_ context.Context, tool string, perMinute int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[tool]
	if !ok || now.Sub(w.start) >= time.Minute {
		w = &memWindow{start: now}
		l.windows[tool] = w
	}
	w.count++
	return w.count <= perMinute, nil
}
