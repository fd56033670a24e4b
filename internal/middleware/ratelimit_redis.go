package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements fixed-window rate limiting backed by Redis,
// so limits hold across multiple API instances. It fails open: if Redis is
// unreachable the request is allowed with the full quota reported.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow checks whether a request for key fits in the current window.
// Returns whether the request is allowed, how many requests remain in the
// window, and seconds until the window resets when blocked.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, retryAfter int) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Set the expiry only when the key is created; NX keeps an existing
	// window's deadline intact.
	pipe.ExpireNX(ctx, key, config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: rate limiting is protection, not a dependency.
		return true, config.RequestsPerWindow, 0
	}

	count := int(incr.Val())
	if count <= config.RequestsPerWindow {
		return true, config.RequestsPerWindow - count, 0
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = config.WindowDuration
	}
	retryAfter = int(ttl / time.Second)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}

// redisStoreAdapter narrows RedisRateLimitStore to the RateLimitStore
// interface used by the RateLimiter middleware.
type redisStoreAdapter struct {
	store *RedisRateLimitStore
}

func (a redisStoreAdapter) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	allowed, _, retryAfter := a.store.Allow(ctx, key, config)
	return allowed, retryAfter
}

// Store returns the RateLimitStore view of the Redis-backed limiter.
func (s *RedisRateLimitStore) Store() RateLimitStore {
	return redisStoreAdapter{store: s}
}
