package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"gowork_messaging/pkg/logger"
)

type RateLimitRepository interface {
	// Allow increments the counter for key and reports whether the caller is
	// still within limit for the current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(rdb *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: rdb, log: log}
}

func (r *rateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, error) {
	count, err := r.redis.Incr(ctx, "ratelimit:"+key).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit counter", "error", err, "key", key)
		return false, 0, err
	}

	if count == 1 {
		r.redis.Expire(ctx, "ratelimit:"+key, window)
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= int64(limit), remaining, nil
}
