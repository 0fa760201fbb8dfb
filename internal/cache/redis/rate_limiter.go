package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quollview/spreadscraper/internal/domain"
)

// RateLimiter implements domain.RateLimiter with a fixed-window counter per
// key: INCR on "ratelimit:{key}:{windowIndex}" plus an EXPIRE so stale
// windows clean themselves up. Counts are shared by every API instance
// pointing at the same Redis.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb}
}

func rateLimitKey(key string, windowIndex int64) string {
	return "ratelimit:" + key + ":" + strconv.FormatInt(windowIndex, 10)
}

// Allow counts a request for key and reports whether it fits within limit
// requests per window. The count is incremented even when the answer is
// false, so hammering a limited key does not earn it an earlier reset.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, fmt.Errorf("redis: rate limit allow %s: non-positive window %s", key, window)
	}

	windowIndex := time.Now().UnixNano() / window.Nanoseconds()
	k := rateLimitKey(key, windowIndex)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// Keys expire one window after their last hit; a fresh window always gets
	// a TTL before its first response is returned.
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	return incr.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
