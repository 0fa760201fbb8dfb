package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quollview/spreadscraper/internal/domain"
)

const defaultMarketTTL = time.Hour

// marketsKey holds the full allowlisted market list as one JSON array. The
// refresher rewrites it wholesale, so there is no per-market keying to keep
// consistent.
const marketsKey = "markets:active"

// MarketCache implements domain.MarketCache.
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A
// non-positive ttl falls back to one hour.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.rdb, ttl: ttl}
}

// SetMarkets replaces the cached market list.
func (mc *MarketCache) SetMarkets(ctx context.Context, markets []domain.Market) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal markets: %w", err)
	}
	if err := mc.rdb.Set(ctx, marketsKey, data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set markets: %w", err)
	}
	return nil
}

// GetMarkets retrieves the cached market list. It returns domain.ErrNotFound
// when the list has expired or was never set.
func (mc *MarketCache) GetMarkets(ctx context.Context) ([]domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get markets: %w", err)
	}

	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal markets: %w", err)
	}
	return markets, nil
}

// Invalidate drops the cached market list, forcing the next read through to
// the exchange.
func (mc *MarketCache) Invalidate(ctx context.Context) error {
	if err := mc.rdb.Del(ctx, marketsKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate markets: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
