package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

const defaultReferenceTTL = 30 * time.Second

// ReferenceCache implements domain.ReferenceCache. Prices live at
// "refprice:{symbol}" with a short TTL, so API reads that enrich a spread
// view do not hit the reference exchange once per request.
type ReferenceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReferenceCache creates a ReferenceCache backed by the given Client. A
// non-positive ttl falls back to 30 seconds.
func NewReferenceCache(c *Client, ttl time.Duration) *ReferenceCache {
	if ttl <= 0 {
		ttl = defaultReferenceTTL
	}
	return &ReferenceCache{rdb: c.rdb, ttl: ttl}
}

func refPriceKey(symbol string) string {
	return "refprice:" + symbol
}

// SetPrice stores the latest reference price for a symbol.
func (rc *ReferenceCache) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if err := rc.rdb.Set(ctx, refPriceKey(symbol), price.String(), rc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set reference price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice retrieves the cached reference price for a symbol. It returns
// domain.ErrNotFound when no fresh price is cached.
func (rc *ReferenceCache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	val, err := rc.rdb.Get(ctx, refPriceKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Decimal{}, domain.ErrNotFound
		}
		return decimal.Decimal{}, fmt.Errorf("redis: get reference price %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("redis: parse reference price %s: %w", symbol, err)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.ReferenceCache = (*ReferenceCache)(nil)
