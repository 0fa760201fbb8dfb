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

const defaultSpreadTTL = 5 * time.Minute

// SpreadCache implements domain.SpreadCache. The latest snapshot for each
// market lives at "spread:latest:{marketID}" as JSON with a TTL, so API reads
// between scrape ticks never touch postgres and a stalled scraper ages out of
// the cache on its own.
type SpreadCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSpreadCache creates a SpreadCache backed by the given Client. A
// non-positive ttl falls back to 5 minutes.
func NewSpreadCache(c *Client, ttl time.Duration) *SpreadCache {
	if ttl <= 0 {
		ttl = defaultSpreadTTL
	}
	return &SpreadCache{rdb: c.rdb, ttl: ttl}
}

func spreadKey(marketID string) string {
	return "spread:latest:" + marketID
}

// SetAnalysis stores the latest snapshot for a market.
func (sc *SpreadCache) SetAnalysis(ctx context.Context, marketID string, snap domain.SpreadSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal spread %s: %w", marketID, err)
	}
	if err := sc.rdb.Set(ctx, spreadKey(marketID), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set spread %s: %w", marketID, err)
	}
	return nil
}

// GetAnalysis retrieves the latest snapshot for a market. It returns
// domain.ErrNotFound when no fresh snapshot is cached.
func (sc *SpreadCache) GetAnalysis(ctx context.Context, marketID string) (domain.SpreadSnapshot, error) {
	data, err := sc.rdb.Get(ctx, spreadKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.SpreadSnapshot{}, domain.ErrNotFound
		}
		return domain.SpreadSnapshot{}, fmt.Errorf("redis: get spread %s: %w", marketID, err)
	}

	var snap domain.SpreadSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.SpreadSnapshot{}, fmt.Errorf("redis: unmarshal spread %s: %w", marketID, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SpreadCache = (*SpreadCache)(nil)
