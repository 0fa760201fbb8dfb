package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SpreadCache holds the most recent analysis per market for fast reads.
type SpreadCache interface {
	SetAnalysis(ctx context.Context, marketID string, snap SpreadSnapshot) error
	GetAnalysis(ctx context.Context, marketID string) (SpreadSnapshot, error)
}

// MarketCache holds the exchange's current market list.
type MarketCache interface {
	SetMarkets(ctx context.Context, markets []Market) error
	GetMarkets(ctx context.Context) ([]Market, error)
	Invalidate(ctx context.Context) error
}

// ReferenceCache holds recent reference-exchange prices keyed by symbol.
type ReferenceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager serializes work across instances. Acquire returns ErrLockHeld
// when another holder has the key, otherwise a release function.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SummaryBus fans fresh market summaries out to live subscribers.
type SummaryBus interface {
	Publish(ctx context.Context, marketID string, payload []byte) error
	Subscribe(ctx context.Context, pattern string) (<-chan []byte, error)
}
