package domain

import (
	"context"
	"time"
)

// BarStore persists bar records keyed by (series id, UTC timestamp).
type BarStore interface {
	Upsert(ctx context.Context, rec BarRecord) error
	UpsertBatch(ctx context.Context, recs []BarRecord) error
	// ListRange returns records with from <= ts < to in chronological order.
	ListRange(ctx context.Context, marketID string, from, to time.Time) ([]BarRecord, error)
	// Latest returns up to limit records, newest first.
	Latest(ctx context.Context, marketID string, limit int) ([]BarRecord, error)
	// DeleteBefore removes records older than cutoff and reports how many.
	DeleteBefore(ctx context.Context, marketID string, cutoff time.Time) (int64, error)
	SeriesIDs(ctx context.Context) ([]string, error)
}

// SpreadStore persists full spread analyses per snapshot.
type SpreadStore interface {
	Insert(ctx context.Context, snap SpreadSnapshot) error
	LatestByMarket(ctx context.Context, marketID string) (SpreadSnapshot, error)
	// ListOlderThan returns snapshot ids and times older than cutoff, oldest
	// first, up to limit.
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]SpreadSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
