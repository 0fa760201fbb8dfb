package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quollview/spreadscraper/internal/domain"
)

// SpreadStore implements domain.SpreadStore using PostgreSQL. A snapshot is
// one spread_snapshots row (id, market, ts, top-of-book summary) plus one
// spread_levels row per quoted depth.
type SpreadStore struct {
	pool *pgxpool.Pool
}

var _ domain.SpreadStore = (*SpreadStore)(nil)

// NewSpreadStore creates a new SpreadStore backed by the given connection pool.
func NewSpreadStore(pool *pgxpool.Pool) *SpreadStore {
	return &SpreadStore{pool: pool}
}

const snapshotInsertQuery = `
	INSERT INTO spread_snapshots (
		id, market_id, ts, best_bid, best_ask, best_spread, best_spread_pct
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING`

const levelInsertQuery = `
	INSERT INTO spread_levels (
		snapshot_id, level_key, level_quote, buy_price, sell_price,
		buy_filled_quote, sell_filled_quote, absolute_spread,
		relative_spread_pct, impact_buy_pct, impact_sell_pct
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (snapshot_id, level_key) DO NOTHING`

const levelSelectCols = `level_key, level_quote, buy_price, sell_price,
	buy_filled_quote, sell_filled_quote, absolute_spread,
	relative_spread_pct, impact_buy_pct, impact_sell_pct`

// Insert persists one analysis atomically enough for this workload: the
// snapshot row and all level rows go out in a single batch, and replays of
// the same snapshot id are no-ops.
func (s *SpreadStore) Insert(ctx context.Context, snap domain.SpreadSnapshot) error {
	batch := &pgx.Batch{}
	batch.Queue(snapshotInsertQuery,
		snap.ID, snap.MarketID, snap.Time.UTC(),
		snap.Analysis.Summary.BestBid, snap.Analysis.Summary.BestAsk,
		snap.Analysis.Summary.BestSpread, snap.Analysis.Summary.BestSpreadPct,
	)
	for key, m := range snap.Analysis.Levels {
		batch.Queue(levelInsertQuery,
			snap.ID, key, m.LevelQuote, m.BuyPrice, m.SellPrice,
			m.BuyFilledQuote, m.SellFilledQuote, m.AbsoluteSpread,
			m.RelativeSpreadPct, m.MarketImpactBuyPct, m.MarketImpactSellPct,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(snap.Analysis.Levels)+1; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert spread %s item %d: %w", snap.MarketID, i, err)
		}
	}
	return nil
}

// LatestByMarket returns the most recent snapshot for a market, with its
// level entries rebuilt.
func (s *SpreadStore) LatestByMarket(ctx context.Context, marketID string) (domain.SpreadSnapshot, error) {
	snap := domain.SpreadSnapshot{
		Analysis: domain.SpreadAnalysis{Levels: map[string]domain.SpreadMetrics{}},
	}

	err := s.pool.QueryRow(ctx,
		`SELECT id, market_id, ts, best_bid, best_ask, best_spread, best_spread_pct
		 FROM spread_snapshots
		 WHERE market_id = $1
		 ORDER BY ts DESC
		 LIMIT 1`,
		marketID,
	).Scan(
		&snap.ID, &snap.MarketID, &snap.Time,
		&snap.Analysis.Summary.BestBid, &snap.Analysis.Summary.BestAsk,
		&snap.Analysis.Summary.BestSpread, &snap.Analysis.Summary.BestSpreadPct,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SpreadSnapshot{}, domain.ErrNotFound
		}
		return domain.SpreadSnapshot{}, fmt.Errorf("postgres: latest spread %s: %w", marketID, err)
	}
	snap.Time = snap.Time.UTC()
	snap.Analysis.Summary.MarketID = snap.MarketID

	if err := s.loadLevels(ctx, &snap); err != nil {
		return domain.SpreadSnapshot{}, err
	}
	return snap, nil
}

// ListOlderThan returns full snapshots older than cutoff, oldest first, up to
// limit. The archiver drains the table through this in bounded slices.
func (s *SpreadStore) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.SpreadSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, ts, best_bid, best_ask, best_spread, best_spread_pct
		 FROM spread_snapshots
		 WHERE ts < $1
		 ORDER BY ts ASC
		 LIMIT $2`,
		cutoff.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list spreads older than: %w", err)
	}
	defer rows.Close()

	var snaps []domain.SpreadSnapshot
	for rows.Next() {
		snap := domain.SpreadSnapshot{
			Analysis: domain.SpreadAnalysis{Levels: map[string]domain.SpreadMetrics{}},
		}
		if err := rows.Scan(
			&snap.ID, &snap.MarketID, &snap.Time,
			&snap.Analysis.Summary.BestBid, &snap.Analysis.Summary.BestAsk,
			&snap.Analysis.Summary.BestSpread, &snap.Analysis.Summary.BestSpreadPct,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan spread snapshot: %w", err)
		}
		snap.Time = snap.Time.UTC()
		snap.Analysis.Summary.MarketID = snap.MarketID
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list spreads older than: %w", err)
	}

	for i := range snaps {
		if err := s.loadLevels(ctx, &snaps[i]); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

// DeleteBefore removes snapshots older than cutoff; level rows follow via
// ON DELETE CASCADE. Returns the number of snapshots deleted.
func (s *SpreadStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM spread_snapshots WHERE ts < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete spreads before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// loadLevels fills snap.Analysis.Levels from the level rows of the snapshot.
func (s *SpreadStore) loadLevels(ctx context.Context, snap *domain.SpreadSnapshot) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+levelSelectCols+` FROM spread_levels WHERE snapshot_id = $1`,
		snap.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: load spread levels %s: %w", snap.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			m   domain.SpreadMetrics
		)
		if err := rows.Scan(
			&key, &m.LevelQuote, &m.BuyPrice, &m.SellPrice,
			&m.BuyFilledQuote, &m.SellFilledQuote, &m.AbsoluteSpread,
			&m.RelativeSpreadPct, &m.MarketImpactBuyPct, &m.MarketImpactSellPct,
		); err != nil {
			return fmt.Errorf("postgres: scan spread level: %w", err)
		}
		snap.Analysis.Levels[key] = m
	}
	return rows.Err()
}
