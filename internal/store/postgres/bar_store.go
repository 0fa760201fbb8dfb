package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quollview/spreadscraper/internal/domain"
)

// BarStore implements domain.BarStore using PostgreSQL.
type BarStore struct {
	pool *pgxpool.Pool
}

var _ domain.BarStore = (*BarStore)(nil)

// NewBarStore creates a new BarStore backed by the given connection pool.
func NewBarStore(pool *pgxpool.Pool) *BarStore {
	return &BarStore{pool: pool}
}

const barCols = `market_id, ts, open, high, low, close,
	spread_min, spread_q1, spread_median, spread_q3, spread_max`

const barUpsertQuery = `
	INSERT INTO bars (` + barCols + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
	) ON CONFLICT (market_id, ts) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		spread_min = EXCLUDED.spread_min,
		spread_q1 = EXCLUDED.spread_q1,
		spread_median = EXCLUDED.spread_median,
		spread_q3 = EXCLUDED.spread_q3,
		spread_max = EXCLUDED.spread_max,
		updated_at = NOW()`

// barUpsertArgs flattens a record into the upsert parameter list. Records
// with short payloads cannot be persisted into the fixed columns.
func barUpsertArgs(rec domain.BarRecord) ([]any, error) {
	bar, err := rec.Bar()
	if err != nil {
		return nil, err
	}
	return []any{
		rec.MarketID, rec.Time.UTC(),
		bar.Open, bar.High, bar.Low, bar.Close,
		bar.SpreadMin, bar.SpreadQ1, bar.SpreadMedian, bar.SpreadQ3, bar.SpreadMax,
	}, nil
}

func scanBarRows(rows pgx.Rows) ([]domain.BarRecord, error) {
	var recs []domain.BarRecord
	for rows.Next() {
		var (
			rec domain.BarRecord
			bar domain.Bar
		)
		if err := rows.Scan(
			&rec.MarketID, &rec.Time,
			&bar.Open, &bar.High, &bar.Low, &bar.Close,
			&bar.SpreadMin, &bar.SpreadQ1, &bar.SpreadMedian, &bar.SpreadQ3, &bar.SpreadMax,
		); err != nil {
			return nil, err
		}
		rec.Time = rec.Time.UTC()
		rec.Data = bar.Values()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Upsert writes one bar record, replacing any existing bar for the same
// series and bucket.
func (s *BarStore) Upsert(ctx context.Context, rec domain.BarRecord) error {
	args, err := barUpsertArgs(rec)
	if err != nil {
		return fmt.Errorf("postgres: upsert bar %s: %w", rec.MarketID, err)
	}
	if _, err := s.pool.Exec(ctx, barUpsertQuery, args...); err != nil {
		return fmt.Errorf("postgres: upsert bar %s@%s: %w", rec.MarketID, rec.Time.UTC().Format(time.RFC3339), err)
	}
	return nil
}

// UpsertBatch writes multiple bar records efficiently using pgx Batch.
func (s *BarStore) UpsertBatch(ctx context.Context, recs []domain.BarRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		args, err := barUpsertArgs(rec)
		if err != nil {
			return fmt.Errorf("postgres: upsert bar batch %s: %w", rec.MarketID, err)
		}
		batch.Queue(barUpsertQuery, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert bar batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRange returns records with from <= ts < to in chronological order.
func (s *BarStore) ListRange(ctx context.Context, marketID string, from, to time.Time) ([]domain.BarRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+barCols+` FROM bars
		 WHERE market_id = $1 AND ts >= $2 AND ts < $3
		 ORDER BY ts ASC`,
		marketID, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bars %s: %w", marketID, err)
	}
	defer rows.Close()

	recs, err := scanBarRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bars %s: %w", marketID, err)
	}
	return recs, nil
}

// Latest returns up to limit records for the series, newest first.
func (s *BarStore) Latest(ctx context.Context, marketID string, limit int) ([]domain.BarRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+barCols+` FROM bars
		 WHERE market_id = $1
		 ORDER BY ts DESC
		 LIMIT $2`,
		marketID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest bars %s: %w", marketID, err)
	}
	defer rows.Close()

	recs, err := scanBarRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan latest bars %s: %w", marketID, err)
	}
	return recs, nil
}

// DeleteBefore removes the series' records older than cutoff and reports how
// many rows went away.
func (s *BarStore) DeleteBefore(ctx context.Context, marketID string, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bars WHERE market_id = $1 AND ts < $2`,
		marketID, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete bars %s before: %w", marketID, err)
	}
	return tag.RowsAffected(), nil
}

// SeriesIDs returns every distinct series id present in the store, sorted.
func (s *BarStore) SeriesIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT market_id FROM bars ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: series ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan series id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: series ids: %w", err)
	}
	return ids, nil
}
