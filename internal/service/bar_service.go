package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quollview/spreadscraper/internal/bars"
	"github.com/quollview/spreadscraper/internal/domain"
)

// maxBarsPerQuery caps a single read; larger requests are clamped, not
// rejected.
const maxBarsPerQuery = 100

// rollupSource maps a rollup target to the granularity it is reduced from.
var rollupSource = map[domain.Granularity]domain.Granularity{
	domain.Gran1h: domain.Gran1m,
	domain.Gran1d: domain.Gran1h,
}

// BarService serves validated bar reads and executes rollups.
type BarService struct {
	store  domain.BarStore
	logger *slog.Logger
}

// NewBarService creates a BarService.
func NewBarService(store domain.BarStore, logger *slog.Logger) *BarService {
	return &BarService{store: store, logger: logger}
}

// LatestBars returns up to limit records for a series, newest first. A
// non-positive limit and anything above the cap both resolve to the cap.
func (s *BarService) LatestBars(ctx context.Context, seriesID string, limit int) ([]domain.BarRecord, error) {
	if limit <= 0 || limit > maxBarsPerQuery {
		limit = maxBarsPerQuery
	}

	recs, err := s.store.Latest(ctx, seriesID, limit)
	if err != nil {
		return nil, fmt.Errorf("bar_service: latest %q: %w", seriesID, err)
	}
	return recs, nil
}

// Rollup reduces the previous complete window ending at or before `at` into
// one coarser bar per market: the hourly run pools the past hour's 1m bars
// into a 1h bar, the daily run pools 1h bars into a 1d bar. Bars are
// stamped at the window start, boundaries are UTC. Per-series failures are
// logged and skipped; the returned count is the number of bars written.
func (s *BarService) Rollup(ctx context.Context, target domain.Granularity, at time.Time) (int, error) {
	source, ok := rollupSource[target]
	if !ok {
		return 0, fmt.Errorf("bar_service: no rollup source for granularity %q", target)
	}

	winEnd := at.UTC().Truncate(target.Window())
	winStart := winEnd.Add(-target.Window())

	series, err := s.store.SeriesIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("bar_service: rollup series: %w", err)
	}

	rolled := 0
	for _, id := range series {
		base, g, ok := domain.SplitSeriesID(id)
		if !ok || g != source {
			continue
		}

		recs, err := s.store.ListRange(ctx, id, winStart, winEnd)
		if err != nil {
			s.logger.WarnContext(ctx, "bar_service: rollup read failed",
				slog.String("series", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(recs) == 0 {
			continue
		}

		bar := bars.Aggregate(recs)
		if bar == nil {
			continue
		}

		rec := domain.BarRecord{
			MarketID: domain.SeriesID(base, target),
			Time:     winStart,
			Data:     bar.Values(),
		}
		if err := s.store.Upsert(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "bar_service: rollup write failed",
				slog.String("series", rec.MarketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		rolled++
	}

	s.logger.InfoContext(ctx, "bar_service: rollup complete",
		slog.String("target", string(target)),
		slog.Time("window_start", winStart),
		slog.Int("bars", rolled),
	)
	return rolled, nil
}
