package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

// ReferencePricer is the slice of the Binance client used for reference
// price enrichment.
type ReferencePricer interface {
	AvgPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SpreadView is a spread snapshot plus the optional cross-exchange
// reference price.
type SpreadView struct {
	domain.SpreadSnapshot
	ReferencePrice *decimal.Decimal `json:"reference_price,omitempty"`
}

// SpreadService coordinates spread snapshot writes (store, cache, summary
// bus) and serves reads cache-first.
type SpreadService struct {
	store    domain.SpreadStore
	cache    domain.SpreadCache
	bus      domain.SummaryBus
	ref      ReferencePricer
	refCache domain.ReferenceCache
	symbols  map[string]string
	logger   *slog.Logger
}

// NewSpreadService creates a SpreadService. ref may be nil, in which case
// reference enrichment is disabled; symbols maps market ids to the
// reference exchange's symbols.
func NewSpreadService(
	store domain.SpreadStore,
	cache domain.SpreadCache,
	bus domain.SummaryBus,
	ref ReferencePricer,
	symbols map[string]string,
	logger *slog.Logger,
) *SpreadService {
	return &SpreadService{
		store:   store,
		cache:   cache,
		bus:     bus,
		ref:     ref,
		symbols: symbols,
		logger:  logger,
	}
}

// WithReferenceCache interposes a short-TTL cache in front of the reference
// exchange, so repeated view reads between ticks do not re-query it.
func (s *SpreadService) WithReferenceCache(c domain.ReferenceCache) *SpreadService {
	s.refCache = c
	return s
}

// Record persists one snapshot, refreshes the cache, and publishes the
// market summary. The store write is the source of truth; cache and bus
// failures are logged and absorbed.
func (s *SpreadService) Record(ctx context.Context, snap domain.SpreadSnapshot) error {
	if err := s.store.Insert(ctx, snap); err != nil {
		return fmt.Errorf("spread_service: insert %q: %w", snap.MarketID, err)
	}

	if err := s.cache.SetAnalysis(ctx, snap.MarketID, snap); err != nil {
		s.logger.WarnContext(ctx, "spread_service: cache set failed",
			slog.String("market_id", snap.MarketID),
			slog.String("error", err.Error()),
		)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "market_summary",
		"market_id": snap.MarketID,
		"summary":   snap.Analysis.Summary,
		"timestamp": snap.Time.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, snap.MarketID, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "spread_service: publish summary failed",
			slog.String("market_id", snap.MarketID),
			slog.String("error", pubErr.Error()),
		)
	}

	return nil
}

// Latest returns the most recent snapshot for a market, serving from the
// cache and falling back to the store on a miss. Store hits are written
// back to the cache.
func (s *SpreadService) Latest(ctx context.Context, marketID string) (domain.SpreadSnapshot, error) {
	snap, err := s.cache.GetAnalysis(ctx, marketID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "spread_service: cache read failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	snap, err = s.store.LatestByMarket(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SpreadSnapshot{}, domain.ErrNotFound
		}
		return domain.SpreadSnapshot{}, fmt.Errorf("spread_service: latest %q: %w", marketID, err)
	}

	if cacheErr := s.cache.SetAnalysis(ctx, marketID, snap); cacheErr != nil {
		s.logger.WarnContext(ctx, "spread_service: cache backfill failed",
			slog.String("market_id", marketID),
			slog.String("error", cacheErr.Error()),
		)
	}
	return snap, nil
}

// LatestView returns the latest snapshot enriched with the reference price
// when one is available.
func (s *SpreadService) LatestView(ctx context.Context, marketID string) (SpreadView, error) {
	snap, err := s.Latest(ctx, marketID)
	if err != nil {
		return SpreadView{}, err
	}

	view := SpreadView{SpreadSnapshot: snap}
	if price, ok := s.ReferencePrice(ctx, marketID); ok {
		view.ReferencePrice = &price
	}
	return view, nil
}

// ReferencePrice returns the reference exchange's current average price for
// a market, when enrichment is enabled and the market has a symbol mapping.
// Lookup failures are logged, never surfaced: enrichment is best-effort.
func (s *SpreadService) ReferencePrice(ctx context.Context, marketID string) (decimal.Decimal, bool) {
	if s.ref == nil {
		return decimal.Decimal{}, false
	}
	symbol, ok := s.symbols[marketID]
	if !ok {
		return decimal.Decimal{}, false
	}

	if s.refCache != nil {
		price, err := s.refCache.GetPrice(ctx, symbol)
		if err == nil {
			return price, true
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.DebugContext(ctx, "spread_service: reference cache read failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	price, err := s.ref.AvgPrice(ctx, symbol)
	if err != nil {
		s.logger.DebugContext(ctx, "spread_service: reference price failed",
			slog.String("market_id", marketID),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return decimal.Decimal{}, false
	}

	if s.refCache != nil {
		if cacheErr := s.refCache.SetPrice(ctx, symbol, price); cacheErr != nil {
			s.logger.DebugContext(ctx, "spread_service: reference cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return price, true
}
