package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/bars"
	"github.com/quollview/spreadscraper/internal/depth"
	"github.com/quollview/spreadscraper/internal/domain"
)

// ActiveMarketSource lists the markets a scrape cycle should visit.
type ActiveMarketSource interface {
	ActiveMarkets(ctx context.Context) ([]domain.Market, error)
}

// BookFetcher retrieves one orderbook snapshot from the exchange.
type BookFetcher interface {
	GetOrderbook(ctx context.Context, marketID string) (domain.Orderbook, error)
}

// SpreadRecorder persists a finished analysis (store, cache, summary bus).
type SpreadRecorder interface {
	Record(ctx context.Context, snap domain.SpreadSnapshot) error
}

// BarUpserter persists one-minute bars.
type BarUpserter interface {
	Upsert(ctx context.Context, rec domain.BarRecord) error
}

// AlertEvaluator inspects a fresh snapshot and fires notifications when it
// crosses the configured thresholds. Implementations own their errors.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, snap domain.SpreadSnapshot)
}

// ScraperConfig carries the per-cycle calculation settings.
type ScraperConfig struct {
	// Levels are the quote notionals each analysis quotes.
	Levels []decimal.Decimal
	// BarLevel selects which quoted level feeds the one-minute bars.
	BarLevel decimal.Decimal
	// MarketTimeout bounds the work done for a single market.
	MarketTimeout time.Duration
}

// SnapshotScraper drives the per-interval scrape cycle: fetch each
// allowlisted market's book, analyze it, persist the spread snapshot and its
// one-minute bar, archive the raw book, and hand the result to alerting.
// A failing market is logged and skipped; the cycle continues.
type SnapshotScraper struct {
	markets  ActiveMarketSource
	books    BookFetcher
	analyzer *depth.Analyzer
	spreads  SpreadRecorder
	bars     BarUpserter
	archiver domain.SnapshotArchiver
	alerts   AlertEvaluator
	cfg      ScraperConfig
	logger   *slog.Logger
}

// NewSnapshotScraper creates a SnapshotScraper. archiver and alerts may be
// nil when the corresponding subsystem is disabled.
func NewSnapshotScraper(
	markets ActiveMarketSource,
	books BookFetcher,
	analyzer *depth.Analyzer,
	spreads SpreadRecorder,
	barStore BarUpserter,
	archiver domain.SnapshotArchiver,
	alerts AlertEvaluator,
	cfg ScraperConfig,
	logger *slog.Logger,
) *SnapshotScraper {
	return &SnapshotScraper{
		markets:  markets,
		books:    books,
		analyzer: analyzer,
		spreads:  spreads,
		bars:     barStore,
		archiver: archiver,
		alerts:   alerts,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes a single scrape cycle over every active allowlisted market.
func (s *SnapshotScraper) Run(ctx context.Context) error {
	runID := uuid.NewString()

	markets, err := s.markets.ActiveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("listing active markets: %w", err)
	}

	scraped := 0
	for _, m := range markets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scrape cycle cancelled: %w", err)
		}

		if err := s.scrapeMarket(ctx, m.MarketID, runID); err != nil {
			s.logger.Error("market scrape failed",
				slog.String("run_id", runID),
				slog.String("market_id", m.MarketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		scraped++
	}

	s.logger.Info("scrape cycle complete",
		slog.String("run_id", runID),
		slog.Int("scraped", scraped),
		slog.Int("markets", len(markets)),
	)
	return nil
}

// scrapeMarket handles one market end to end under the per-market timeout.
func (s *SnapshotScraper) scrapeMarket(ctx context.Context, marketID, runID string) error {
	if s.cfg.MarketTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MarketTimeout)
		defer cancel()
	}

	book, err := s.books.GetOrderbook(ctx, marketID)
	if err != nil {
		return fmt.Errorf("fetching book: %w", err)
	}

	analysis, err := s.analyzer.Analyze(book, s.cfg.Levels)
	if err != nil {
		return fmt.Errorf("analyzing book: %w", err)
	}

	snap := domain.SpreadSnapshot{
		ID:       uuid.NewString(),
		MarketID: marketID,
		Time:     book.Time.UTC(),
		Analysis: analysis,
	}
	if err := s.spreads.Record(ctx, snap); err != nil {
		return err
	}

	bar, err := bars.SnapshotBar(analysis, s.cfg.BarLevel)
	if err != nil {
		return fmt.Errorf("building bar: %w", err)
	}
	rec := domain.BarRecord{
		MarketID: domain.SeriesID(marketID, domain.Gran1m),
		// bucket start, so rescrapes within the same minute upsert in place
		Time: book.Time.UTC().Truncate(time.Minute),
		Data: bar.Values(),
	}
	if err := s.bars.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("storing bar: %w", err)
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveSnapshot(ctx, book, nil); err != nil {
			// the snapshot is already persisted; losing one raw copy is not
			// worth failing the market
			s.logger.Warn("raw snapshot archive failed",
				slog.String("run_id", runID),
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.alerts != nil {
		s.alerts.Evaluate(ctx, snap)
	}
	return nil
}

// RunLoop runs scrape cycles on a repeating interval until the context is
// cancelled.
func (s *SnapshotScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := s.Run(ctx); err != nil {
		s.logger.Error("scrape cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshot scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("scrape cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}
