package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/quollview/spreadscraper/internal/domain"
)

// MarketRefresher pulls the current market list from the exchange into the
// cache.
type MarketRefresher interface {
	Refresh(ctx context.Context) ([]domain.Market, error)
}

// Refresher keeps the cached market metadata fresh so scrape cycles see
// status changes (suspensions, delistings) without hitting the exchange's
// market endpoint every minute.
type Refresher struct {
	markets MarketRefresher
	logger  *slog.Logger
}

// NewRefresher creates a new Refresher.
func NewRefresher(markets MarketRefresher, logger *slog.Logger) *Refresher {
	return &Refresher{markets: markets, logger: logger}
}

// RunLoop refreshes the market list on a repeating interval until the
// context is cancelled.
func (r *Refresher) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if _, err := r.markets.Refresh(ctx); err != nil {
		r.logger.Error("market refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("market refresher loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.markets.Refresh(ctx); err != nil {
				r.logger.Error("market refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
