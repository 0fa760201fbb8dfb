package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

// ReferencePricer supplies a best-effort external reference price for a
// market; ok is false when none is available.
type ReferencePricer interface {
	ReferencePrice(ctx context.Context, marketID string) (decimal.Decimal, bool)
}

// AlerterConfig carries the wide-spread alert thresholds.
type AlerterConfig struct {
	// ThresholdPct fires an alert when the relative spread at BarLevel
	// strictly exceeds it.
	ThresholdPct decimal.Decimal
	// BarLevel selects which quoted depth the threshold applies to.
	BarLevel decimal.Decimal
	// Cooldown suppresses repeat alerts per market.
	Cooldown time.Duration
}

// Alerter watches fresh snapshots and notifies operators when a market's
// relative spread crosses the configured threshold. One alert per market per
// cooldown window; a market that stays wide re-alerts only after the window
// passes.
type Alerter struct {
	notifier *Notifier
	ref      ReferencePricer
	cfg      AlerterConfig
	logger   *slog.Logger

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewAlerter creates an Alerter. ref may be nil when reference pricing is
// disabled.
func NewAlerter(notifier *Notifier, ref ReferencePricer, cfg AlerterConfig, logger *slog.Logger) *Alerter {
	return &Alerter{
		notifier:  notifier,
		ref:       ref,
		cfg:       cfg,
		logger:    logger,
		lastFired: make(map[string]time.Time),
	}
}

// Evaluate checks one snapshot against the threshold and fires the senders
// when it crosses. Delivery failures are logged, never propagated; alerting
// must not disturb the scrape cycle.
func (a *Alerter) Evaluate(ctx context.Context, snap domain.SpreadSnapshot) {
	metrics, ok := snap.Analysis.Metrics(a.cfg.BarLevel)
	if !ok {
		return
	}
	if metrics.RelativeSpreadPct.LessThanOrEqual(a.cfg.ThresholdPct) {
		return
	}

	if !a.shouldFire(snap.MarketID) {
		a.logger.DebugContext(ctx, "alert suppressed by cooldown",
			slog.String("market_id", snap.MarketID),
		)
		return
	}

	title := fmt.Sprintf("Wide spread: %s", snap.MarketID)
	message := a.buildMessage(ctx, snap, metrics)

	if err := a.notifier.Notify(ctx, title, message); err != nil {
		a.logger.WarnContext(ctx, "alert delivery incomplete",
			slog.String("market_id", snap.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// shouldFire checks and arms the per-market cooldown in one step.
func (a *Alerter) shouldFire(marketID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if last, ok := a.lastFired[marketID]; ok && now.Sub(last) < a.cfg.Cooldown {
		return false
	}
	a.lastFired[marketID] = now
	return true
}

// buildMessage renders the alert body.
func (a *Alerter) buildMessage(ctx context.Context, snap domain.SpreadSnapshot, metrics domain.SpreadMetrics) string {
	msg := fmt.Sprintf(
		"Relative spread %s%% at %s quote depth (threshold %s%%)\nBest bid %s / best ask %s",
		metrics.RelativeSpreadPct,
		metrics.LevelQuote,
		a.cfg.ThresholdPct,
		snap.Analysis.Summary.BestBid,
		snap.Analysis.Summary.BestAsk,
	)

	if a.ref != nil {
		if price, ok := a.ref.ReferencePrice(ctx, snap.MarketID); ok {
			msg += fmt.Sprintf("\nReference price %s", price)
		}
	}

	msg += fmt.Sprintf("\nObserved %s", snap.Time.UTC().Format(time.RFC3339))
	return msg
}
