package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quollview/spreadscraper/internal/domain"
)

// RollupRunner executes one rollup pass for a target granularity.
type RollupRunner interface {
	Rollup(ctx context.Context, target domain.Granularity, at time.Time) (int, error)
}

// Rollup schedules the bar reductions: an hourly cron pools the previous
// hour's 1m bars into 1h bars, a daily cron pools 1h bars into 1d bars. The
// crons fire just past the window boundary so the window they aggregate is
// complete.
type Rollup struct {
	bars       RollupRunner
	hourlyCron string
	dailyCron  string
	lock       JobLocker
	logger     *slog.Logger
}

// NewRollup creates a Rollup with the two cron expressions.
func NewRollup(bars RollupRunner, hourlyCron, dailyCron string, logger *slog.Logger) *Rollup {
	return &Rollup{
		bars:       bars,
		hourlyCron: hourlyCron,
		dailyCron:  dailyCron,
		logger:     logger,
	}
}

// WithLock serializes each rollup fire across instances, so an all-mode
// instance beside a dedicated rollup deployment does not pool the same
// window twice.
func (r *Rollup) WithLock(lock JobLocker) *Rollup {
	r.lock = lock
	return r
}

// Run operates both cron schedules until the context is cancelled.
func (r *Rollup) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runCron(ctx, r.logger, "rollup_1h", r.hourlyCron,
			lockedJob(r.lock, r.logger, "rollup_1h", func(ctx context.Context) error {
				return r.runOnce(ctx, domain.Gran1h)
			}))
	})
	g.Go(func() error {
		return runCron(ctx, r.logger, "rollup_1d", r.dailyCron,
			lockedJob(r.lock, r.logger, "rollup_1d", func(ctx context.Context) error {
				return r.runOnce(ctx, domain.Gran1d)
			}))
	})

	return g.Wait()
}

func (r *Rollup) runOnce(ctx context.Context, target domain.Granularity) error {
	rolled, err := r.bars.Rollup(ctx, target, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rollup %s: %w", target, err)
	}
	r.logger.Info("rollup pass complete",
		slog.String("target", string(target)),
		slog.Int("bars", rolled),
	)
	return nil
}
