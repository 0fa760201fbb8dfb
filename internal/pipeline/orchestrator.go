package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the pipeline goroutines: snapshot scraping, market
// refresh, bar rollups, and cold-storage archival. Components left nil are
// skipped, so run modes can start any subset.
type Orchestrator struct {
	scraper         *SnapshotScraper
	refresher       *Refresher
	rollup          *Rollup
	archiver        *Archiver
	scrapeInterval  time.Duration
	refreshInterval time.Duration
	archiveCron     string
	logger          *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates the pipeline
// sub-systems.
func NewOrchestrator(
	scraper *SnapshotScraper,
	refresher *Refresher,
	rollup *Rollup,
	archiver *Archiver,
	scrapeInterval time.Duration,
	refreshInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		scraper:         scraper,
		refresher:       refresher,
		rollup:          rollup,
		archiver:        archiver,
		scrapeInterval:  scrapeInterval,
		refreshInterval: refreshInterval,
		archiveCron:     archiveCron,
		logger:          logger,
	}
}

// Run starts the configured sub-pipelines as concurrent goroutines using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context and
// Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.scraper == nil && o.refresher == nil && o.rollup == nil && o.archiver == nil {
		return errors.New("orchestrator: no pipeline components configured")
	}

	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("scrape_interval", o.scrapeInterval),
		slog.Duration("refresh_interval", o.refreshInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Snapshot scraper on ticker.
	if o.scraper != nil {
		g.Go(func() error {
			o.logger.Info("starting snapshot scraper loop")
			err := o.scraper.RunLoop(ctx, o.scrapeInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("snapshot scraper: %w", err)
		})
	}

	// 2. Market refresher on ticker.
	if o.refresher != nil {
		g.Go(func() error {
			o.logger.Info("starting market refresher loop")
			err := o.refresher.RunLoop(ctx, o.refreshInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("market refresher: %w", err)
		})
	}

	// 3. Hourly and daily rollups on cron schedules.
	if o.rollup != nil {
		g.Go(func() error {
			o.logger.Info("starting rollup crons")
			err := o.rollup.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("rollup: %w", err)
		})
	}

	// 4. Archiver on cron schedule.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
