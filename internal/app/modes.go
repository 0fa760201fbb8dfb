package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quollview/spreadscraper/internal/depth"
	"github.com/quollview/spreadscraper/internal/notify"
	"github.com/quollview/spreadscraper/internal/pipeline"
	"github.com/quollview/spreadscraper/internal/server"
	"github.com/quollview/spreadscraper/internal/server/handler"
	"github.com/quollview/spreadscraper/internal/server/ws"
	"github.com/quollview/spreadscraper/internal/service"
)

// ScrapeMode runs the collection pipeline: per-interval snapshot scraping,
// the market refresher, and the retention archiver when blob storage is
// enabled.
func (a *App) ScrapeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scrape mode")

	if !a.cfg.Scraper.Enabled {
		a.logger.WarnContext(ctx, "scraper.enabled is false, but scrape mode always runs the scraper")
	}

	g, ctx := errgroup.WithContext(ctx)

	marketSvc, err := a.newMarketService(deps)
	if err != nil {
		return fmt.Errorf("scrape mode: %w", err)
	}
	spreadSvc := a.newSpreadService(deps)

	scraper := a.newSnapshotScraper(deps, marketSvc, spreadSvc)
	refresher := pipeline.NewRefresher(marketSvc, a.logger)
	archiver := a.newArchiver(deps)

	orch := pipeline.NewOrchestrator(
		scraper, refresher, nil, archiver,
		a.cfg.Scraper.Interval.Duration,
		a.cfg.Markets.RefreshInterval.Duration,
		a.cfg.Blob.ArchiveCron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	return g.Wait()
}

// RollupMode runs only the scheduled bar reductions (1m to 1h, 1h to 1d).
func (a *App) RollupMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting rollup mode")

	if !a.cfg.Rollup.Enabled {
		a.logger.WarnContext(ctx, "rollup.enabled is false, but rollup mode always runs the rollups")
	}

	g, ctx := errgroup.WithContext(ctx)

	barSvc := service.NewBarService(deps.BarStore, a.logger)
	rollup := pipeline.NewRollup(barSvc, a.cfg.Rollup.HourlyCron, a.cfg.Rollup.DailyCron, a.logger).
		WithLock(deps.LockManager)

	orch := pipeline.NewOrchestrator(
		nil, nil, rollup, nil,
		a.cfg.Scraper.Interval.Duration,
		a.cfg.Markets.RefreshInterval.Duration,
		a.cfg.Blob.ArchiveCron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	return g.Wait()
}

// APIMode serves the public read API and websocket hub without running any
// collection pipelines.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)

	marketSvc, err := a.newMarketService(deps)
	if err != nil {
		return fmt.Errorf("api mode: %w", err)
	}
	spreadSvc := a.newSpreadService(deps)
	barSvc := service.NewBarService(deps.BarStore, a.logger)

	a.startHTTPServer(ctx, g, deps, marketSvc, spreadSvc, barSvc)

	return g.Wait()
}

// AllMode starts every subsystem the configuration enables: scraping,
// rollups, archival, and the HTTP API.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all mode")

	g, ctx := errgroup.WithContext(ctx)

	marketSvc, err := a.newMarketService(deps)
	if err != nil {
		return fmt.Errorf("all mode: %w", err)
	}
	spreadSvc := a.newSpreadService(deps)
	barSvc := service.NewBarService(deps.BarStore, a.logger)

	var scraper *pipeline.SnapshotScraper
	var refresher *pipeline.Refresher
	if a.cfg.Scraper.Enabled {
		scraper = a.newSnapshotScraper(deps, marketSvc, spreadSvc)
		refresher = pipeline.NewRefresher(marketSvc, a.logger)
	}

	var rollup *pipeline.Rollup
	if a.cfg.Rollup.Enabled {
		rollup = pipeline.NewRollup(barSvc, a.cfg.Rollup.HourlyCron, a.cfg.Rollup.DailyCron, a.logger).
			WithLock(deps.LockManager)
	}

	archiver := a.newArchiver(deps)

	if scraper != nil || refresher != nil || rollup != nil || archiver != nil {
		orch := pipeline.NewOrchestrator(
			scraper, refresher, rollup, archiver,
			a.cfg.Scraper.Interval.Duration,
			a.cfg.Markets.RefreshInterval.Duration,
			a.cfg.Blob.ArchiveCron,
			a.logger,
		)
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, marketSvc, spreadSvc, barSvc)
	}

	return g.Wait()
}

// newMarketService builds the allowlist service shared by every mode.
func (a *App) newMarketService(deps *Dependencies) (*service.MarketService, error) {
	return service.NewMarketService(service.MarketServiceConfig{
		Allowed:       a.cfg.Markets.Allowed,
		Granularities: a.cfg.Markets.Granularities,
		IDPattern:     a.cfg.Markets.IDPattern,
	}, deps.Exchange, deps.MarketCache, a.logger)
}

// newSpreadService builds the snapshot write/read service. Reference
// pricing stays off unless the Binance client was wired.
func (a *App) newSpreadService(deps *Dependencies) *service.SpreadService {
	var ref service.ReferencePricer
	if deps.Reference != nil {
		ref = deps.Reference
	}
	svc := service.NewSpreadService(
		deps.SpreadStore,
		deps.SpreadCache,
		deps.SummaryBus,
		ref,
		a.cfg.Exchange.Binance.SymbolMap,
		a.logger,
	)
	if deps.ReferenceCache != nil {
		svc.WithReferenceCache(deps.ReferenceCache)
	}
	return svc
}

// newSnapshotScraper assembles the depth analyzer and the per-cycle scraper,
// with alerting attached when a notifier was wired.
func (a *App) newSnapshotScraper(deps *Dependencies, marketSvc *service.MarketService, spreadSvc *service.SpreadService) *pipeline.SnapshotScraper {
	levels := make([]decimal.Decimal, 0, len(a.cfg.Analyzer.Levels))
	for _, lvl := range a.cfg.Analyzer.Levels {
		levels = append(levels, decimal.NewFromFloat(lvl))
	}
	barLevel := decimal.NewFromFloat(a.cfg.Analyzer.BarLevel)

	analyzer := depth.NewAnalyzer(depth.NewCalculator(int32(a.cfg.Analyzer.Precision)))

	var alerts pipeline.AlertEvaluator
	if deps.Notifier != nil {
		alerts = notify.NewAlerter(deps.Notifier, spreadSvc, notify.AlerterConfig{
			ThresholdPct: decimal.NewFromFloat(a.cfg.Alerts.SpreadThresholdPct),
			BarLevel:     barLevel,
			Cooldown:     a.cfg.Alerts.Cooldown.Duration,
		}, a.logger)
	}

	return pipeline.NewSnapshotScraper(
		marketSvc,
		deps.Exchange,
		analyzer,
		spreadSvc,
		deps.BarStore,
		deps.SnapshotArchiver,
		alerts,
		pipeline.ScraperConfig{
			Levels:        levels,
			BarLevel:      barLevel,
			MarketTimeout: a.cfg.Scraper.MarketTimeout.Duration,
		},
		a.logger,
	)
}

// newArchiver returns the retention archiver, or nil when cold storage is
// not wired.
func (a *App) newArchiver(deps *Dependencies) *pipeline.Archiver {
	if deps.ColdStorage == nil {
		return nil
	}
	return pipeline.NewArchiver(deps.ColdStorage, a.cfg.Blob.RetentionDays, a.logger).
		WithLock(deps.LockManager)
}

// startHTTPServer registers the read API handlers, starts the websocket hub,
// and runs the server until the context is cancelled, then shuts it down
// gracefully.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	marketSvc *service.MarketService,
	spreadSvc *service.SpreadService,
	barSvc *service.BarService,
) {
	health := handler.NewHealthHandler(a.logger)
	for name, check := range deps.HealthChecks {
		health.AddCheck(name, check)
	}

	hub := ws.NewHub(deps.SummaryBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(
		server.Config{
			Addr:         a.cfg.Server.Addr,
			ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
			WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  a.cfg.Server.IdleTimeout.Duration,
			CORSOrigins:  a.cfg.Server.CORSOrigins,
			RateLimit:    a.cfg.Server.RateLimit,
			RateWindow:   a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:  health,
			Markets: handler.NewMarketHandler(marketSvc, a.logger),
			Bars:    handler.NewBarsHandler(marketSvc, barSvc, a.logger),
			Spread:  handler.NewSpreadHandler(marketSvc, spreadSvc, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
