package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quollview/spreadscraper/internal/domain"
)

// Archiver moves rows older than the retention window from the database to
// cold storage.
type Archiver struct {
	cold          domain.ColdStorage
	retentionDays int
	lock          JobLocker
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(cold domain.ColdStorage, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		cold:          cold,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// WithLock serializes retention passes across instances.
func (a *Archiver) WithLock(lock JobLocker) *Archiver {
	a.lock = lock
	return a
}

// Run executes a single retention pass: bars first, then spread snapshots,
// everything older than the retention cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	barsArchived, err := a.cold.ArchiveBars(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving bars before %v: %w", cutoff, err)
	}

	spreadsArchived, err := a.cold.ArchiveSpreads(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving spreads before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Int64("bars_archived", barsArchived),
		slog.Int64("spreads_archived", spreadsArchived),
	)
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	return runCron(ctx, a.logger, "archiver", cronExpr, lockedJob(a.lock, a.logger, "archiver", a.Run))
}
