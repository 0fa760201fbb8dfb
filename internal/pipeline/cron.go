package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/quollview/spreadscraper/internal/domain"
)

// The rollup and retention jobs run on standard 5-field cron expressions:
// "minute hour day-of-month month day-of-week". Fields accept "*" or a
// comma-separated value list; that is the whole dialect the scheduler needs.

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}

// JobLocker serializes a scheduled job across instances. Declared locally so
// the scheduler depends only on the one method it calls.
type JobLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// jobLockTTL bounds how long a scheduled job holds its cross-instance lock
// before it expires on its own.
const jobLockTTL = 10 * time.Minute

// lockedJob wraps job so that only one instance runs it per fire. A run that
// finds the lock held is skipped, not failed: the holder is doing the same
// work. The jobs are idempotent, so when the lock backend itself is down the
// job still runs; duplicate work beats a stalled schedule.
func lockedJob(lock JobLocker, logger *slog.Logger, name string, job func(context.Context) error) func(context.Context) error {
	if lock == nil {
		return job
	}
	return func(ctx context.Context) error {
		release, err := lock.Acquire(ctx, name, jobLockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			logger.Info("cron job held by another instance, skipping",
				slog.String("job", name),
			)
			return nil
		case err != nil:
			logger.Warn("cron job lock unavailable, running unlocked",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		default:
			defer release()
		}
		return job(ctx)
	}
}

// runCron invokes job each time expr fires, until the context is cancelled.
// Job failures are logged and the schedule keeps going.
func runCron(ctx context.Context, logger *slog.Logger, name, expr string, job func(context.Context) error) error {
	logger.Info("cron started", slog.String("job", name), slog.String("cron", expr))

	for {
		next, err := nextCronTime(expr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", expr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("cron stopped", slog.String("job", name))
			return ctx.Err()
		case <-timer.C:
			if err := job(ctx); err != nil {
				logger.Error("cron job failed",
					slog.String("job", name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
