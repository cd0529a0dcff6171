// Package maintenance runs Vedfolnir's background housekeeping: a
// periodic sweep of old terminal task records and a periodic report of
// retry and rate-limit statistics.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/ratelimit"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/retry"
)

// Schedule and retention defaults.
const (
	DefaultCleanupSchedule = "@every 1h"
	DefaultStatsSchedule   = "@every 5m"
	DefaultRetention       = 7 * 24 * time.Hour
)

// cleanupTimeout bounds one cleanup sweep.
const cleanupTimeout = 5 * time.Minute

// Engine is the surface the janitor drives. *engine.Engine satisfies
// it; the interface lives here to keep maintenance below the engine
// layer.
type Engine interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
	RetryStats() map[string]retry.OperationStats
	LimiterStats() map[ratelimit.Dimensions]ratelimit.Counters
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithCleanupSchedule sets the cleanup cron expression. Standard
// five-field expressions and descriptors like "@every 30m" are
// accepted.
func WithCleanupSchedule(expr string) Option {
	return func(j *Janitor) { j.cleanupSchedule = expr }
}

// WithStatsSchedule sets the stats report cron expression.
func WithStatsSchedule(expr string) Option {
	return func(j *Janitor) { j.statsSchedule = expr }
}

// WithRetention sets how long terminal task records are kept before the
// cleanup sweep removes them.
func WithRetention(d time.Duration) Option {
	return func(j *Janitor) { j.retention = d }
}

// Janitor owns the cron runner behind the housekeeping schedules.
// Construct one with NewJanitor; Start and Stop bracket the runner's
// lifetime and are both idempotent.
type Janitor struct {
	eng    Engine
	logger *slog.Logger
	runner *cronlib.Cron

	cleanupSchedule string
	statsSchedule   string
	retention       time.Duration

	mu      sync.Mutex
	running bool
}

// NewJanitor creates a Janitor for the given engine facade. Schedules
// and retention are validated here, not at Start.
func NewJanitor(eng Engine, logger *slog.Logger, opts ...Option) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	j := &Janitor{
		eng:             eng,
		logger:          logger,
		cleanupSchedule: DefaultCleanupSchedule,
		statsSchedule:   DefaultStatsSchedule,
		retention:       DefaultRetention,
	}

	for _, opt := range opts {
		opt(j)
	}

	if j.retention <= 0 {
		return nil, fmt.Errorf("maintenance: retention must be positive, got %s", j.retention)
	}

	cl := cronLogger{l: logger}
	j.runner = cronlib.New(
		cronlib.WithLogger(cl),
		cronlib.WithChain(cronlib.Recover(cl)),
	)

	if _, err := j.runner.AddFunc(j.cleanupSchedule, j.runCleanup); err != nil {
		return nil, fmt.Errorf("maintenance: cleanup schedule %q: %w", j.cleanupSchedule, err)
	}

	if _, err := j.runner.AddFunc(j.statsSchedule, j.runStats); err != nil {
		return nil, fmt.Errorf("maintenance: stats schedule %q: %w", j.statsSchedule, err)
	}

	return j, nil
}

// Start launches the cron runner.
func (j *Janitor) Start(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}

	j.runner.Start()
	j.running = true

	j.logger.Info("janitor started",
		slog.String("cleanup_schedule", j.cleanupSchedule),
		slog.String("stats_schedule", j.statsSchedule),
		slog.Duration("retention", j.retention),
	)

	return nil
}

// Stop halts the schedules and waits for any in-flight job to finish,
// up to ctx's deadline.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()

		return nil
	}

	j.running = false
	j.mu.Unlock()

	done := j.runner.Stop()

	select {
	case <-done.Done():
		j.logger.Info("janitor stopped")

		return nil
	case <-ctx.Done():
		j.logger.Warn("janitor shutdown timed out with a job still running")

		return ctx.Err()
	}
}

// runCleanup sweeps terminal tasks older than the retention window.
func (j *Janitor) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	removed, err := j.eng.Cleanup(ctx, j.retention)
	if err != nil {
		j.logger.Error("task cleanup failed", slog.Any("error", err))

		return
	}

	if removed > 0 {
		j.logger.Info("old tasks cleaned up",
			slog.Int64("removed", removed),
			slog.Duration("retention", j.retention),
		)
	}
}

// runStats logs one line per retry label and rate-limit dimension.
func (j *Janitor) runStats() {
	for label, s := range j.eng.RetryStats() {
		j.logger.Info("retry stats",
			slog.String("operation", label),
			slog.Int64("calls", s.Calls),
			slog.Int64("successes", s.Successes),
			slog.Int64("failures", s.Failures),
			slog.Int64("attempts", s.Attempts),
			slog.Duration("retried_time", s.RetriedTime),
		)
	}

	for dims, c := range j.eng.LimiterStats() {
		j.logger.Info("rate limit stats",
			slog.String("target", dims.Target),
			slog.String("operation", dims.Operation),
			slog.Int64("admitted", c.Admitted),
			slog.Int64("throttled", c.Throttled),
			slog.Int64("rejected", c.Rejected),
			slog.Duration("total_wait", c.TotalWait),
		)
	}
}

// cronLogger adapts slog to the cron runner's logger interface. Runner
// chatter goes to Debug; errors keep their level.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
