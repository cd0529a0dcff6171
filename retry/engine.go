package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Operation is a no-argument unit of work executed under a policy.
type Operation func(ctx context.Context) error

// Engine executes operations under retry policies and aggregates shared
// statistics. It is safe for concurrent use; construct one and inject it
// wherever retrying is needed.
type Engine struct {
	logger *slog.Logger
	stats  *Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithStats injects a shared statistics aggregate, letting several
// engines report into one place.
func WithStats(s *Stats) Option {
	return func(e *Engine) {
		e.stats = s
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		stats:  NewStats(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Stats returns the engine's statistics aggregate.
func (e *Engine) Stats() *Stats { return e.stats }

// Execute runs op under p. label is a human-readable operation name used
// for statistics and logging, e.g. "mastodon.example/statuses.list".
//
// Transient failures are retried with jittered exponential backoff until
// MaxAttempts or the Budget wall-clock ceiling is reached; the error
// returned then is exactly the last attempt's error. Terminal failures
// propagate immediately. Cancelling ctx aborts between attempts and
// during backoff sleeps with ctx's error.
func (e *Engine) Execute(ctx context.Context, label string, p Policy, op Operation) error {
	if err := p.Validate(); err != nil {
		return err
	}

	if p.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Budget)

		defer cancel()
	}

	start := time.Now()

	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				// The budget expired mid-sequence; surface the real
				// failure, not the deadline bookkeeping.
				e.stats.recordFailure(label, attempt-1, time.Since(start), p.Classify(lastErr))

				return lastErr
			}

			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			e.stats.recordSuccess(label, attempt, time.Since(start))

			if attempt > 1 {
				e.logger.Debug("operation recovered after retry",
					slog.String("operation", label),
					slog.Int("attempts", attempt),
				)
			}

			return nil
		}

		class := p.Classify(lastErr)
		if !class.Transient() || attempt >= p.MaxAttempts {
			e.stats.recordFailure(label, attempt, time.Since(start), class)

			return lastErr
		}

		delay := p.jittered(p.Delay(attempt))

		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			// Sleeping past the ceiling cannot help; stop here with the
			// causing error.
			e.stats.recordFailure(label, attempt, time.Since(start), class)

			return lastErr
		}

		e.logger.Debug("retrying after transient failure",
			slog.String("operation", label),
			slog.Int("attempt", attempt),
			slog.String("class", string(class)),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
				e.stats.recordFailure(label, attempt, time.Since(start), class)

				return lastErr
			}

			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Do executes op under p and returns its value. It is the generic
// companion to [Engine.Execute] for operations that produce a result.
func Do[T any](ctx context.Context, e *Engine, label string, p Policy, op func(context.Context) (T, error)) (T, error) {
	var out T

	err := e.Execute(ctx, label, p, func(ctx context.Context) error {
		v, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}

		out = v

		return nil
	})

	return out, err
}
