package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Timeout returns middleware that enforces the per-task wall-clock deadline.
// The deadline covers everything the work unit does — rate-limit waits and
// retry backoff included. Tasks without their own Timeout get def; if both
// are zero the task runs unbounded.
func Timeout(logger *slog.Logger, def time.Duration) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		d := t.Timeout
		if d <= 0 {
			d = def
		}
		if d > 0 {
			logger.Debug("task deadline set",
				slog.String("task_id", t.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
