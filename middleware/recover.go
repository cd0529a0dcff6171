package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are logged with a stack trace and converted to errors wrapping
// vedfolnir.ErrWorkUnitPanic, so the task fails instead of the dispatch
// loop crashing.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("work unit panicked",
					slog.String("kind", t.Kind),
					slog.String("task_id", t.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("%w: %s: %v", vedfolnir.ErrWorkUnitPanic, t.Kind, r)
			}
		}()
		return next(ctx)
	}
}
