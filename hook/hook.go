// Package hook defines the extension system for Vedfolnir.
// Extensions are notified of task lifecycle events (task enqueued,
// completed, failed, etc.) and can react to them — logging, metrics,
// notifications, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskEnqueued is called after a task is successfully admitted.
type TaskEnqueued interface {
	OnTaskEnqueued(ctx context.Context, t *task.Task) error
}

// TaskStarted is called when a dispatch worker claims a task and begins
// executing it.
type TaskStarted interface {
	OnTaskStarted(ctx context.Context, t *task.Task) error
}

// TaskProgress is called when a running work unit records a progress
// update.
type TaskProgress interface {
	OnTaskProgress(ctx context.Context, t *task.Task, percent int, message string) error
}

// TaskCompleted is called after a task finishes successfully.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error
}

// TaskFailed is called when a task fails terminally (all retry attempts
// inside the work unit exhausted).
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, t *task.Task, err error) error
}

// TaskCancelled is called when a task reaches the cancelled status,
// whether it was cancelled directly from the queue or stopped at a
// cooperative checkpoint while running.
type TaskCancelled interface {
	OnTaskCancelled(ctx context.Context, t *task.Task) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
