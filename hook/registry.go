package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type taskEnqueuedEntry struct {
	name string
	hook TaskEnqueued
}

type taskStartedEntry struct {
	name string
	hook TaskStarted
}

type taskProgressEntry struct {
	name string
	hook TaskProgress
}

type taskCompletedEntry struct {
	name string
	hook TaskCompleted
}

type taskFailedEntry struct {
	name string
	hook TaskFailed
}

type taskCancelledEntry struct {
	name string
	hook TaskCancelled
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	taskEnqueued  []taskEnqueuedEntry
	taskStarted   []taskStartedEntry
	taskProgress  []taskProgressEntry
	taskCompleted []taskCompletedEntry
	taskFailed    []taskFailedEntry
	taskCancelled []taskCancelledEntry
	shutdown      []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TaskEnqueued); ok {
		r.taskEnqueued = append(r.taskEnqueued, taskEnqueuedEntry{name, h})
	}
	if h, ok := e.(TaskStarted); ok {
		r.taskStarted = append(r.taskStarted, taskStartedEntry{name, h})
	}
	if h, ok := e.(TaskProgress); ok {
		r.taskProgress = append(r.taskProgress, taskProgressEntry{name, h})
	}
	if h, ok := e.(TaskCompleted); ok {
		r.taskCompleted = append(r.taskCompleted, taskCompletedEntry{name, h})
	}
	if h, ok := e.(TaskFailed); ok {
		r.taskFailed = append(r.taskFailed, taskFailedEntry{name, h})
	}
	if h, ok := e.(TaskCancelled); ok {
		r.taskCancelled = append(r.taskCancelled, taskCancelledEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Task event emitters
// ──────────────────────────────────────────────────

// EmitTaskEnqueued notifies all extensions that implement TaskEnqueued.
func (r *Registry) EmitTaskEnqueued(ctx context.Context, t *task.Task) {
	for _, e := range r.taskEnqueued {
		if err := e.hook.OnTaskEnqueued(ctx, t); err != nil {
			r.logHookError("OnTaskEnqueued", e.name, err)
		}
	}
}

// EmitTaskStarted notifies all extensions that implement TaskStarted.
func (r *Registry) EmitTaskStarted(ctx context.Context, t *task.Task) {
	for _, e := range r.taskStarted {
		if err := e.hook.OnTaskStarted(ctx, t); err != nil {
			r.logHookError("OnTaskStarted", e.name, err)
		}
	}
}

// EmitTaskProgress notifies all extensions that implement TaskProgress.
func (r *Registry) EmitTaskProgress(ctx context.Context, t *task.Task, percent int, message string) {
	for _, e := range r.taskProgress {
		if err := e.hook.OnTaskProgress(ctx, t, percent, message); err != nil {
			r.logHookError("OnTaskProgress", e.name, err)
		}
	}
}

// EmitTaskCompleted notifies all extensions that implement TaskCompleted.
func (r *Registry) EmitTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) {
	for _, e := range r.taskCompleted {
		if err := e.hook.OnTaskCompleted(ctx, t, elapsed); err != nil {
			r.logHookError("OnTaskCompleted", e.name, err)
		}
	}
}

// EmitTaskFailed notifies all extensions that implement TaskFailed.
func (r *Registry) EmitTaskFailed(ctx context.Context, t *task.Task, taskErr error) {
	for _, e := range r.taskFailed {
		if err := e.hook.OnTaskFailed(ctx, t, taskErr); err != nil {
			r.logHookError("OnTaskFailed", e.name, err)
		}
	}
}

// EmitTaskCancelled notifies all extensions that implement TaskCancelled.
func (r *Registry) EmitTaskCancelled(ctx context.Context, t *task.Task) {
	for _, e := range r.taskCancelled {
		if err := e.hook.OnTaskCancelled(ctx, t); err != nil {
			r.logHookError("OnTaskCancelled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
