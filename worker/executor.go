// Package worker provides the task execution engine — an Executor that
// invokes registered work units through middleware, and a Pool that
// manages the concurrent dispatch goroutines claiming ready tasks.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/middleware"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Executor runs a single claimed task through middleware and the
// registered work unit, then finalizes the outcome and emits lifecycle
// events.
type Executor struct {
	registry *Registry
	hooks    *hook.Registry
	queue    *queue.Service
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *Registry,
	hooks *hook.Registry,
	queue *queue.Service,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry: registry,
		hooks:    hooks,
		queue:    queue,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a claimed task through the middleware chain and work unit,
// then finalizes it: nil → completed, cancellation → cancelled, anything
// else → failed. A task whose kind has no registered work unit fails with
// vedfolnir.ErrKindNotRegistered.
func (e *Executor) Execute(ctx context.Context, t *task.Task) error {
	work, ok := e.registry.Get(t.Kind)
	if !ok {
		// The task is already claimed. Fail it rather than leaving it
		// running forever.
		return e.finalize(ctx, t, fmt.Errorf("%w: %q", vedfolnir.ErrKindNotRegistered, t.Kind), 0)
	}

	start := time.Now()
	run := NewRun(t, e.queue, e.hooks)

	// The terminal handler that calls the registered work unit.
	terminal := func(ctx context.Context) error {
		return work(ctx, run, t.Payload)
	}

	err := e.mw(ctx, t, terminal)

	return e.finalize(ctx, t, err, time.Since(start))
}

// finalize records the task's outcome and emits the matching lifecycle
// event. It runs on a context detached from the task's: the terminal
// transition must land even when the task deadline already expired.
func (e *Executor) finalize(ctx context.Context, t *task.Task, runErr error, elapsed time.Duration) error {
	base := context.WithoutCancel(ctx)

	finished, err := e.queue.Complete(base, t.ID, runErr)
	if err != nil {
		e.logger.Error("failed to finalize task",
			slog.String("task_id", t.ID.String()),
			slog.String("kind", t.Kind),
			slog.String("error", err.Error()),
		)
		return err
	}

	switch finished.Status {
	case task.StatusCompleted:
		e.hooks.EmitTaskCompleted(base, finished, elapsed)
	case task.StatusFailed:
		e.hooks.EmitTaskFailed(base, finished, runErr)
	case task.StatusCancelled:
		e.hooks.EmitTaskCancelled(base, finished)
	}

	return runErr
}
