package worker

import (
	"context"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Run is the handle a work unit uses to interact with its claimed task:
// reporting progress and observing cancellation at checkpoints.
type Run struct {
	task  *task.Task
	queue *queue.Service
	hooks *hook.Registry
}

// NewRun binds a run handle to a claimed task.
func NewRun(t *task.Task, q *queue.Service, hooks *hook.Registry) *Run {
	return &Run{task: t, queue: q, hooks: hooks}
}

// Task returns the claimed task snapshot. Mutating it has no effect on
// the stored record.
func (r *Run) Task() *task.Task { return r.task }

// SetProgress records execution progress. Percent is clamped to [0, 100].
func (r *Run) SetProgress(ctx context.Context, percent int, message string) error {
	if err := r.queue.UpdateProgress(ctx, r.task.ID, percent, message); err != nil {
		return err
	}
	if r.hooks != nil {
		r.hooks.EmitTaskProgress(ctx, r.task, percent, message)
	}
	return nil
}

// Checkpoint is the cooperative cancellation point. Work units call it
// between units of work. It re-reads the task from the store rather than
// caching status, so a cancellation issued after the task started is
// observed at the next call.
//
// Returns the context error when ctx is done, vedfolnir.ErrTaskCancelled
// when cancellation has been requested, nil otherwise.
func (r *Run) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	requested, err := r.queue.CancelRequested(ctx, r.task.ID)
	if err != nil {
		return err
	}
	if requested {
		return vedfolnir.ErrTaskCancelled
	}
	return nil
}
