package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// maxErrorMessageLen caps the stored failure summary. Anything longer is
// diagnostic output that belongs in logs, not in the task record.
const maxErrorMessageLen = 512

// Service provides high-level task lifecycle operations over a task.Store.
type Service struct {
	store  task.Store
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a task lifecycle service backed by the given store.
func NewService(store task.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, vedfolnir.ErrNoStore
	}
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

// Enqueue admits a new task for the owner. The store's atomic owner check
// decides admission: if the owner already has a queued or running task the
// call returns vedfolnir.ErrOwnerBusy and nothing is persisted.
func (s *Service) Enqueue(ctx context.Context, ownerID, kind string, payload []byte, opts ...task.Option) (*task.Task, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("vedfolnir: enqueue requires an owner id")
	}
	if kind == "" {
		return nil, fmt.Errorf("vedfolnir: enqueue requires a task kind")
	}

	o := task.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &task.Task{
		Entity:   vedfolnir.NewEntity(),
		ID:       id.NewTaskID(),
		OwnerID:  ownerID,
		Kind:     kind,
		Payload:  payload,
		Status:   task.StatusQueued,
		Priority: o.Priority,
		Timeout:  o.Timeout,
	}

	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("task enqueued",
		slog.String("task_id", t.ID.String()),
		slog.String("owner_id", ownerID),
		slog.String("kind", kind),
		slog.Int("priority", t.Priority),
	)
	return t, nil
}

// ──────────────────────────────────────────────────
// Lookup
// ──────────────────────────────────────────────────

// Get returns the task with the given id, or vedfolnir.ErrTaskNotFound.
func (s *Service) Get(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// Active returns the owner's queued or running task, or
// vedfolnir.ErrTaskNotFound if the owner has none.
func (s *Service) Active(ctx context.Context, ownerID string) (*task.Task, error) {
	return s.store.GetActiveTask(ctx, ownerID)
}

// List returns tasks matching opts, newest first.
func (s *Service) List(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	return s.store.ListTasks(ctx, opts)
}

// Count returns the number of tasks matching opts.
func (s *Service) Count(ctx context.Context, opts task.CountOpts) (int64, error) {
	return s.store.CountTasks(ctx, opts)
}

// ──────────────────────────────────────────────────
// Cancellation
// ──────────────────────────────────────────────────

// CancelOptions carries authorization context for a cancellation.
type CancelOptions struct {
	// Admin skips the ownership check. Intended for moderation and
	// operational tooling, never for regular owner traffic.
	Admin bool
}

// CancelOption configures a Cancel call.
type CancelOption func(*CancelOptions)

// AsAdmin marks the cancellation as administrative, allowing it to target
// any owner's task.
func AsAdmin() CancelOption {
	return func(o *CancelOptions) { o.Admin = true }
}

// Cancel requests cancellation of a task on behalf of requestedBy. Only the
// task's owner (or an admin) may cancel; anyone else gets
// vedfolnir.ErrNotTaskOwner and the task is untouched.
//
// A queued task moves straight to cancelled. A running task keeps running
// with its cancellation flag set; the work unit honors the flag at its next
// checkpoint. Terminal tasks return vedfolnir.ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, taskID id.TaskID, requestedBy string, opts ...CancelOption) (*task.Task, error) {
	var o CancelOptions
	for _, opt := range opts {
		opt(&o)
	}

	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !o.Admin && t.OwnerID != requestedBy {
		return nil, vedfolnir.ErrNotTaskOwner
	}

	// Ownership never changes after admission, so the authorization check
	// above cannot be invalidated between the read and this call.
	cancelled, err := s.store.CancelTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("task cancellation",
		slog.String("task_id", taskID.String()),
		slog.String("requested_by", requestedBy),
		slog.Bool("admin", o.Admin),
		slog.String("status", string(cancelled.Status)),
	)
	return cancelled, nil
}

// CancelRequested reports whether the task has been asked to stop: either
// the cooperative flag is set or the task is already cancelled. Work units
// poll this at checkpoints instead of caching status.
func (s *Service) CancelRequested(ctx context.Context, taskID id.TaskID) (bool, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return t.CancelRequested || t.Status == task.StatusCancelled, nil
}

// ──────────────────────────────────────────────────
// Worker-facing operations
// ──────────────────────────────────────────────────

// NextReady atomically claims the next ready task for the given worker:
// highest priority first, oldest enqueue time breaking ties. Returns
// (nil, nil) when the queue is empty.
func (s *Service) NextReady(ctx context.Context, workerID id.WorkerID) (*task.Task, error) {
	t, err := s.store.ClaimNextTask(ctx, workerID)
	if err != nil || t == nil {
		return nil, err
	}

	s.logger.Debug("task claimed",
		slog.String("task_id", t.ID.String()),
		slog.String("worker_id", workerID.String()),
		slog.String("kind", t.Kind),
	)
	return t, nil
}

// UpdateProgress records execution progress for a task. Percent is clamped
// to [0, 100].
func (s *Service) UpdateProgress(ctx context.Context, taskID id.TaskID, percent int, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return s.store.UpdateProgress(ctx, taskID, task.Progress{Percent: percent, Message: message})
}

// Complete finalizes a running task from its execution outcome:
//
//   - nil           → completed
//   - cancellation  → cancelled (ErrTaskCancelled or context.Canceled)
//   - anything else → failed, with a truncated human-readable summary
//
// Only running tasks can be completed; anything else returns
// vedfolnir.ErrInvalidTransition.
func (s *Service) Complete(ctx context.Context, taskID id.TaskID, runErr error) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusRunning {
		return nil, vedfolnir.ErrInvalidTransition
	}

	now := time.Now().UTC()
	t.EndedAt = &now

	switch {
	case runErr == nil:
		t.Status = task.StatusCompleted
	case errors.Is(runErr, vedfolnir.ErrTaskCancelled) || errors.Is(runErr, context.Canceled):
		t.Status = task.StatusCancelled
	default:
		t.Status = task.StatusFailed
		t.ErrorMessage = truncate(runErr.Error(), maxErrorMessageLen)
	}

	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("task finished",
		slog.String("task_id", taskID.String()),
		slog.String("status", string(t.Status)),
		slog.String("kind", t.Kind),
	)
	return t, nil
}

// ──────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────

// Cleanup removes terminal tasks that ended more than olderThan ago.
// Queued and running tasks are never touched.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	removed, err := s.store.DeleteTasksBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("task retention cleanup",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	return removed, nil
}

// truncate shortens s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
