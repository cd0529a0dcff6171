package task

import (
	"context"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
)

// ListOpts controls pagination and filtering for task list queries.
type ListOpts struct {
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
	// Offset is the number of tasks to skip.
	Offset int
	// OwnerID filters by owner. Empty means all owners.
	OwnerID string
	// Status filters by task status. Empty means all statuses.
	Status Status
}

// CountOpts controls filtering for task count queries.
type CountOpts struct {
	// OwnerID filters by owner. Empty means all owners.
	OwnerID string
	// Status filters by task status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for tasks.
//
// Two operations carry the load-bearing atomicity guarantees:
// CreateTask (owner-exclusive insert) and ClaimNextTask
// (dequeue-and-claim in a single step).
type Store interface {
	// CreateTask persists a new queued task. The owner check and the
	// insert must be atomic with respect to concurrent calls for the
	// same owner: at most one admission wins. Returns
	// vedfolnir.ErrOwnerBusy when the owner already has a queued or
	// running task.
	CreateTask(ctx context.Context, t *Task) error

	// ClaimNextTask atomically selects the highest-priority (then
	// oldest-enqueued) queued task, marks it running with the claiming
	// worker and start time, and returns it. Two workers can never claim
	// the same task. Returns (nil, nil) when nothing is ready.
	ClaimNextTask(ctx context.Context, workerID id.WorkerID) (*Task, error)

	// GetTask retrieves a task by ID. Returns vedfolnir.ErrTaskNotFound
	// if no such task exists.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// UpdateTask persists changes to an existing task.
	UpdateTask(ctx context.Context, t *Task) error

	// UpdateProgress updates the progress field of a task without touching
	// the rest of the record. Writes against terminal tasks are dropped:
	// a progress update racing completion must not mutate a settled record.
	UpdateProgress(ctx context.Context, taskID id.TaskID, p Progress) error

	// CancelTask applies the cancellation branch atomically: a queued
	// task moves straight to cancelled (it never starts); a running task
	// has CancelRequested set for cooperative abort. Returns the task
	// after the mutation. Returns vedfolnir.ErrInvalidTransition if the
	// task is already terminal.
	CancelTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// GetActiveTask returns the owner's queued or running task, or
	// vedfolnir.ErrTaskNotFound if the owner has none.
	GetActiveTask(ctx context.Context, ownerID string) (*Task, error)

	// ListTasks returns tasks matching opts, newest first.
	ListTasks(ctx context.Context, opts ListOpts) ([]*Task, error)

	// CountTasks returns the number of tasks matching opts.
	CountTasks(ctx context.Context, opts CountOpts) (int64, error)

	// DeleteTasksBefore removes terminal tasks whose EndedAt is before
	// cutoff. Active tasks are never touched. Returns the number removed.
	DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
