package task

import (
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
)

// Status represents the lifecycle status of a task.
type Status string

const (
	// StatusQueued means the task is waiting to be claimed by a dispatch worker.
	StatusQueued Status = "queued"
	// StatusRunning means a dispatch worker is currently executing the task.
	StatusRunning Status = "running"
	// StatusCompleted means the task finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the task failed terminally.
	StatusFailed Status = "failed"
	// StatusCancelled means the task was cancelled by its owner or an admin.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a terminal status. Terminal tasks are
// immutable except for retention cleanup.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether s counts against the one-active-task-per-owner rule.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// CanTransition reports whether the status machine permits moving from s
// to next. All transitions are one-way.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	default:
		return false
	}
}

// Progress is the mutable progress field written by the running work unit
// and readable by any caller holding the task id.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// Task represents one unit of caption work owned by a single user.
type Task struct {
	vedfolnir.Entity

	ID       id.TaskID `json:"id"`
	OwnerID  string    `json:"owner_id"`
	Kind     string    `json:"kind"`
	Payload  []byte    `json:"payload,omitempty"`
	Status   Status    `json:"status"`
	Priority int       `json:"priority"`
	Progress Progress  `json:"progress"`

	// ErrorMessage holds a human-readable failure summary. Populated only
	// on failed tasks; never internal retry counters.
	ErrorMessage string `json:"error_message,omitempty"`

	// CancelRequested is set when an owner cancels a running task. The
	// work unit observes it at its next cooperative checkpoint.
	CancelRequested bool `json:"cancel_requested"`

	WorkerID  id.WorkerID `json:"worker_id,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`

	// Timeout bounds the task's total wall clock, rate-limit waits and
	// retry backoff included. Zero means the orchestrator default applies.
	Timeout time.Duration `json:"timeout,omitempty"`
}
