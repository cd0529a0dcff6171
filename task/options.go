package task

import "time"

// Options configures per-task behavior at enqueue time.
type Options struct {
	// Priority determines claim ordering. Higher values are claimed
	// first; tasks with equal priority are claimed oldest first.
	Priority int

	// Timeout is the task's total wall-clock deadline, covering
	// rate-limit waits and retry backoff as well as the work itself.
	// Zero means the orchestrator default applies.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Priority: 0,
	}
}

// Option is a functional option for configuring an enqueued task.
type Option func(*Options)

// WithPriority sets the task priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the task's wall-clock deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithOptions replaces the whole option set. Options applied after it
// still take effect, so it serves as a per-kind baseline that call
// sites can override.
func WithOptions(base Options) Option {
	return func(o *Options) {
		*o = base
	}
}
