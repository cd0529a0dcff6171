package worker

import (
	"context"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Definition is a typed work definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Kind is the unique identifier for this work type.
	Kind string

	// Handler processes one task's payload. The run handle provides
	// progress reporting and cooperative cancellation checkpoints.
	Handler func(ctx context.Context, run *Run, payload T) error

	// Opts configures priority and timeout for tasks of this kind.
	Opts task.Options
}

// NewDefinition creates a typed work definition.
func NewDefinition[T any](kind string, handler func(ctx context.Context, run *Run, payload T) error, opts ...task.Option) *Definition[T] {
	def := &Definition[T]{
		Kind:    kind,
		Handler: handler,
		Opts:    task.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
