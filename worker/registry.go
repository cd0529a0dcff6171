package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Work is a type-erased work unit that accepts the raw JSON payload.
// The typed Definition[T] is converted to a Work at registration time by
// closing over JSON unmarshal + the typed handler.
type Work func(ctx context.Context, run *Run, payload []byte) error

// Registry maps task kinds to type-erased work units.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	works map[string]Work
}

// NewRegistry creates an empty work registry.
func NewRegistry() *Registry {
	return &Registry{
		works: make(map[string]Work),
	}
}

// RegisterDefinition registers a typed work definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	work := func(ctx context.Context, run *Run, payload []byte) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("unmarshal payload for kind %q: %w", def.Kind, err)
			}
		}
		return def.Handler(ctx, run, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.works[def.Kind] = work
}

// Get returns the work unit for the given task kind.
// Returns false if no work unit is registered.
func (r *Registry) Get(kind string) (Work, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.works[kind]
	return w, ok
}

// Kinds returns all registered task kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.works))
	for kind := range r.works {
		kinds = append(kinds, kind)
	}
	return kinds
}
