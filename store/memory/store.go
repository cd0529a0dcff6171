package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	tasks map[string]*task.Task

	// active maps an owner to the key of their queued or running task.
	// It is what makes the one-active-task-per-owner check O(1) and, under
	// the store mutex, atomic with the insert.
	active map[string]string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tasks:  make(map[string]*task.Task),
		active: make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// CreateTask persists a new task. The owner-busy check and the insert run
// under one lock so concurrent admissions for the same owner cannot both win.
func (m *Store) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return vedfolnir.ErrTaskAlreadyExists
	}
	if _, busy := m.active[t.OwnerID]; busy {
		return vedfolnir.ErrOwnerBusy
	}

	cp := *t
	m.tasks[key] = &cp
	if cp.Status.Active() {
		m.active[cp.OwnerID] = key
	}
	return nil
}

// ClaimNextTask atomically claims the best queued task: highest priority
// first, oldest enqueue time breaking ties. Returns (nil, nil) when no task
// is ready.
func (m *Store) ClaimNextTask(_ context.Context, workerID id.WorkerID) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.Status == task.StatusQueued {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Sort: priority DESC, CreatedAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	t := candidates[0]
	now := time.Now().UTC()
	t.Status = task.StatusRunning
	t.WorkerID = workerID
	t.StartedAt = &now
	t.UpdatedAt = now

	// Return a copy so callers can mutate without racing with the store.
	cp := *t
	return &cp, nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, vedfolnir.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask persists changes to an existing task and keeps the owner index
// in line with the task's status.
func (m *Store) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return vedfolnir.ErrTaskNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	m.tasks[key] = &cp

	if cp.Status.Active() {
		m.active[cp.OwnerID] = key
	} else if m.active[cp.OwnerID] == key {
		delete(m.active, cp.OwnerID)
	}
	return nil
}

// UpdateProgress updates only the progress field of a task. Writes that
// race completion and land after the task went terminal are dropped.
func (m *Store) UpdateProgress(_ context.Context, taskID id.TaskID, p task.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return vedfolnir.ErrTaskNotFound
	}
	if t.Status.Terminal() {
		return nil
	}
	t.Progress = p
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// CancelTask applies the cancellation branch under one lock: queued tasks
// jump straight to cancelled, running tasks get the cooperative flag.
func (m *Store) CancelTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, vedfolnir.ErrTaskNotFound
	}

	now := time.Now().UTC()
	switch t.Status {
	case task.StatusQueued:
		t.Status = task.StatusCancelled
		t.EndedAt = &now
		t.UpdatedAt = now
		if m.active[t.OwnerID] == taskID.String() {
			delete(m.active, t.OwnerID)
		}
	case task.StatusRunning:
		t.CancelRequested = true
		t.UpdatedAt = now
	default:
		return nil, vedfolnir.ErrInvalidTransition
	}

	cp := *t
	return &cp, nil
}

// GetActiveTask returns the owner's queued or running task.
func (m *Store) GetActiveTask(_ context.Context, ownerID string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.active[ownerID]
	if !ok {
		return nil, vedfolnir.ErrTaskNotFound
	}
	t, ok := m.tasks[key]
	if !ok {
		return nil, vedfolnir.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTasks returns tasks matching the given options, newest first.
func (m *Store) ListTasks(_ context.Context, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if opts.OwnerID != "" && t.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountTasks returns the number of tasks matching the given options.
func (m *Store) CountTasks(_ context.Context, opts task.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, t := range m.tasks {
		if opts.OwnerID != "" && t.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// DeleteTasksBefore removes terminal tasks that ended before cutoff.
func (m *Store) DeleteTasksBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, t := range m.tasks {
		if !t.Status.Terminal() {
			continue
		}
		if t.EndedAt == nil || !t.EndedAt.Before(cutoff) {
			continue
		}
		delete(m.tasks, key)
		count++
	}
	return count, nil
}
