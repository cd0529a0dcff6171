//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store/postgres"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// setupTestStore creates a Postgres container and returns a connected,
// migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("vedfolnir_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr)
	if err != nil {
		t.Fatalf("postgres.New: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	return s
}

// newTask builds a queued caption task for the given owner.
func newTask(ownerID string, priority int) *task.Task {
	return &task.Task{
		Entity:   vedfolnir.NewEntity(),
		ID:       id.NewTaskID(),
		OwnerID:  ownerID,
		Kind:     "caption_generation",
		Payload:  []byte(`{"target":"mastodon.example"}`),
		Status:   task.StatusQueued,
		Priority: priority,
	}
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	// Second migrate should be a no-op.
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Task store tests
// ──────────────────────────────────────────────────

func TestTaskStore_CreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tk := newTask("user-1", 5)
	tk.Timeout = 90 * time.Second

	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Duplicate ID should fail.
	if dupErr := s.CreateTask(ctx, tk); !errors.Is(dupErr, vedfolnir.ErrTaskAlreadyExists) {
		t.Fatalf("expected ErrTaskAlreadyExists, got: %v", dupErr)
	}

	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OwnerID != "user-1" {
		t.Errorf("owner = %q, want user-1", got.OwnerID)
	}
	if got.Kind != "caption_generation" {
		t.Errorf("kind = %q, want caption_generation", got.Kind)
	}
	if string(got.Payload) != `{"target":"mastodon.example"}` {
		t.Errorf("payload = %s", got.Payload)
	}
	if got.Priority != 5 {
		t.Errorf("priority = %d, want 5", got.Priority)
	}
	if got.Timeout != 90*time.Second {
		t.Errorf("timeout = %s, want 90s", got.Timeout)
	}
	if got.Status != task.StatusQueued {
		t.Errorf("status = %s, want queued", got.Status)
	}

	if _, err := s.GetTask(ctx, id.NewTaskID()); !errors.Is(err, vedfolnir.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for unknown id, got: %v", err)
	}
}

func TestTaskStore_OwnerExclusive(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := newTask("user-1", 0)
	if err := s.CreateTask(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}

	// Second task for the same owner hits the partial unique index.
	if err := s.CreateTask(ctx, newTask("user-1", 0)); !errors.Is(err, vedfolnir.ErrOwnerBusy) {
		t.Fatalf("expected ErrOwnerBusy, got: %v", err)
	}

	// A different owner is unaffected.
	if err := s.CreateTask(ctx, newTask("user-2", 0)); err != nil {
		t.Fatalf("create for other owner: %v", err)
	}

	// Once the first task is terminal the slot frees.
	now := time.Now().UTC()
	first.Status = task.StatusCompleted
	first.EndedAt = &now
	if err := s.UpdateTask(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.CreateTask(ctx, newTask("user-1", 0)); err != nil {
		t.Fatalf("create after completion: %v", err)
	}
}

func TestTaskStore_ClaimOrdering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)

	low := newTask("user-1", 1)
	low.CreatedAt = base
	highOld := newTask("user-2", 5)
	highOld.CreatedAt = base.Add(10 * time.Second)
	highNew := newTask("user-3", 5)
	highNew.CreatedAt = base.Add(20 * time.Second)

	// Insert out of order to make sure ordering comes from the query.
	for _, tk := range []*task.Task{low, highNew, highOld} {
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatalf("create %s: %v", tk.OwnerID, err)
		}
	}

	worker := id.NewWorkerID()

	got, err := s.ClaimNextTask(ctx, worker)
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	if got == nil || got.ID.String() != highOld.ID.String() {
		t.Fatalf("claim 1 = %v, want oldest priority-5 task", got)
	}
	if got.Status != task.StatusRunning {
		t.Errorf("claimed status = %s, want running", got.Status)
	}
	if got.WorkerID.String() != worker.String() {
		t.Errorf("claimed worker = %s, want %s", got.WorkerID, worker)
	}
	if got.StartedAt == nil {
		t.Error("claimed StartedAt is nil")
	}

	got, err = s.ClaimNextTask(ctx, worker)
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	if got == nil || got.ID.String() != highNew.ID.String() {
		t.Fatalf("claim 2 = %v, want newer priority-5 task", got)
	}

	got, err = s.ClaimNextTask(ctx, worker)
	if err != nil {
		t.Fatalf("claim 3: %v", err)
	}
	if got == nil || got.ID.String() != low.ID.String() {
		t.Fatalf("claim 3 = %v, want priority-1 task", got)
	}

	// Queue drained.
	got, err = s.ClaimNextTask(ctx, worker)
	if err != nil {
		t.Fatalf("claim 4: %v", err)
	}
	if got != nil {
		t.Fatalf("claim 4 = %v, want nil", got)
	}
}

func TestTaskStore_ClaimConcurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const n = 4
	for i := 0; i < n; i++ {
		if err := s.CreateTask(ctx, newTask(string(rune('a'+i)), 0)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// Twice as many claimers as tasks: each task claimed exactly once.
	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 2*n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.ClaimNextTask(ctx, id.NewWorkerID())
			if err != nil || got == nil {
				return
			}
			mu.Lock()
			claimed[got.ID.String()]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(claimed) != n {
		t.Fatalf("claimed %d distinct tasks, want %d", len(claimed), n)
	}
	for tid, count := range claimed {
		if count != 1 {
			t.Errorf("task %s claimed %d times", tid, count)
		}
	}
}

func TestTaskStore_CancelQueued(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tk := newTask("user-1", 0)
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.CancelTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != task.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("EndedAt is nil after queued cancel")
	}

	// Cancelling a terminal task is an invalid transition.
	if _, err := s.CancelTask(ctx, tk.ID); !errors.Is(err, vedfolnir.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestTaskStore_CancelRunning(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tk := newTask("user-1", 0)
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.ClaimNextTask(ctx, id.NewWorkerID()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := s.CancelTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != task.StatusRunning {
		t.Errorf("status = %s, want still running", got.Status)
	}
	if !got.CancelRequested {
		t.Error("CancelRequested not set for running cancel")
	}
}

func TestTaskStore_CancelMissing(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.CancelTask(context.Background(), id.NewTaskID()); !errors.Is(err, vedfolnir.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got: %v", err)
	}
}

func TestTaskStore_UpdateProgress(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tk := newTask("user-1", 0)
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateProgress(ctx, tk.ID, task.Progress{Percent: 40, Message: "captioned 2 of 5 images"}); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Progress.Percent != 40 || got.Progress.Message != "captioned 2 of 5 images" {
		t.Errorf("progress = %+v", got.Progress)
	}

	// Progress writes against terminal tasks are dropped.
	now := time.Now().UTC()
	got.Status = task.StatusCompleted
	got.EndedAt = &now
	if err := s.UpdateTask(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateProgress(ctx, tk.ID, task.Progress{Percent: 99}); err != nil {
		t.Fatalf("progress after terminal: %v", err)
	}
	got, err = s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Progress.Percent != 40 {
		t.Errorf("terminal progress overwritten: %+v", got.Progress)
	}

	// Missing task is still an error.
	if err := s.UpdateProgress(ctx, id.NewTaskID(), task.Progress{}); !errors.Is(err, vedfolnir.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got: %v", err)
	}
}

func TestTaskStore_GetActiveTask(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tk := newTask("user-1", 0)
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetActiveTask(ctx, "user-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got.ID.String() != tk.ID.String() {
		t.Errorf("active = %s, want %s", got.ID, tk.ID)
	}

	if _, err := s.GetActiveTask(ctx, "user-2"); !errors.Is(err, vedfolnir.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for idle owner, got: %v", err)
	}

	if _, err := s.CancelTask(ctx, tk.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.GetActiveTask(ctx, "user-1"); !errors.Is(err, vedfolnir.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound after cancel, got: %v", err)
	}
}

func TestTaskStore_ListAndCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	ended := base.Add(time.Minute)

	// Terminal tasks bypass the active-slot index, so one owner can have
	// history plus one live task.
	oldDone := newTask("user-1", 0)
	oldDone.CreatedAt = base
	oldDone.Status = task.StatusCompleted
	oldDone.EndedAt = &ended

	failed := newTask("user-1", 0)
	failed.CreatedAt = base.Add(10 * time.Minute)
	failed.Status = task.StatusFailed
	failed.EndedAt = &ended

	live := newTask("user-1", 0)
	live.CreatedAt = base.Add(20 * time.Minute)

	other := newTask("user-2", 0)
	other.CreatedAt = base.Add(30 * time.Minute)

	for _, tk := range []*task.Task{oldDone, failed, live, other} {
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, err := s.ListTasks(ctx, task.ListOpts{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("list all = %d tasks, want 4", len(all))
	}
	// Newest first.
	if all[0].ID.String() != other.ID.String() {
		t.Errorf("first listed = %s, want newest", all[0].ID)
	}

	mine, err := s.ListTasks(ctx, task.ListOpts{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("list owner: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("owner list = %d tasks, want 3", len(mine))
	}

	done, err := s.ListTasks(ctx, task.ListOpts{Status: task.StatusCompleted})
	if err != nil {
		t.Fatalf("list status: %v", err)
	}
	if len(done) != 1 || done[0].ID.String() != oldDone.ID.String() {
		t.Fatalf("completed list = %v", done)
	}

	page, err := s.ListTasks(ctx, task.ListOpts{OwnerID: "user-1", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID.String() != failed.ID.String() {
		t.Fatalf("page = %v, want the middle task", page)
	}

	count, err := s.CountTasks(ctx, task.CountOpts{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = s.CountTasks(ctx, task.CountOpts{Status: task.StatusQueued})
	if err != nil {
		t.Fatalf("count queued: %v", err)
	}
	if count != 2 {
		t.Errorf("queued count = %d, want 2", count)
	}
}

func TestTaskStore_DeleteTasksBefore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	oldEnd := time.Now().UTC().Add(-2 * time.Hour)
	newEnd := time.Now().UTC()

	oldDone := newTask("user-1", 0)
	oldDone.Status = task.StatusCancelled
	oldDone.EndedAt = &oldEnd

	recentDone := newTask("user-2", 0)
	recentDone.Status = task.StatusCompleted
	recentDone.EndedAt = &newEnd

	live := newTask("user-3", 0)

	for _, tk := range []*task.Task{oldDone, recentDone, live} {
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	removed, err := s.DeleteTasksBefore(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, err := s.GetTask(ctx, oldDone.ID); !errors.Is(err, vedfolnir.ErrTaskNotFound) {
		t.Errorf("old task survived cleanup: %v", err)
	}
	if _, err := s.GetTask(ctx, recentDone.ID); err != nil {
		t.Errorf("recent terminal task removed: %v", err)
	}
	if _, err := s.GetTask(ctx, live.ID); err != nil {
		t.Errorf("live task removed: %v", err)
	}
}
