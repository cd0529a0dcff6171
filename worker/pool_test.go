package worker_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/middleware"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/worker"
)

func setupTestPool(t *testing.T, concurrency int, pollInterval time.Duration) (
	*worker.Pool, *queue.Service, *worker.Registry,
) {
	t.Helper()
	logger := slog.Default()
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(logger)

	executor := worker.NewExecutor(
		reg, hooks, svc, logger,
		middleware.Recover(logger),
	)

	pool := worker.NewPool(svc, executor, hooks, logger,
		worker.WithPoolConcurrency(concurrency),
		worker.WithPollInterval(pollInterval),
	)

	return pool, svc, reg
}

// waitFor polls until the flag flips or the deadline passes.
func waitFor(t *testing.T, flag *atomic.Bool, what string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !flag.Load() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestPool_StartStop(t *testing.T) {
	pool, _, _ := setupTestPool(t, 2, 50*time.Millisecond)

	err := pool.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// Double start should be no-op.
	err = pool.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = pool.Stop(ctx)
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Double stop should be no-op.
	err = pool.Stop(ctx)
	if err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_ProcessesTask(t *testing.T) {
	pool, svc, reg := setupTestPool(t, 1, 10*time.Millisecond)

	var processed atomic.Bool
	worker.RegisterDefinition(reg, worker.NewDefinition("caption_generation", func(_ context.Context, _ *worker.Run, p captionSettings) error {
		if p.Target != "pixelfed.example" {
			t.Errorf("payload.Target = %q, want %q", p.Target, "pixelfed.example")
		}
		processed.Store(true)
		return nil
	}))

	payload, _ := json.Marshal(captionSettings{Target: "pixelfed.example", MaxPosts: 10})
	enq, err := svc.Enqueue(context.Background(), "user-1", "caption_generation", payload)
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, &processed, "task to be processed")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	// Verify the terminal record.
	got, err := svc.Get(context.Background(), enq.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("task status = %q, want %q", got.Status, task.StatusCompleted)
	}
	if got.EndedAt == nil {
		t.Error("expected EndedAt to be set")
	}
	if got.WorkerID.String() != pool.WorkerID().String() {
		t.Errorf("task worker = %q, want %q", got.WorkerID, pool.WorkerID())
	}
}

func TestPool_FailedTask(t *testing.T) {
	pool, svc, reg := setupTestPool(t, 1, 10*time.Millisecond)

	var processed atomic.Bool
	worker.RegisterDefinition(reg, worker.NewDefinition("failing_kind", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		processed.Store(true)
		return context.DeadlineExceeded
	}))

	enq, err := svc.Enqueue(context.Background(), "user-1", "failing_kind", nil)
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, &processed, "task to be processed")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	got, err := svc.Get(context.Background(), enq.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusFailed {
		t.Errorf("task status = %q, want %q", got.Status, task.StatusFailed)
	}
	if got.ErrorMessage == "" {
		t.Error("expected ErrorMessage to be set")
	}
}

func TestPool_PanicDoesNotStopLoop(t *testing.T) {
	pool, svc, reg := setupTestPool(t, 1, 10*time.Millisecond)

	worker.RegisterDefinition(reg, worker.NewDefinition("explodes", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		panic("caption model exploded")
	}))
	var processed atomic.Bool
	worker.RegisterDefinition(reg, worker.NewDefinition("fine", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		processed.Store(true)
		return nil
	}))

	// The panicking task is older, so the single dispatch goroutine runs
	// it first. The second task completing proves the loop survived.
	bad, err := svc.Enqueue(context.Background(), "user-1", "explodes", nil)
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	good, err := svc.Enqueue(context.Background(), "user-2", "fine", nil)
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, &processed, "second task after panic")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	gotBad, _ := svc.Get(context.Background(), bad.ID)
	if gotBad.Status != task.StatusFailed {
		t.Errorf("panicking task status = %q, want %q", gotBad.Status, task.StatusFailed)
	}
	if !strings.Contains(gotBad.ErrorMessage, "caption model exploded") {
		t.Errorf("ErrorMessage = %q, want it to carry the panic value", gotBad.ErrorMessage)
	}

	gotGood, _ := svc.Get(context.Background(), good.ID)
	if gotGood.Status != task.StatusCompleted {
		t.Errorf("second task status = %q, want %q", gotGood.Status, task.StatusCompleted)
	}
}

func TestPool_ClaimGovernor(t *testing.T) {
	logger := slog.Default()
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(logger)
	executor := worker.NewExecutor(reg, hooks, svc, logger, middleware.Recover(logger))

	pool := worker.NewPool(svc, executor, hooks, logger,
		worker.WithPoolConcurrency(2),
		worker.WithPollInterval(10*time.Millisecond),
		worker.WithClaimRate(200, 1),
	)

	var processed atomic.Bool
	worker.RegisterDefinition(reg, worker.NewDefinition("governed", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		processed.Store(true)
		return nil
	}))

	if _, err := svc.Enqueue(context.Background(), "user-1", "governed", nil); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, &processed, "governed task")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
}

func TestPool_GracefulShutdown(t *testing.T) {
	pool, _, _ := setupTestPool(t, 4, 50*time.Millisecond)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	// Allow workers to start polling.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := pool.Stop(ctx)
	if err != nil {
		t.Fatalf("graceful shutdown failed: %v", err)
	}
}

func TestPool_ExtensionFires(t *testing.T) {
	logger := slog.Default()
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(logger)

	// Register a tracking extension.
	tracker := &trackingExt{}
	hooks.Register(tracker)

	executor := worker.NewExecutor(reg, hooks, svc, logger)
	pool := worker.NewPool(svc, executor, hooks, logger,
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
	)

	var processed atomic.Bool
	worker.RegisterDefinition(reg, worker.NewDefinition("tracked", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		processed.Store(true)
		return nil
	}))

	if _, err := svc.Enqueue(context.Background(), "user-1", "tracked", nil); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, &processed, "tracked task")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	if !tracker.started.Load() {
		t.Error("expected OnTaskStarted to fire")
	}
	if !tracker.completed.Load() {
		t.Error("expected OnTaskCompleted to fire")
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trackingExt records which hooks fired.
type trackingExt struct {
	started   atomic.Bool
	completed atomic.Bool
	failed    atomic.Bool
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnTaskStarted(_ context.Context, _ *task.Task) error {
	e.started.Store(true)
	return nil
}

func (e *trackingExt) OnTaskCompleted(_ context.Context, _ *task.Task, _ time.Duration) error {
	e.completed.Store(true)
	return nil
}

func (e *trackingExt) OnTaskFailed(_ context.Context, _ *task.Task, _ error) error {
	e.failed.Store(true)
	return nil
}
