package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/middleware"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/worker"
)

func newTestExecutor(reg *worker.Registry, hooks *hook.Registry, svc *queue.Service) *worker.Executor {
	logger := slog.Default()
	return worker.NewExecutor(reg, hooks, svc, logger, middleware.Recover(logger))
}

// outcomeTrackerExt records which terminal hook fired.
type outcomeTrackerExt struct {
	completed bool
	failed    bool
	cancelled bool
	elapsed   time.Duration
	err       error
}

func (e *outcomeTrackerExt) Name() string { return "outcome-tracker" }

func (e *outcomeTrackerExt) OnTaskCompleted(_ context.Context, _ *task.Task, elapsed time.Duration) error {
	e.completed = true
	e.elapsed = elapsed
	return nil
}

func (e *outcomeTrackerExt) OnTaskFailed(_ context.Context, _ *task.Task, err error) error {
	e.failed = true
	e.err = err
	return nil
}

func (e *outcomeTrackerExt) OnTaskCancelled(_ context.Context, _ *task.Task) error {
	e.cancelled = true
	return nil
}

func TestExecutor_Success(t *testing.T) {
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(slog.Default())

	worker.RegisterDefinition(reg, worker.NewDefinition("caption_generation", func(ctx context.Context, run *worker.Run, _ struct{}) error {
		return run.SetProgress(ctx, 100, "done")
	}))

	exec := newTestExecutor(reg, hooks, svc)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)

	if err := exec.Execute(context.Background(), claimed); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := svc.Get(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, task.StatusCompleted)
	}
	if got.EndedAt == nil {
		t.Error("expected EndedAt to be set")
	}
	if got.Progress.Percent != 100 {
		t.Errorf("Progress.Percent = %d, want 100", got.Progress.Percent)
	}
}

func TestExecutor_Failure(t *testing.T) {
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(slog.Default())

	want := errors.New("generation backend down")
	worker.RegisterDefinition(reg, worker.NewDefinition("caption_generation", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		return want
	}))

	exec := newTestExecutor(reg, hooks, svc)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)

	err := exec.Execute(context.Background(), claimed)
	if !errors.Is(err, want) {
		t.Fatalf("expected work error, got %v", err)
	}

	got, _ := svc.Get(context.Background(), claimed.ID)
	if got.Status != task.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, task.StatusFailed)
	}
	if got.ErrorMessage != "generation backend down" {
		t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, "generation backend down")
	}
}

func TestExecutor_CancelledOutcome(t *testing.T) {
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(slog.Default())

	// A work unit that stops at a checkpoint surfaces ErrTaskCancelled.
	worker.RegisterDefinition(reg, worker.NewDefinition("caption_generation", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		return vedfolnir.ErrTaskCancelled
	}))

	exec := newTestExecutor(reg, hooks, svc)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)

	err := exec.Execute(context.Background(), claimed)
	if !errors.Is(err, vedfolnir.ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled, got %v", err)
	}

	got, _ := svc.Get(context.Background(), claimed.ID)
	if got.Status != task.StatusCancelled {
		t.Errorf("status = %q, want %q", got.Status, task.StatusCancelled)
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty for cancelled task", got.ErrorMessage)
	}
}

func TestExecutor_UnknownKind(t *testing.T) {
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(slog.Default())

	exec := newTestExecutor(reg, hooks, svc)
	claimed := enqueueAndClaim(t, svc, "user-1", "unregistered_kind", nil)

	err := exec.Execute(context.Background(), claimed)
	if !errors.Is(err, vedfolnir.ErrKindNotRegistered) {
		t.Fatalf("expected ErrKindNotRegistered, got %v", err)
	}

	// The claimed task must not be left running.
	got, _ := svc.Get(context.Background(), claimed.ID)
	if got.Status != task.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, task.StatusFailed)
	}
	if !strings.Contains(got.ErrorMessage, "unregistered_kind") {
		t.Errorf("ErrorMessage = %q, want it to name the kind", got.ErrorMessage)
	}
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(slog.Default())

	worker.RegisterDefinition(reg, worker.NewDefinition("caption_generation", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		panic("caption model exploded")
	}))

	exec := newTestExecutor(reg, hooks, svc)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)

	err := exec.Execute(context.Background(), claimed)
	if !errors.Is(err, vedfolnir.ErrWorkUnitPanic) {
		t.Fatalf("expected ErrWorkUnitPanic, got %v", err)
	}

	got, _ := svc.Get(context.Background(), claimed.ID)
	if got.Status != task.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, task.StatusFailed)
	}
	if !strings.Contains(got.ErrorMessage, "caption model exploded") {
		t.Errorf("ErrorMessage = %q, want it to carry the panic value", got.ErrorMessage)
	}
}

func TestExecutor_HooksFire(t *testing.T) {
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(slog.Default())
	tracker := &outcomeTrackerExt{}
	hooks.Register(tracker)

	worker.RegisterDefinition(reg, worker.NewDefinition("succeeds", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		return nil
	}))
	want := errors.New("boom")
	worker.RegisterDefinition(reg, worker.NewDefinition("fails", func(_ context.Context, _ *worker.Run, _ struct{}) error {
		return want
	}))

	exec := newTestExecutor(reg, hooks, svc)

	ok := enqueueAndClaim(t, svc, "user-1", "succeeds", nil)
	_ = exec.Execute(context.Background(), ok)
	if !tracker.completed {
		t.Error("expected OnTaskCompleted to fire")
	}
	if tracker.elapsed < 0 {
		t.Errorf("elapsed = %v, want >= 0", tracker.elapsed)
	}

	bad := enqueueAndClaim(t, svc, "user-2", "fails", nil)
	_ = exec.Execute(context.Background(), bad)
	if !tracker.failed {
		t.Error("expected OnTaskFailed to fire")
	}
	if !errors.Is(tracker.err, want) {
		t.Errorf("hook error = %v, want %v", tracker.err, want)
	}
}

func TestExecutor_FinalizesAfterContextCancelled(t *testing.T) {
	svc := newQueueService(t)
	reg := worker.NewRegistry()
	hooks := hook.NewRegistry(slog.Default())

	ctx, cancel := context.WithCancel(context.Background())

	// Simulates the task deadline firing mid-run: the work unit observes
	// the dead context and returns its error.
	worker.RegisterDefinition(reg, worker.NewDefinition("caption_generation", func(ctx context.Context, _ *worker.Run, _ struct{}) error {
		cancel()
		return ctx.Err()
	}))

	exec := newTestExecutor(reg, hooks, svc)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)

	_ = exec.Execute(ctx, claimed)

	// The terminal transition must land even though ctx is done.
	got, err := svc.Get(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != task.StatusCancelled {
		t.Errorf("status = %q, want %q", got.Status, task.StatusCancelled)
	}
	if got.EndedAt == nil {
		t.Error("expected EndedAt to be set")
	}
}
