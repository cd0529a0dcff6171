package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store/memory"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/worker"
)

func newQueueService(t *testing.T) *queue.Service {
	t.Helper()
	svc, err := queue.NewService(memory.New())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// enqueueAndClaim admits a task and claims it, returning the running task.
func enqueueAndClaim(t *testing.T, svc *queue.Service, ownerID, kind string, payload []byte) *task.Task {
	t.Helper()
	if _, err := svc.Enqueue(context.Background(), ownerID, kind, payload); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := svc.NextReady(context.Background(), id.NewWorkerID())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimable task")
	}
	return claimed
}

// progressTrackerExt records the last progress event it saw.
type progressTrackerExt struct {
	percent int
	message string
}

func (e *progressTrackerExt) Name() string { return "progress-tracker" }

func (e *progressTrackerExt) OnTaskProgress(_ context.Context, _ *task.Task, percent int, message string) error {
	e.percent = percent
	e.message = message
	return nil
}

func TestRun_SetProgress(t *testing.T) {
	svc := newQueueService(t)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)
	run := worker.NewRun(claimed, svc, hook.NewRegistry(slog.Default()))

	if err := run.SetProgress(context.Background(), 40, "processing images"); err != nil {
		t.Fatalf("set progress: %v", err)
	}

	got, err := svc.Get(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Progress.Percent != 40 {
		t.Errorf("Progress.Percent = %d, want 40", got.Progress.Percent)
	}
	if got.Progress.Message != "processing images" {
		t.Errorf("Progress.Message = %q, want %q", got.Progress.Message, "processing images")
	}
}

func TestRun_SetProgressEmitsHook(t *testing.T) {
	svc := newQueueService(t)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)

	hooks := hook.NewRegistry(slog.Default())
	tracker := &progressTrackerExt{}
	hooks.Register(tracker)

	run := worker.NewRun(claimed, svc, hooks)
	if err := run.SetProgress(context.Background(), 75, "publishing captions"); err != nil {
		t.Fatalf("set progress: %v", err)
	}

	if tracker.percent != 75 {
		t.Errorf("tracker.percent = %d, want 75", tracker.percent)
	}
	if tracker.message != "publishing captions" {
		t.Errorf("tracker.message = %q, want %q", tracker.message, "publishing captions")
	}
}

func TestRun_CheckpointClean(t *testing.T) {
	svc := newQueueService(t)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)
	run := worker.NewRun(claimed, svc, hook.NewRegistry(slog.Default()))

	if err := run.Checkpoint(context.Background()); err != nil {
		t.Fatalf("expected clean checkpoint, got %v", err)
	}
}

func TestRun_CheckpointAfterCancel(t *testing.T) {
	svc := newQueueService(t)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)
	run := worker.NewRun(claimed, svc, hook.NewRegistry(slog.Default()))

	// Cancellation of a running task sets the cooperative flag; the run
	// must observe it at the next checkpoint without caching status.
	if _, err := svc.Cancel(context.Background(), claimed.ID, "user-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	err := run.Checkpoint(context.Background())
	if !errors.Is(err, vedfolnir.ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled, got %v", err)
	}
}

func TestRun_CheckpointContextDone(t *testing.T) {
	svc := newQueueService(t)
	claimed := enqueueAndClaim(t, svc, "user-1", "caption_generation", nil)
	run := worker.NewRun(claimed, svc, hook.NewRegistry(slog.Default()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run.Checkpoint(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
