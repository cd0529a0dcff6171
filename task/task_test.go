package task_test

import (
	"testing"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status task.Status
		want   bool
	}{
		{task.StatusQueued, false},
		{task.StatusRunning, false},
		{task.StatusCompleted, true},
		{task.StatusFailed, true},
		{task.StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_Active(t *testing.T) {
	tests := []struct {
		status task.Status
		want   bool
	}{
		{task.StatusQueued, true},
		{task.StatusRunning, true},
		{task.StatusCompleted, false},
		{task.StatusFailed, false},
		{task.StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_CanTransition(t *testing.T) {
	allowed := map[task.Status][]task.Status{
		task.StatusQueued:  {task.StatusRunning, task.StatusCancelled},
		task.StatusRunning: {task.StatusCompleted, task.StatusFailed, task.StatusCancelled},
	}

	all := []task.Status{
		task.StatusQueued,
		task.StatusRunning,
		task.StatusCompleted,
		task.StatusFailed,
		task.StatusCancelled,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if to == ok {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("CanTransition(%s → %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatus_NoReentryToQueued(t *testing.T) {
	all := []task.Status{
		task.StatusQueued,
		task.StatusRunning,
		task.StatusCompleted,
		task.StatusFailed,
		task.StatusCancelled,
	}

	for _, from := range all {
		if from.CanTransition(task.StatusQueued) {
			t.Errorf("no status may transition back to queued, but %s can", from)
		}
	}
}
