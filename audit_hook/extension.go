package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Compile-time interface checks.
var (
	_ hook.Extension     = (*Extension)(nil)
	_ hook.TaskEnqueued  = (*Extension)(nil)
	_ hook.TaskStarted   = (*Extension)(nil)
	_ hook.TaskProgress  = (*Extension)(nil)
	_ hook.TaskCompleted = (*Extension)(nil)
	_ hook.TaskFailed    = (*Extension)(nil)
	_ hook.TaskCancelled = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package carries no dependency on any
// particular audit store — callers inject their own implementation at
// wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit record. Host applications map
// it onto their own audit schema through a [Recorder].
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
//
// Example bridging to a SQL audit table:
//
//	audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    meta, _ := json.Marshal(evt.Metadata)
//	    _, err := db.ExecContext(ctx,
//	        `INSERT INTO audit_log (action, resource_id, outcome, severity, metadata) VALUES (?, ?, ?, ?, ?)`,
//	        evt.Action, evt.ResourceID, evt.Outcome, evt.Severity, meta)
//	    return err
//	})
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity levels assigned to audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values assigned to audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges task lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the
// [Recorder], so a deployment can answer who ran which caption task,
// when, and how it ended.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Task lifecycle hooks ────────────────────────────

// OnTaskEnqueued implements hook.TaskEnqueued.
func (e *Extension) OnTaskEnqueued(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskEnqueued, SeverityInfo, OutcomeSuccess,
		t.ID.String(), nil,
		"kind", t.Kind,
		"owner_id", t.OwnerID,
		"priority", t.Priority,
	)
}

// OnTaskStarted implements hook.TaskStarted.
func (e *Extension) OnTaskStarted(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskStarted, SeverityInfo, OutcomeSuccess,
		t.ID.String(), nil,
		"kind", t.Kind,
		"owner_id", t.OwnerID,
		"worker_id", t.WorkerID.String(),
	)
}

// OnTaskProgress implements hook.TaskProgress. Progress events are
// high-frequency; deployments that only want terminal outcomes should
// exclude this action via [WithActions].
func (e *Extension) OnTaskProgress(ctx context.Context, t *task.Task, percent int, message string) error {
	return e.record(ctx, ActionTaskProgress, SeverityInfo, OutcomeSuccess,
		t.ID.String(), nil,
		"kind", t.Kind,
		"owner_id", t.OwnerID,
		"percent", percent,
		"message", message,
	)
}

// OnTaskCompleted implements hook.TaskCompleted.
func (e *Extension) OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error {
	return e.record(ctx, ActionTaskCompleted, SeverityInfo, OutcomeSuccess,
		t.ID.String(), nil,
		"kind", t.Kind,
		"owner_id", t.OwnerID,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnTaskFailed implements hook.TaskFailed.
func (e *Extension) OnTaskFailed(ctx context.Context, t *task.Task, taskErr error) error {
	return e.record(ctx, ActionTaskFailed, SeverityCritical, OutcomeFailure,
		t.ID.String(), taskErr,
		"kind", t.Kind,
		"owner_id", t.OwnerID,
		"worker_id", t.WorkerID.String(),
		"progress_percent", t.Progress.Percent,
	)
}

// OnTaskCancelled implements hook.TaskCancelled. Fires both for queued
// tasks cancelled directly and for running tasks stopped at a
// cooperative checkpoint.
func (e *Extension) OnTaskCancelled(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskCancelled, SeverityInfo, OutcomeSuccess,
		t.ID.String(), nil,
		"kind", t.Kind,
		"owner_id", t.OwnerID,
		"progress_percent", t.Progress.Percent,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resourceID string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceTask,
		Category:   CategoryTask,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
