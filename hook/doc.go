// Package hook defines the extension system for Vedfolnir.
//
// Extensions are notified of task lifecycle events and can react to
// them — recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error {
//	    log.Printf("task %s completed in %s", t.ID, elapsed)
//	    return nil
//	}
//
// # Task Lifecycle Hooks
//
//   - [TaskEnqueued] — task was admitted into the queue
//   - [TaskStarted] — worker claimed the task and began executing it
//   - [TaskProgress] — the running work unit recorded a progress update
//   - [TaskCompleted] — task finished successfully
//   - [TaskFailed] — task failed terminally
//   - [TaskCancelled] — task was cancelled from the queue or at a checkpoint
//
// # Other Hooks
//
//   - [Shutdown] — the orchestrator is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package hook
