package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionTaskEnqueued  = "task.enqueued"
	ActionTaskStarted   = "task.started"
	ActionTaskProgress  = "task.progress"
	ActionTaskCompleted = "task.completed"
	ActionTaskFailed    = "task.failed"
	ActionTaskCancelled = "task.cancelled"
)

// CategoryTask groups the task lifecycle actions.
const CategoryTask = "vedfolnir.task"

// ResourceTask is the Resource field of every task audit event.
const ResourceTask = "task"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionTaskEnqueued,
		ActionTaskStarted,
		ActionTaskProgress,
		ActionTaskCompleted,
		ActionTaskFailed,
		ActionTaskCancelled,
	}
}
