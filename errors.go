package vedfolnir

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("vedfolnir: no store configured")
	ErrStoreClosed     = errors.New("vedfolnir: store closed")
	ErrMigrationFailed = errors.New("vedfolnir: migration failed")

	// Not found errors.
	ErrTaskNotFound = errors.New("vedfolnir: task not found")

	// Conflict errors.
	ErrTaskAlreadyExists = errors.New("vedfolnir: task already exists")
	ErrOwnerBusy         = errors.New("vedfolnir: owner already has an active task")

	// Authorization errors.
	ErrNotTaskOwner = errors.New("vedfolnir: requester does not own this task")

	// State errors.
	ErrInvalidTransition = errors.New("vedfolnir: invalid status transition")
	ErrTaskCancelled     = errors.New("vedfolnir: task cancelled")
	ErrKindNotRegistered = errors.New("vedfolnir: no work registered for kind")

	// Dispatch errors.
	ErrWorkUnitPanic = errors.New("vedfolnir: work unit panicked")
	ErrNotBuilt      = errors.New("vedfolnir: orchestrator not built")
)
