// Package queue implements the task lifecycle service: admission with the
// one-active-task-per-owner rule, status lookup, owner-authorized
// cancellation, worker claims, completion, and retention cleanup.
//
// The service owns lifecycle policy; persistence and its atomicity
// guarantees live behind [task.Store]. Admission and claims are therefore
// exactly as safe as the configured backend makes them.
//
// # Admission
//
// An owner may hold at most one queued or running task at a time. A second
// Enqueue while the first is still active returns [vedfolnir.ErrOwnerBusy]
// and changes nothing:
//
//	t, err := svc.Enqueue(ctx, userID, "caption_generation", payload)
//	if errors.Is(err, vedfolnir.ErrOwnerBusy) {
//	    // the owner's current task must finish (or be cancelled) first
//	}
//
// # Cancellation
//
// Cancel is owner-gated; administrators pass [AsAdmin] to cancel any task.
// A queued task cancels immediately. A running task only gets a
// cancellation request flag; the executing work unit observes it at its
// next checkpoint and winds down cooperatively.
//
// # Status machine
//
// queued → running → completed | failed | cancelled, plus the direct edge
// queued → cancelled. Every transition is one-way; terminal tasks never
// re-enter the queue.
package queue
