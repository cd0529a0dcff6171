// Package task defines the task entity, its status machine, and the
// persistence contract.
//
// # Task Entity
//
// A [Task] represents one unit of caption work owned by a single user.
// It embeds vedfolnir.Entity for timestamps, carries an opaque payload
// (JSON, understood only by the work unit), and progresses through a
// one-way status machine:
//
//	queued → running → completed
//	queued → running → failed
//	queued → cancelled
//	queued → running → cancelled
//
// No task re-enters queued after leaving it; a failed task is not
// re-queued by the core. Retrying a failed task means enqueueing a new
// one.
//
// Fields of note:
//   - OwnerID: the exclusivity key — at most one queued or running task
//     per owner at any instant
//   - Priority: higher values are claimed first, FIFO within a priority
//   - Progress: mutable, written by the running work unit, readable by
//     anyone holding the task id
//   - CancelRequested: cooperative cancellation flag for running tasks
//   - Timeout: per-task wall-clock deadline (zero = orchestrator default)
//
// # Store
//
// [Store] is the durable persistence contract. Two operations carry the
// load-bearing atomicity guarantees: CreateTask (owner-exclusive insert)
// and ClaimNextTask (dequeue-and-claim in a single step). Backends live
// under store/: memory, sqlite, postgres, bun, redis, and mongo.
package task
