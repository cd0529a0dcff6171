package redis

// Redis key naming conventions for vedfolnir data.
// All keys are prefixed with "vedfolnir:" to avoid collisions.

const keyPrefix = "vedfolnir:"

// taskKey returns the key for a task Hash: vedfolnir:task:{id}
func taskKey(id string) string { return keyPrefix + "task:" + id }

// readyKey is the Sorted Set of queued task IDs. Scores encode priority
// (negated and scaled, so higher priority sorts first) plus the enqueue
// time in milliseconds for FIFO within the same priority; ZPOPMIN
// therefore yields the claim order directly.
const readyKey = keyPrefix + "ready"

// taskIDsKey is the Set tracking all task IDs for enumeration.
const taskIDsKey = keyPrefix + "task_ids"

// ownerKey returns the key holding the owner's active task ID:
// vedfolnir:owner_active:{ownerID}. Present exactly while the owner has a
// queued or running task, which is what makes admission all-or-nothing.
func ownerKey(ownerID string) string { return keyPrefix + "owner_active:" + ownerID }
