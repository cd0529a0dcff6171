// Package stream provides an in-process event feed for task lifecycle
// events. The Broker implements the hook interfaces and fans events out
// to subscribers via topic-based pub/sub; host applications subscribe to
// drive user-facing surfaces (live progress bars, activity feeds)
// without this module owning any transport.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventTaskEnqueued  EventType = "task.enqueued"
	EventTaskStarted   EventType = "task.started"
	EventTaskProgress  EventType = "task.progress"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the task-specific channel this event was published on.
	Topic string `json:"topic"`

	// OwnerID is the task owner. Carried on the envelope so consumers
	// can route per-user feeds without decoding Data.
	OwnerID string `json:"owner_id,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// TaskEventData is the payload for task lifecycle events.
type TaskEventData struct {
	TaskID    string `json:"task_id"`
	OwnerID   string `json:"owner_id"`
	Kind      string `json:"kind"`
	Percent   int    `json:"percent,omitempty"`
	Message   string `json:"message,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}
