package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/hook"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// Compile-time interface checks.
var (
	_ hook.Extension     = (*Broker)(nil)
	_ hook.TaskEnqueued  = (*Broker)(nil)
	_ hook.TaskStarted   = (*Broker)(nil)
	_ hook.TaskProgress  = (*Broker)(nil)
	_ hook.TaskCompleted = (*Broker)(nil)
	_ hook.TaskFailed    = (*Broker)(nil)
	_ hook.TaskCancelled = (*Broker)(nil)
	_ hook.Shutdown      = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker is the live task event feed. It implements the hook interfaces
// to receive lifecycle events and fans them out to subscribers via
// topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDelivered atomic.Int64

	// Config.
	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new event feed broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (e.g., a host
// transport layer mapping subscriptions onto connections).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	var dropped int64
	b.subscribers.Range(func(_, value any) bool {
		count++
		dropped += value.(*Subscriber).Dropped() //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDelivered:  b.totalDelivered.Load(),
		TotalDropped:    dropped,
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDelivered  int64 `json:"total_delivered"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish broadcasts an event to its global, task, and owner topics.
func (b *Broker) publish(evt *Event) {
	b.totalPublished.Add(1)
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalDelivered.Add(int64(delivered))
}

// taskEvent builds the envelope for a task lifecycle event.
func taskEvent(evtType EventType, t *task.Task, data TaskEventData) *Event {
	data.TaskID = t.ID.String()
	data.OwnerID = t.OwnerID
	data.Kind = t.Kind
	return &Event{
		Type:      evtType,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic(t.ID.String()),
		OwnerID:   t.OwnerID,
		Data:      mustMarshal(data),
	}
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Task lifecycle hooks ────────────────────────────

func (b *Broker) OnTaskEnqueued(_ context.Context, t *task.Task) error {
	b.publish(taskEvent(EventTaskEnqueued, t, TaskEventData{}))
	return nil
}

func (b *Broker) OnTaskStarted(_ context.Context, t *task.Task) error {
	b.publish(taskEvent(EventTaskStarted, t, TaskEventData{}))
	return nil
}

func (b *Broker) OnTaskProgress(_ context.Context, t *task.Task, percent int, message string) error {
	b.publish(taskEvent(EventTaskProgress, t, TaskEventData{
		Percent: percent,
		Message: message,
	}))
	return nil
}

func (b *Broker) OnTaskCompleted(_ context.Context, t *task.Task, elapsed time.Duration) error {
	b.publish(taskEvent(EventTaskCompleted, t, TaskEventData{
		ElapsedMs: elapsed.Milliseconds(),
	}))
	return nil
}

func (b *Broker) OnTaskFailed(_ context.Context, t *task.Task, taskErr error) error {
	b.publish(taskEvent(EventTaskFailed, t, TaskEventData{
		Error: taskErr.Error(),
	}))
	return nil
}

func (b *Broker) OnTaskCancelled(_ context.Context, t *task.Task) error {
	b.publish(taskEvent(EventTaskCancelled, t, TaskEventData{}))
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
