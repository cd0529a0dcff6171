package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// createScript inserts a task, enforcing ID uniqueness and owner
// exclusivity in one atomic step.
//
// KEYS: [1] task hash, [2] owner slot, [3] task id set, [4] ready zset
// ARGV: [1] task id, [2] ready score, [3] "1" when the status counts as
// active, [4] "1" when the status is queued, [5..] hash field/value pairs
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'exists'
end
if ARGV[3] == '1' and redis.call('EXISTS', KEYS[2]) == 1 then
  return 'busy'
end
redis.call('HSET', KEYS[1], unpack(ARGV, 5))
redis.call('SADD', KEYS[3], ARGV[1])
if ARGV[3] == '1' then
  redis.call('SET', KEYS[2], ARGV[1])
end
if ARGV[4] == '1' then
  redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
end
return 'ok'
`)

// cancelScript applies the cancellation branch for the task's current
// status in one atomic step: queued tasks move straight to cancelled and
// leave the ready set, running tasks get the cooperative flag.
//
// KEYS: [1] task hash, [2] ready zset, [3] owner slot
// ARGV: [1] task id, [2] now (RFC3339Nano)
var cancelScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return 'missing'
end
if status == 'queued' then
  redis.call('HSET', KEYS[1], 'status', 'cancelled', 'ended_at', ARGV[2], 'updated_at', ARGV[2])
  redis.call('ZREM', KEYS[2], ARGV[1])
  if redis.call('GET', KEYS[3]) == ARGV[1] then
    redis.call('DEL', KEYS[3])
  end
  return 'cancelled'
end
if status == 'running' then
  redis.call('HSET', KEYS[1], 'cancel_requested', 'true', 'updated_at', ARGV[2])
  return 'flagged'
end
return 'terminal'
`)

// progressScript writes progress only while the task is still active, so
// an update racing completion never mutates a settled record.
//
// KEYS: [1] task hash
// ARGV: [1] percent, [2] message, [3] now (RFC3339Nano)
var progressScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return 'missing'
end
if status ~= 'queued' and status ~= 'running' then
  return 'dropped'
end
redis.call('HSET', KEYS[1], 'progress_percent', ARGV[1], 'progress_message', ARGV[2], 'updated_at', ARGV[3])
return 'ok'
`)

// releaseOwnerScript clears the owner slot only while it still points at
// the given task, so a late terminal write never evicts a successor task's
// slot.
//
// KEYS: [1] owner slot
// ARGV: [1] task id
var releaseOwnerScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// CreateTask stores the task as a Hash and, when queued, adds it to the
// ready Sorted Set. The duplicate-ID and owner-busy checks run inside a
// Lua script so concurrent admissions for the same owner cannot both win.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()

	fields := taskToMap(t)
	argv := make([]interface{}, 0, 4+len(fields)*2)
	argv = append(argv,
		tID,
		strconv.FormatFloat(taskScore(t.Priority, t.CreatedAt), 'f', -1, 64),
		boolFlag(t.Status.Active()),
		boolFlag(t.Status == task.StatusQueued),
	)
	for f, v := range fields {
		argv = append(argv, f, v)
	}

	keys := []string{taskKey(tID), ownerKey(t.OwnerID), taskIDsKey, readyKey}
	res, err := createScript.Run(ctx, s.client, keys, argv...).Text()
	if err != nil {
		return fmt.Errorf("vedfolnir/redis: create task: %w", err)
	}
	switch res {
	case "exists":
		return vedfolnir.ErrTaskAlreadyExists
	case "busy":
		return vedfolnir.ErrOwnerBusy
	}
	return nil
}

// ClaimNextTask pops the best queued task and marks it running. ZPOPMIN
// removes the member atomically, so two workers can never pop the same
// task; the score already encodes priority DESC, CreatedAt ASC.
func (s *Store) ClaimNextTask(ctx context.Context, workerID id.WorkerID) (*task.Task, error) {
	members, err := s.client.ZPopMin(ctx, readyKey, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/redis: claim zpopmin: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	tID, ok := members[0].Member.(string)
	if !ok {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	key := taskKey(tID)
	_, err = s.client.HSet(ctx, key,
		"status", string(task.StatusRunning),
		"worker_id", workerID.String(),
		"started_at", now,
		"updated_at", now,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/redis: claim update: %w", err)
	}

	return s.getTaskByKey(ctx, key)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return s.getTaskByKey(ctx, taskKey(taskID.String()))
}

// UpdateTask persists the full record and keeps the ready set and owner
// slot consistent with the new status.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()
	key := taskKey(tID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vedfolnir/redis: update task exists: %w", err)
	}
	if exists == 0 {
		return vedfolnir.ErrTaskNotFound
	}

	fields := taskToMap(t)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	switch t.Status {
	case task.StatusQueued:
		pipe.ZAdd(ctx, readyKey, goredis.Z{Score: taskScore(t.Priority, t.CreatedAt), Member: tID})
		pipe.Set(ctx, ownerKey(t.OwnerID), tID, 0)
	case task.StatusRunning:
		pipe.ZRem(ctx, readyKey, tID)
		pipe.Set(ctx, ownerKey(t.OwnerID), tID, 0)
	default:
		pipe.ZRem(ctx, readyKey, tID)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vedfolnir/redis: update task: %w", err)
	}

	if t.Status.Terminal() {
		if err = releaseOwnerScript.Run(ctx, s.client, []string{ownerKey(t.OwnerID)}, tID).Err(); err != nil {
			return fmt.Errorf("vedfolnir/redis: update task release owner: %w", err)
		}
	}
	return nil
}

// UpdateProgress updates only the progress field of a task. Writes that
// race completion and land after the task went terminal are dropped.
func (s *Store) UpdateProgress(ctx context.Context, taskID id.TaskID, p task.Progress) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := progressScript.Run(ctx, s.client,
		[]string{taskKey(taskID.String())},
		strconv.Itoa(p.Percent), p.Message, now,
	).Text()
	if err != nil {
		return fmt.Errorf("vedfolnir/redis: update progress: %w", err)
	}
	if res == "missing" {
		return vedfolnir.ErrTaskNotFound
	}
	return nil
}

// CancelTask applies the cancellation branch atomically via a Lua script.
// The owner slot key is resolved first; owner_id is immutable, so the
// pre-read cannot go stale.
func (s *Store) CancelTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	tID := taskID.String()
	key := taskKey(tID)

	owner, err := s.client.HGet(ctx, key, "owner_id").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/redis: cancel get owner: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := cancelScript.Run(ctx, s.client,
		[]string{key, readyKey, ownerKey(owner)},
		tID, now,
	).Text()
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/redis: cancel task: %w", err)
	}
	switch res {
	case "missing":
		return nil, vedfolnir.ErrTaskNotFound
	case "terminal":
		return nil, vedfolnir.ErrInvalidTransition
	}

	return s.getTaskByKey(ctx, key)
}

// GetActiveTask resolves the owner slot to the owner's queued or running
// task.
func (s *Store) GetActiveTask(ctx context.Context, ownerID string) (*task.Task, error) {
	tID, err := s.client.Get(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/redis: get active task: %w", err)
	}
	return s.getTaskByKey(ctx, taskKey(tID))
}

// ListTasks scans the task id Set and filters in memory, newest first.
// Fine for the moderate record counts retention keeps around.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/redis: list task ids: %w", err)
	}

	var result []*task.Task
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}
		if opts.OwnerID != "" && t.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		result = append(result, t)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/redis: count task ids: %w", err)
	}

	var count int64
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}
		if opts.OwnerID != "" && t.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// DeleteTasksBefore removes terminal tasks that ended before cutoff.
func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/redis: delete task ids: %w", err)
	}

	var removed int64
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}
		if !t.Status.Terminal() || t.EndedAt == nil || !t.EndedAt.Before(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, taskKey(tID))
		pipe.SRem(ctx, taskIDsKey, tID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return removed, fmt.Errorf("vedfolnir/redis: delete task: %w", pErr)
		}
		removed++
	}
	return removed, nil
}

// ── helpers ──

// taskScore computes a ready-set score from priority and enqueue time.
// Lower score = claimed first, so priority is negated and scaled to a
// band wider than any Unix-millisecond value, with CreatedAt breaking
// ties FIFO. Both components stay integral, so float64 holds them
// exactly for priorities up to several hundred.
func taskScore(priority int, createdAt time.Time) float64 {
	return float64(-priority)*1e13 + float64(createdAt.UnixMilli())
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func taskToMap(t *task.Task) map[string]interface{} {
	m := map[string]interface{}{
		"id":               t.ID.String(),
		"owner_id":         t.OwnerID,
		"kind":             t.Kind,
		"payload":          string(t.Payload),
		"status":           string(t.Status),
		"priority":         strconv.Itoa(t.Priority),
		"progress_percent": strconv.Itoa(t.Progress.Percent),
		"progress_message": t.Progress.Message,
		"error_message":    t.ErrorMessage,
		"cancel_requested": strconv.FormatBool(t.CancelRequested),
		"worker_id":        t.WorkerID.String(),
		"timeout":          strconv.FormatInt(int64(t.Timeout), 10),
		"created_at":       t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       t.UpdatedAt.Format(time.RFC3339Nano),
	}
	if t.StartedAt != nil {
		m["started_at"] = t.StartedAt.Format(time.RFC3339Nano)
	}
	if t.EndedAt != nil {
		m["ended_at"] = t.EndedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getTaskByKey(ctx context.Context, key string) (*task.Task, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/redis: get task: %w", err)
	}
	if len(vals) == 0 {
		return nil, vedfolnir.ErrTaskNotFound
	}
	return mapToTask(vals)
}

func mapToTask(m map[string]string) (*task.Task, error) {
	tID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/redis: parse task id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])                     //nolint:errcheck // best-effort parse from trusted Redis data
	percent, _ := strconv.Atoi(m["progress_percent"])              //nolint:errcheck // best-effort parse from trusted Redis data
	cancelRequested, _ := strconv.ParseBool(m["cancel_requested"]) //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)           //nolint:errcheck // best-effort parse from trusted Redis data

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	t := &task.Task{
		Entity: vedfolnir.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:              tID,
		OwnerID:         m["owner_id"],
		Kind:            m["kind"],
		Payload:         []byte(m["payload"]),
		Status:          task.Status(m["status"]),
		Priority:        priority,
		Progress:        task.Progress{Percent: percent, Message: m["progress_message"]},
		ErrorMessage:    m["error_message"],
		CancelRequested: cancelRequested,
		Timeout:         time.Duration(timeout),
	}

	if wid := m["worker_id"]; wid != "" {
		t.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.StartedAt = &ts
	}
	if v := m["ended_at"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.EndedAt = &ts
	}

	return t, nil
}
