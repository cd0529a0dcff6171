package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// activeStatuses is the filter value for queued-or-running documents.
var activeStatuses = []string{string(task.StatusQueued), string(task.StatusRunning)}

// terminalStatuses is the filter value for settled documents.
var terminalStatuses = []string{
	string(task.StatusCompleted),
	string(task.StatusFailed),
	string(task.StatusCancelled),
}

// CreateTask persists a new queued task. The one-active-task-per-owner
// rule rides on the partial unique owner index, so the owner check and
// the insert are one atomic operation.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.Collection(colTasks).InsertOne(ctx, toTaskModel(t))
	if err != nil {
		if isOwnerConflict(err) {
			return vedfolnir.ErrOwnerBusy
		}
		if isDuplicateKey(err) {
			return vedfolnir.ErrTaskAlreadyExists
		}
		return fmt.Errorf("vedfolnir/mongo: create task: %w", err)
	}
	return nil
}

// ClaimNextTask atomically claims the best queued task: highest priority
// first, oldest enqueue time breaking ties. FindOneAndUpdate is a single
// document-level atomic operation, so two workers never claim the same
// task. Returns (nil, nil) when no task is ready.
func (s *Store) ClaimNextTask(ctx context.Context, workerID id.WorkerID) (*task.Task, error) {
	t := now()

	update := bson.M{
		"$set": bson.M{
			"status":     string(task.StatusRunning),
			"worker_id":  workerID.String(),
			"started_at": t,
			"updated_at": t,
		},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{
			{Key: "priority", Value: -1},
			{Key: "created_at", Value: 1},
		})

	var m taskModel
	err := s.db.Collection(colTasks).
		FindOneAndUpdate(ctx, bson.M{"status": string(task.StatusQueued)}, update, opts).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vedfolnir/mongo: claim next task: %w", err)
	}
	return fromTaskModel(&m)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	var m taskModel
	err := s.db.Collection(colTasks).
		FindOne(ctx, bson.M{"_id": taskID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/mongo: get task: %w", err)
	}
	return fromTaskModel(&m)
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	m.UpdatedAt = now()
	res, err := s.db.Collection(colTasks).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("vedfolnir/mongo: update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return vedfolnir.ErrTaskNotFound
	}
	return nil
}

// UpdateProgress updates only the progress field of a task. Writes that
// race completion and land after the task went terminal are dropped.
func (s *Store) UpdateProgress(ctx context.Context, taskID id.TaskID, p task.Progress) error {
	res, err := s.db.Collection(colTasks).UpdateOne(ctx,
		bson.M{"_id": taskID.String(), "status": bson.M{"$in": activeStatuses}},
		bson.M{"$set": bson.M{
			"progress_percent": p.Percent,
			"progress_message": p.Message,
			"updated_at":       now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("vedfolnir/mongo: update progress: %w", err)
	}
	if res.MatchedCount == 0 {
		// Either no such task or it is already terminal. Only the former
		// is an error.
		if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
			return getErr
		}
		return nil
	}
	return nil
}

// CancelTask applies the cancellation branch in one atomic pipeline
// update: queued tasks jump straight to cancelled, running tasks get the
// cooperative flag. The $cond expressions all read the pre-update status.
func (s *Store) CancelTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	t := now()

	wasQueued := bson.M{"$eq": bson.A{"$status", string(task.StatusQueued)}}
	wasRunning := bson.M{"$eq": bson.A{"$status", string(task.StatusRunning)}}

	pipeline := mongod.Pipeline{
		bson.D{{Key: "$set", Value: bson.M{
			"cancel_requested": bson.M{"$cond": bson.A{wasRunning, true, "$cancel_requested"}},
			"ended_at":         bson.M{"$cond": bson.A{wasQueued, t, "$ended_at"}},
			"active":           bson.M{"$cond": bson.A{wasQueued, false, "$active"}},
			"status":           bson.M{"$cond": bson.A{wasQueued, string(task.StatusCancelled), "$status"}},
			"updated_at":       t,
		}}},
	}

	var m taskModel
	err := s.db.Collection(colTasks).
		FindOneAndUpdate(ctx,
			bson.M{"_id": taskID.String(), "status": bson.M{"$in": activeStatuses}},
			pipeline,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			// Either no such task or it is already terminal.
			if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
				return nil, getErr
			}
			return nil, vedfolnir.ErrInvalidTransition
		}
		return nil, fmt.Errorf("vedfolnir/mongo: cancel task: %w", err)
	}
	return fromTaskModel(&m)
}

// GetActiveTask returns the owner's queued or running task.
func (s *Store) GetActiveTask(ctx context.Context, ownerID string) (*task.Task, error) {
	var m taskModel
	err := s.db.Collection(colTasks).
		FindOne(ctx, bson.M{"owner_id": ownerID, "active": true}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/mongo: get active task: %w", err)
	}
	return fromTaskModel(&m)
}

// ListTasks returns tasks matching the given options, newest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	filter := bson.M{}
	if opts.OwnerID != "" {
		filter["owner_id"] = opts.OwnerID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colTasks).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/mongo: list tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var models []taskModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("vedfolnir/mongo: list tasks decode: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, convErr := fromTaskModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("vedfolnir/mongo: list tasks convert: %w", convErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.OwnerID != "" {
		filter["owner_id"] = opts.OwnerID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	count, err := s.db.Collection(colTasks).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/mongo: count tasks: %w", err)
	}
	return count, nil
}

// DeleteTasksBefore removes terminal tasks that ended before cutoff.
func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Collection(colTasks).DeleteMany(ctx, bson.M{
		"status":   bson.M{"$in": terminalStatuses},
		"ended_at": bson.M{"$ne": nil, "$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/mongo: delete tasks: %w", err)
	}
	return res.DeletedCount, nil
}
