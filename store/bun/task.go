package bunstore

import (
	"context"
	"fmt"
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// CreateTask persists a new queued task. The one-active-task-per-owner
// rule rides on the vedfolnir_tasks_owner_active partial unique index, so
// the owner check and the insert are one atomic statement.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isConstraint(err, "vedfolnir_tasks_owner_active") {
			return vedfolnir.ErrOwnerBusy
		}
		if isDuplicateKey(err) {
			return vedfolnir.ErrTaskAlreadyExists
		}
		return fmt.Errorf("vedfolnir/bun: create task: %w", err)
	}
	return nil
}

// ClaimNextTask atomically claims the best queued task: highest priority
// first, oldest enqueue time breaking ties. Uses FOR UPDATE SKIP LOCKED
// via raw SQL so concurrent workers never select the same row.
func (s *Store) ClaimNextTask(ctx context.Context, workerID id.WorkerID) (*task.Task, error) {
	var models []taskModel
	_, err := s.db.NewRaw(`
		WITH claimed AS (
			UPDATE vedfolnir_tasks
			SET status = 'running', worker_id = ?0, started_at = NOW(), updated_at = NOW()
			WHERE id = (
				SELECT id FROM vedfolnir_tasks
				WHERE status = 'queued'
				ORDER BY priority DESC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING *
		)
		SELECT * FROM claimed`,
		workerID.String(),
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/bun: claim next task: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return fromTaskModel(&models[0])
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	m := new(taskModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", taskID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/bun: get task: %w", err)
	}
	return fromTaskModel(m)
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("vedfolnir/bun: update task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return vedfolnir.ErrTaskNotFound
	}
	return nil
}

// UpdateProgress updates only the progress field of a task. Writes that
// race completion and land after the task went terminal are dropped.
func (s *Store) UpdateProgress(ctx context.Context, taskID id.TaskID, p task.Progress) error {
	res, err := s.db.NewUpdate().
		TableExpr("vedfolnir_tasks").
		Set("progress_percent = ?", p.Percent).
		Set("progress_message = ?", p.Message).
		Set("updated_at = NOW()").
		Where("id = ?", taskID.String()).
		Where("status IN ('queued', 'running')").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vedfolnir/bun: update progress: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		// Either no such task or it is already terminal. Only the former
		// is an error.
		if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
			return getErr
		}
		return nil
	}
	return nil
}

// CancelTask applies the cancellation branch in a single statement:
// queued tasks jump straight to cancelled, running tasks get the
// cooperative flag.
func (s *Store) CancelTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	var models []taskModel
	_, err := s.db.NewRaw(`
		UPDATE vedfolnir_tasks SET
			cancel_requested = CASE WHEN status = 'running' THEN TRUE ELSE cancel_requested END,
			ended_at = CASE WHEN status = 'queued' THEN NOW() ELSE ended_at END,
			status = CASE WHEN status = 'queued' THEN 'cancelled' ELSE status END,
			updated_at = NOW()
		WHERE id = ?0 AND status IN ('queued', 'running')
		RETURNING *`,
		taskID.String(),
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/bun: cancel task: %w", err)
	}
	if len(models) == 0 {
		// Either no such task or it is already terminal.
		if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
			return nil, getErr
		}
		return nil, vedfolnir.ErrInvalidTransition
	}
	return fromTaskModel(&models[0])
}

// GetActiveTask returns the owner's queued or running task.
func (s *Store) GetActiveTask(ctx context.Context, ownerID string) (*task.Task, error) {
	m := new(taskModel)
	err := s.db.NewSelect().Model(m).
		Where("owner_id = ?", ownerID).
		Where("status IN ('queued', 'running')").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/bun: get active task: %w", err)
	}
	return fromTaskModel(m)
}

// ListTasks returns tasks matching the given options, newest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	var models []taskModel
	q := s.db.NewSelect().Model(&models)

	if opts.OwnerID != "" {
		q = q.Where("owner_id = ?", opts.OwnerID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	q = q.Order("created_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("vedfolnir/bun: list tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, convErr := fromTaskModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("vedfolnir/bun: list tasks convert: %w", convErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("vedfolnir_tasks")

	if opts.OwnerID != "" {
		q = q.Where("owner_id = ?", opts.OwnerID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/bun: count tasks: %w", err)
	}
	return int64(count), nil
}

// DeleteTasksBefore removes terminal tasks that ended before cutoff.
func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("vedfolnir_tasks").
		Where("status IN ('completed', 'failed', 'cancelled')").
		Where("ended_at IS NOT NULL").
		Where("ended_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/bun: delete tasks: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}
