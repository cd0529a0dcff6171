package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// CreateTask persists a new queued task. The one-active-task-per-owner
// rule is enforced by the vedfolnir_tasks_owner_active partial unique
// index, which makes the owner check and the insert a single atomic
// statement.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vedfolnir_tasks (
			id, owner_id, kind, payload, status, priority,
			progress_percent, progress_message, error_message,
			cancel_requested, worker_id, started_at, ended_at,
			timeout, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16
		)`,
		t.ID.String(), t.OwnerID, t.Kind, t.Payload, string(t.Status), t.Priority,
		t.Progress.Percent, t.Progress.Message, t.ErrorMessage,
		t.CancelRequested, t.WorkerID.String(), t.StartedAt, t.EndedAt,
		t.Timeout.Nanoseconds(), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isConstraint(err, "vedfolnir_tasks_owner_active") {
			return vedfolnir.ErrOwnerBusy
		}
		if isDuplicateKey(err) {
			return vedfolnir.ErrTaskAlreadyExists
		}
		return fmt.Errorf("vedfolnir/postgres: create task: %w", err)
	}
	return nil
}

// ClaimNextTask atomically claims the best queued task: highest priority
// first, oldest enqueue time breaking ties. FOR UPDATE SKIP LOCKED keeps
// concurrent workers from selecting the same row. Returns (nil, nil)
// when no task is ready.
func (s *Store) ClaimNextTask(ctx context.Context, workerID id.WorkerID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		WITH claimed AS (
			UPDATE vedfolnir_tasks
			SET status = 'running', worker_id = $1, started_at = NOW(), updated_at = NOW()
			WHERE id = (
				SELECT id FROM vedfolnir_tasks
				WHERE status = 'queued'
				ORDER BY priority DESC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING
				id, owner_id, kind, payload, status, priority,
				progress_percent, progress_message, error_message,
				cancel_requested, worker_id, started_at, ended_at,
				timeout, created_at, updated_at
		)
		SELECT * FROM claimed`,
		workerID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vedfolnir/postgres: claim next task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, owner_id, kind, payload, status, priority,
			progress_percent, progress_message, error_message,
			cancel_requested, worker_id, started_at, ended_at,
			timeout, created_at, updated_at
		FROM vedfolnir_tasks
		WHERE id = $1`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/postgres: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vedfolnir_tasks SET
			owner_id = $2, kind = $3, payload = $4, status = $5,
			priority = $6, progress_percent = $7, progress_message = $8,
			error_message = $9, cancel_requested = $10, worker_id = $11,
			started_at = $12, ended_at = $13, timeout = $14,
			updated_at = NOW()
		WHERE id = $1`,
		t.ID.String(), t.OwnerID, t.Kind, t.Payload, string(t.Status),
		t.Priority, t.Progress.Percent, t.Progress.Message,
		t.ErrorMessage, t.CancelRequested, t.WorkerID.String(),
		t.StartedAt, t.EndedAt, t.Timeout.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("vedfolnir/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vedfolnir.ErrTaskNotFound
	}
	return nil
}

// UpdateProgress updates only the progress field of a task. Writes that
// race completion and land after the task went terminal are dropped.
func (s *Store) UpdateProgress(ctx context.Context, taskID id.TaskID, p task.Progress) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vedfolnir_tasks
		SET progress_percent = $2, progress_message = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')`,
		taskID.String(), p.Percent, p.Message,
	)
	if err != nil {
		return fmt.Errorf("vedfolnir/postgres: update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	row := s.pool.QueryRow(ctx, `
		UPDATE vedfolnir_tasks SET
			cancel_requested = CASE WHEN status = 'running' THEN TRUE ELSE cancel_requested END,
			ended_at = CASE WHEN status = 'queued' THEN NOW() ELSE ended_at END,
			status = CASE WHEN status = 'queued' THEN 'cancelled' ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')
		RETURNING
			id, owner_id, kind, payload, status, priority,
			progress_percent, progress_message, error_message,
			cancel_requested, worker_id, started_at, ended_at,
			timeout, created_at, updated_at`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			// Either no such task or it is already terminal.
			if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
				return nil, getErr
			}
			return nil, vedfolnir.ErrInvalidTransition
		}
		return nil, fmt.Errorf("vedfolnir/postgres: cancel task: %w", err)
	}
	return t, nil
}

// GetActiveTask returns the owner's queued or running task.
func (s *Store) GetActiveTask(ctx context.Context, ownerID string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, owner_id, kind, payload, status, priority,
			progress_percent, progress_message, error_message,
			cancel_requested, worker_id, started_at, ended_at,
			timeout, created_at, updated_at
		FROM vedfolnir_tasks
		WHERE owner_id = $1 AND status IN ('queued', 'running')
		LIMIT 1`,
		ownerID,
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/postgres: get active task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the given options, newest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	query := `
		SELECT
			id, owner_id, kind, payload, status, priority,
			progress_percent, progress_message, error_message,
			cancel_requested, worker_id, started_at, ended_at,
			timeout, created_at, updated_at
		FROM vedfolnir_tasks
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, opts.OwnerID)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM vedfolnir_tasks WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, opts.OwnerID)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/postgres: count tasks: %w", err)
	}
	return count, nil
}

// DeleteTasksBefore removes terminal tasks that ended before cutoff.
func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM vedfolnir_tasks
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND ended_at IS NOT NULL
		  AND ended_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/postgres: delete tasks before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		idStr     string
		statusStr string
		workerStr string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &t.OwnerID, &t.Kind, &t.Payload, &statusStr, &t.Priority,
		&t.Progress.Percent, &t.Progress.Message, &t.ErrorMessage,
		&t.CancelRequested, &workerStr, &t.StartedAt, &t.EndedAt,
		&timeoutNs, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(statusStr)
	t.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("vedfolnir/postgres: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			t.WorkerID = parsedWorker
		}
	}

	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("vedfolnir/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vedfolnir/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}
