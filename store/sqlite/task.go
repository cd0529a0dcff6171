package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

// taskColumns is the canonical column list shared by every SELECT and
// RETURNING clause in this file, in scanTask order.
const taskColumns = `
	id, owner_id, kind, payload, status, priority,
	progress_percent, progress_message, error_message,
	cancel_requested, worker_id, started_at, ended_at,
	timeout, created_at, updated_at`

// CreateTask persists a new queued task. The one-active-task-per-owner
// rule is enforced by the vedfolnir_tasks_owner_active partial unique
// index, which makes the owner check and the insert a single atomic
// statement.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vedfolnir_tasks (
			id, owner_id, kind, payload, status, priority,
			progress_percent, progress_message, error_message,
			cancel_requested, worker_id, started_at, ended_at,
			timeout, created_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?
		)`,
		t.ID.String(), t.OwnerID, t.Kind, t.Payload, string(t.Status), t.Priority,
		t.Progress.Percent, t.Progress.Message, t.ErrorMessage,
		t.CancelRequested, t.WorkerID.String(), nullableTime(t.StartedAt), nullableTime(t.EndedAt),
		t.Timeout.Nanoseconds(), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err, "vedfolnir_tasks.owner_id") {
			return vedfolnir.ErrOwnerBusy
		}
		if isDuplicateKey(err) {
			return vedfolnir.ErrTaskAlreadyExists
		}
		return fmt.Errorf("vedfolnir/sqlite: create task: %w", err)
	}
	return nil
}

// ClaimNextTask atomically claims the best queued task: highest priority
// first, oldest enqueue time breaking ties. The UPDATE holds SQLite's
// write lock while its subselect runs, so concurrent workers can't pick
// the same row. Returns (nil, nil) when no task is ready.
func (s *Store) ClaimNextTask(ctx context.Context, workerID id.WorkerID) (*task.Task, error) {
	now := formatTime(time.Now())
	row := s.db.QueryRowContext(ctx, `
		UPDATE vedfolnir_tasks
		SET status = 'running', worker_id = ?, started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM vedfolnir_tasks
			WHERE status = 'queued'
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		)
		RETURNING `+taskColumns,
		workerID.String(), now, now,
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vedfolnir/sqlite: claim next task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM vedfolnir_tasks
		WHERE id = ?`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/sqlite: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vedfolnir_tasks SET
			owner_id = ?, kind = ?, payload = ?, status = ?,
			priority = ?, progress_percent = ?, progress_message = ?,
			error_message = ?, cancel_requested = ?, worker_id = ?,
			started_at = ?, ended_at = ?, timeout = ?,
			updated_at = ?
		WHERE id = ?`,
		t.OwnerID, t.Kind, t.Payload, string(t.Status),
		t.Priority, t.Progress.Percent, t.Progress.Message,
		t.ErrorMessage, t.CancelRequested, t.WorkerID.String(),
		nullableTime(t.StartedAt), nullableTime(t.EndedAt), t.Timeout.Nanoseconds(),
		formatTime(time.Now()),
		t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("vedfolnir/sqlite: update task: %w", err)
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
	res, err := s.db.ExecContext(ctx, `
		UPDATE vedfolnir_tasks
		SET progress_percent = ?, progress_message = ?, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'running')`,
		p.Percent, p.Message, formatTime(time.Now()), taskID.String(),
	)
	if err != nil {
		return fmt.Errorf("vedfolnir/sqlite: update progress: %w", err)
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
// cooperative flag. The CASE expressions all read the pre-update row.
func (s *Store) CancelTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	now := formatTime(time.Now())
	row := s.db.QueryRowContext(ctx, `
		UPDATE vedfolnir_tasks SET
			cancel_requested = CASE WHEN status = 'running' THEN 1 ELSE cancel_requested END,
			ended_at = CASE WHEN status = 'queued' THEN ? ELSE ended_at END,
			status = CASE WHEN status = 'queued' THEN 'cancelled' ELSE status END,
			updated_at = ?
		WHERE id = ? AND status IN ('queued', 'running')
		RETURNING `+taskColumns,
		now, now, taskID.String(),
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
		return nil, fmt.Errorf("vedfolnir/sqlite: cancel task: %w", err)
	}
	return t, nil
}

// GetActiveTask returns the owner's queued or running task.
func (s *Store) GetActiveTask(ctx context.Context, ownerID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM vedfolnir_tasks
		WHERE owner_id = ? AND status IN ('queued', 'running')
		LIMIT 1`,
		ownerID,
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, vedfolnir.ErrTaskNotFound
		}
		return nil, fmt.Errorf("vedfolnir/sqlite: get active task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the given options, newest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM vedfolnir_tasks
		WHERE 1=1`
	args := []interface{}{}

	if opts.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, opts.OwnerID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			// SQLite requires LIMIT before OFFSET.
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM vedfolnir_tasks WHERE 1=1`
	args := []interface{}{}

	if opts.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, opts.OwnerID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/sqlite: count tasks: %w", err)
	}
	return count, nil
}

// DeleteTasksBefore removes terminal tasks that ended before cutoff.
func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM vedfolnir_tasks
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND ended_at IS NOT NULL
		  AND ended_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("vedfolnir/sqlite: delete tasks before: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

// scanTask scans a single task row.
func scanTask(row scanner) (*task.Task, error) {
	var (
		t         task.Task
		idStr     string
		statusStr string
		workerStr string
		timeoutNs int64
		startedAt sql.NullString
		endedAt   sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&idStr, &t.OwnerID, &t.Kind, &t.Payload, &statusStr, &t.Priority,
		&t.Progress.Percent, &t.Progress.Message, &t.ErrorMessage,
		&t.CancelRequested, &workerStr, &startedAt, &endedAt,
		&timeoutNs, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(statusStr)
	t.Timeout = time.Duration(timeoutNs)

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("vedfolnir/sqlite: parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("vedfolnir/sqlite: parse updated_at: %w", err)
	}
	if t.StartedAt, err = scanNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("vedfolnir/sqlite: parse started_at: %w", err)
	}
	if t.EndedAt, err = scanNullTime(endedAt); err != nil {
		return nil, fmt.Errorf("vedfolnir/sqlite: parse ended_at: %w", err)
	}

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("vedfolnir/sqlite: parse task id %q: %w", idStr, parseErr)
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

// scanNullTime parses an optional timestamp column.
func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	ts, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("vedfolnir/sqlite: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vedfolnir/sqlite: iterate task rows: %w", err)
	}
	return tasks, nil
}
