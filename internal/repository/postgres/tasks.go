package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/acreage/leadline/internal/domain"
)

// TaskRepo persists background task records.
type TaskRepo struct{ db *sql.DB }

// NewTaskRepo creates a Postgres-backed task repository.
func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{db: db} }

const taskColumns = `id, task_id, task_type, status, params, result, error_message,
	started_at, finished_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*domain.BackgroundTask, error) {
	var t domain.BackgroundTask
	err := row.Scan(&t.ID, &t.TaskID, &t.TaskType, &t.Status, &t.Params, &t.Result, &t.ErrorMessage,
		&t.StartedAt, &t.FinishedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a pending task and assigns its external UUID.
func (r *TaskRepo) Create(ctx context.Context, taskType string, params any) (*domain.BackgroundTask, error) {
	var payload []byte
	if params != nil {
		var err error
		payload, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal task params: %w", err)
		}
	}

	t := &domain.BackgroundTask{
		TaskID:   uuid.New().String(),
		TaskType: taskType,
		Status:   domain.TaskPending,
		Params:   payload,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO background_tasks (task_id, task_type, status, params, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, t.TaskID, t.TaskType, jsonArg(payload)).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// Start marks a task running.
func (r *TaskRepo) Start(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE background_tasks SET status = 'running', started_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("start task: %w", err)
	}
	return nil
}

// Complete marks a task finished with its result payload.
func (r *TaskRepo) Complete(ctx context.Context, id int64, result any) error {
	var payload []byte
	if result != nil {
		var err error
		payload, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE background_tasks SET status = 'completed', result = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, jsonArg(payload))
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail marks a task failed with its error message. Any partial result is
// kept alongside.
func (r *TaskRepo) Fail(ctx context.Context, id int64, errMsg string, result any) error {
	var payload []byte
	if result != nil {
		var err error
		payload, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE background_tasks SET status = 'failed', error_message = $2, result = $3, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, errMsg, jsonArg(payload))
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// Cancel marks a task cancelled, recording whatever completed before the
// signal arrived.
func (r *TaskRepo) Cancel(ctx context.Context, id int64, result any) error {
	var payload []byte
	if result != nil {
		var err error
		payload, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE background_tasks SET status = 'cancelled', result = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, jsonArg(payload))
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return nil
}

// GetByTaskID loads a task by its external UUID.
func (r *TaskRepo) GetByTaskID(ctx context.Context, taskID string) (*domain.BackgroundTask, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM background_tasks WHERE task_id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListRecent returns the latest tasks, newest first, optionally filtered
// by type.
func (r *TaskRepo) ListRecent(ctx context.Context, taskType string, limit int) ([]domain.BackgroundTask, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + taskColumns + ` FROM background_tasks`
	args := []any{}
	if taskType != "" {
		query += ` WHERE task_type = $1`
		args = append(args, taskType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.BackgroundTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteFinishedOlderThan removes terminal task rows past the retention
// horizon in capped batches. Returns rows deleted.
func (r *TaskRepo) DeleteFinishedOlderThan(ctx context.Context, days, batch int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM background_tasks
		WHERE id IN (
			SELECT id FROM background_tasks
			WHERE status IN ('completed','failed','cancelled')
			  AND finished_at < NOW() - ($1 * INTERVAL '1 day')
			LIMIT $2
		)
	`, days, batch)
	if err != nil {
		return 0, fmt.Errorf("delete old tasks: %w", err)
	}
	return res.RowsAffected()
}
