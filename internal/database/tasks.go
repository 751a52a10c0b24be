package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/models"

	"github.com/jmoiron/sqlx"
)

const taskColumns = `id, user_id, title, description, domain_id, priority, estimated_minutes, due_at, status,
        recurrence_rule, energy_level, created_at, updated_at`

func (db *DB) CreateTask(ctx context.Context, task *models.Task) error {
	return createTask(ctx, db.DB, task)
}

func createTask(ctx context.Context, e sqlx.ExtContext, task *models.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = models.PriorityShouldDo
	}
	if task.EnergyLevel == "" {
		task.EnergyLevel = models.EnergyMedium
	}

	query := e.Rebind(`INSERT INTO tasks (user_id, title, description, domain_id, priority,
        estimated_minutes, due_at, status, recurrence_rule, energy_level, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	id, err := insertReturningID(ctx, e, query,
		task.UserID, task.Title, task.Description, task.DomainID, task.Priority,
		task.EstimatedMinutes, utcPtr(task.DueAt), task.Status, task.RecurrenceRule, task.EnergyLevel,
		utc(task.CreatedAt), task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	task.ID = id
	return nil
}

func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	err := db.GetContext(ctx, &task, db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return &task, nil
}

func (db *DB) UpdateTask(ctx context.Context, task *models.Task) error {
	return updateTask(ctx, db.DB, task)
}

func updateTask(ctx context.Context, e sqlx.ExtContext, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	query := e.Rebind(`UPDATE tasks SET title = ?, description = ?, domain_id = ?, priority = ?, estimated_minutes = ?,
        due_at = ?, status = ?, recurrence_rule = ?, energy_level = ?, updated_at = ? WHERE id = ?`)

	result, err := e.ExecContext(ctx, query,
		task.Title, task.Description, task.DomainID, task.Priority, task.EstimatedMinutes,
		utcPtr(task.DueAt), task.Status, task.RecurrenceRule, task.EnergyLevel, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", task.ID, err)
	}
	return expectRows(result)
}

func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status string) error {
	result, err := db.ExecContext(ctx, db.Rebind(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`),
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return expectRows(result)
}

// DeleteTask removes the task and its sync metadata.
func (db *DB) DeleteTask(ctx context.Context, id int64) error {
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM task_sync_metadata WHERE task_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete sync metadata: %w", err)
		}
		result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tasks WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		return expectRows(result)
	})
}

// ListPlannableTasks returns open tasks that are undated or due before end.
func (db *DB) ListPlannableTasks(ctx context.Context, userID int64, end time.Time) ([]models.Task, error) {
	query := db.Rebind(`SELECT ` + taskColumns + ` FROM tasks
        WHERE user_id = ? AND status IN ('todo', 'in-progress') AND (due_at IS NULL OR due_at < ?)
        ORDER BY due_at IS NULL, due_at, id`)

	var tasks []models.Task
	if err := db.SelectContext(ctx, &tasks, query, userID, utc(end)); err != nil {
		return nil, fmt.Errorf("failed to list plannable tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksDueBetween returns tasks with due_at in [start, end).
func (db *DB) ListTasksDueBetween(ctx context.Context, userID int64, start, end time.Time) ([]models.Task, error) {
	query := db.Rebind(`SELECT ` + taskColumns + ` FROM tasks
        WHERE user_id = ? AND due_at >= ? AND due_at < ? ORDER BY due_at, id`)

	var tasks []models.Task
	if err := db.SelectContext(ctx, &tasks, query, userID, utc(start), utc(end)); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// CreateTaskWithMetadata inserts an imported task and its sync metadata atomically.
func (db *DB) CreateTaskWithMetadata(ctx context.Context, task *models.Task, meta *models.SyncMetadata) error {
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := createTask(ctx, tx, task); err != nil {
			return err
		}
		meta.TaskID = task.ID
		return upsertSyncMetadata(ctx, tx, meta)
	})
}

// UpdateTaskWithMetadata applies an import update to an already-linked task.
func (db *DB) UpdateTaskWithMetadata(ctx context.Context, task *models.Task, meta *models.SyncMetadata) error {
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := updateTask(ctx, tx, task); err != nil {
			return err
		}
		meta.TaskID = task.ID
		return upsertSyncMetadata(ctx, tx, meta)
	})
}

func expectRows(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
