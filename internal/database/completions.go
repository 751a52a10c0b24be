package database

import (
	"context"
	"fmt"
	"time"

	"dayplan/internal/models"
)

// RecordCompletion inserts a completion fact. A duplicate (task, status,
// occurred_at) is ignored and reported as inserted=false.
func (db *DB) RecordCompletion(ctx context.Context, c *models.Completion) (bool, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Source == "" {
		c.Source = models.ProviderGoogle
	}

	result, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO completions
        (task_id, user_id, status, occurred_at, actual_minutes, source, external_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(task_id, status, occurred_at) DO NOTHING`),
		c.TaskID, c.UserID, c.Status, utc(c.OccurredAt), c.ActualMinutes, c.Source, c.ExternalID, utc(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to record completion: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) ListCompletions(ctx context.Context, taskID int64) ([]models.Completion, error) {
	var completions []models.Completion
	err := db.SelectContext(ctx, &completions, db.Rebind(`SELECT id, task_id, user_id, status, occurred_at,
        actual_minutes, source, external_id, created_at FROM completions WHERE task_id = ? ORDER BY occurred_at`), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return completions, nil
}
