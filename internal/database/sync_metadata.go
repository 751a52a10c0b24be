package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dayplan/internal/models"

	"github.com/jmoiron/sqlx"
)

const metadataColumns = `m.task_id, m.google_event_id, m.google_task_id, m.google_task_list_id, m.is_fixed,
        m.last_sync_at, m.sync_status, m.last_error, m.retry_count`

func (db *DB) GetSyncMetadata(ctx context.Context, taskID int64) (*models.SyncMetadata, error) {
	return db.getMetadata(ctx, `SELECT `+metadataColumns+` FROM task_sync_metadata m WHERE m.task_id = ?`, taskID)
}

// GetSyncMetadataByEventID finds the user's task linked to a calendar event.
func (db *DB) GetSyncMetadataByEventID(ctx context.Context, userID int64, eventID string) (*models.SyncMetadata, error) {
	return db.getMetadata(ctx, `SELECT `+metadataColumns+` FROM task_sync_metadata m
        JOIN tasks t ON t.id = m.task_id WHERE t.user_id = ? AND m.google_event_id = ?`, userID, eventID)
}

// GetSyncMetadataByGoogleTaskID finds the user's task linked to a task-list item.
func (db *DB) GetSyncMetadataByGoogleTaskID(ctx context.Context, userID int64, googleTaskID string) (*models.SyncMetadata, error) {
	return db.getMetadata(ctx, `SELECT `+metadataColumns+` FROM task_sync_metadata m
        JOIN tasks t ON t.id = m.task_id WHERE t.user_id = ? AND m.google_task_id = ?`, userID, googleTaskID)
}

func (db *DB) getMetadata(ctx context.Context, query string, args ...interface{}) (*models.SyncMetadata, error) {
	var meta models.SyncMetadata
	err := db.GetContext(ctx, &meta, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metadata: %w", err)
	}
	return &meta, nil
}

// UpsertSyncMetadata inserts or overwrites the row keyed by task id.
func (db *DB) UpsertSyncMetadata(ctx context.Context, meta *models.SyncMetadata) error {
	return upsertSyncMetadata(ctx, db.DB, meta)
}

func upsertSyncMetadata(ctx context.Context, e sqlx.ExtContext, meta *models.SyncMetadata) error {
	if meta.SyncStatus == "" {
		meta.SyncStatus = models.SyncStatusPending
	}

	query := e.Rebind(`INSERT INTO task_sync_metadata (task_id, google_event_id, google_task_id, google_task_list_id,
        is_fixed, last_sync_at, sync_status, last_error, retry_count)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(task_id) DO UPDATE SET
            google_event_id = excluded.google_event_id,
            google_task_id = excluded.google_task_id,
            google_task_list_id = excluded.google_task_list_id,
            is_fixed = excluded.is_fixed,
            last_sync_at = excluded.last_sync_at,
            sync_status = excluded.sync_status,
            last_error = excluded.last_error,
            retry_count = excluded.retry_count`)

	_, err := e.ExecContext(ctx, query,
		meta.TaskID, meta.GoogleEventID, meta.GoogleTaskID, meta.GoogleTaskListID,
		meta.IsFixed, utcPtr(meta.LastSyncAt), meta.SyncStatus, meta.LastError, meta.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync metadata for task %d: %w", meta.TaskID, err)
	}
	return nil
}

func (db *DB) DeleteSyncMetadata(ctx context.Context, taskID int64) error {
	if _, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM task_sync_metadata WHERE task_id = ?`), taskID); err != nil {
		return fmt.Errorf("failed to delete sync metadata: %w", err)
	}
	return nil
}
