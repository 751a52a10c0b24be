package database

import (
	"context"
	"fmt"
	"time"

	"dayplan/internal/models"
)

// AppendSyncLog writes one audit row. Rows are never updated.
func (db *DB) AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Details == "" {
		entry.Details = "{}"
	}

	id, err := insertReturningID(ctx, db.DB, db.Rebind(`INSERT INTO sync_log
        (user_id, operation, entity_type, entity_id, status, details, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		entry.UserID, entry.Operation, entry.EntityType, entry.EntityID, entry.Status, entry.Details, utc(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	entry.ID = id
	return nil
}

// LastSuccessfulSync returns the newest success timestamp, or nil.
func (db *DB) LastSuccessfulSync(ctx context.Context, userID int64) (*time.Time, error) {
	var entries []models.SyncLogEntry
	err := db.SelectContext(ctx, &entries, db.Rebind(`SELECT id, user_id, operation, entity_type, entity_id, status,
        details, created_at FROM sync_log WHERE user_id = ? AND status = ? ORDER BY created_at DESC, id DESC LIMIT 1`),
		userID, models.LogStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0].CreatedAt, nil
}

// ListSyncLog returns the newest entries first.
func (db *DB) ListSyncLog(ctx context.Context, userID int64, limit int) ([]models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.SyncLogEntry
	err := db.SelectContext(ctx, &entries, db.Rebind(`SELECT id, user_id, operation, entity_type, entity_id, status,
        details, created_at FROM sync_log WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}
	return entries, nil
}
