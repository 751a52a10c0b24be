package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/models"
)

const queueColumns = `id, user_id, operation, entity_type, entity_id, payload, status, last_error, retry_count,
        next_retry_at, created_at, claimed_at, processed_at`

func (db *DB) CreateSyncEntry(ctx context.Context, entry *models.SyncQueueEntry) error {
	now := time.Now().UTC()
	if entry.Status == "" {
		entry.Status = models.QueueStatusPending
	}
	if entry.Payload == "" {
		entry.Payload = "{}"
	}

	query := db.Rebind(`INSERT INTO sync_queue (user_id, operation, entity_type, entity_id, payload, status,
        retry_count, last_error, next_retry_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	id, err := insertReturningID(ctx, db.DB, query,
		entry.UserID,
		entry.Operation,
		entry.EntityType,
		entry.EntityID,
		entry.Payload,
		entry.Status,
		entry.RetryCount,
		entry.LastError,
		utcPtr(entry.NextRetryAt),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync entry: %w", err)
	}

	entry.ID = id
	entry.CreatedAt = now
	return nil
}

func (db *DB) GetSyncEntry(ctx context.Context, id int64) (*models.SyncQueueEntry, error) {
	var entry models.SyncQueueEntry
	err := db.GetContext(ctx, &entry, db.Rebind(`SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync entry: %w", err)
	}
	return &entry, nil
}

// GetDueSyncEntries returns pending entries whose next_retry_at has passed.
func (db *DB) GetDueSyncEntries(ctx context.Context, now time.Time, limit int) ([]models.SyncQueueEntry, error) {
	if limit <= 0 {
		limit = models.DefaultQueueBatchSize
	}
	query := db.Rebind(`SELECT ` + queueColumns + ` FROM sync_queue
        WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
        ORDER BY created_at ASC, id ASC LIMIT ?`)

	var entries []models.SyncQueueEntry
	if err := db.SelectContext(ctx, &entries, query, models.QueueStatusPending, utc(now), limit); err != nil {
		return nil, fmt.Errorf("failed to get due sync entries: %w", err)
	}
	return entries, nil
}

// ClaimSyncEntry moves a pending entry to processing, stamped with at.
// ErrNotFound means the entry is no longer pending.
func (db *DB) ClaimSyncEntry(ctx context.Context, id int64, at time.Time) error {
	result, err := db.ExecContext(ctx, db.Rebind(`UPDATE sync_queue SET status = ?, claimed_at = ?
        WHERE id = ? AND status = ?`),
		models.QueueStatusProcessing, utc(at), id, models.QueueStatusPending)
	if err != nil {
		return fmt.Errorf("failed to claim sync entry: %w", err)
	}
	return expectRows(result)
}

// ReleaseSyncEntry hands a claimed entry back to pending without spending
// an attempt.
func (db *DB) ReleaseSyncEntry(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, db.Rebind(`UPDATE sync_queue SET status = ?, claimed_at = NULL
        WHERE id = ? AND status = ?`),
		models.QueueStatusPending, id, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to release sync entry: %w", err)
	}
	return expectRows(result)
}

// ResetStaleSyncEntries releases entries left in processing since before
// olderThan, e.g. by a drain that died mid-replay.
func (db *DB) ResetStaleSyncEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, db.Rebind(`UPDATE sync_queue SET status = ?, claimed_at = NULL
        WHERE status = ? AND (claimed_at IS NULL OR claimed_at <= ?)`),
		models.QueueStatusPending, models.QueueStatusProcessing, utc(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale sync entries: %w", err)
	}
	return result.RowsAffected()
}

// UpdateSyncEntryStatus records the outcome of a replay.
// Rescheduling (pending) and failing both count as a spent attempt.
func (db *DB) UpdateSyncEntryStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()
	lastError := nullableString(errMsg)

	switch status {
	case models.QueueStatusPending:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1,
            claimed_at = NULL WHERE id = ?`
		args = []interface{}{status, lastError, utcPtr(nextRetryAt), id}
	case models.QueueStatusFailed:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = NULL, retry_count = retry_count + 1,
            claimed_at = NULL, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastError, now, id}
	case models.QueueStatusCompleted:
		query = `UPDATE sync_queue SET status = ?, last_error = NULL, next_retry_at = NULL, claimed_at = NULL,
            processed_at = ? WHERE id = ?`
		args = []interface{}{status, now, id}
	default:
		return fmt.Errorf("unknown sync queue status %q", status)
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update sync entry status: %w", err)
	}
	return expectRows(result)
}

// RequeueSyncEntry resets a failed entry to pending with a fresh retry budget.
func (db *DB) RequeueSyncEntry(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, db.Rebind(`UPDATE sync_queue
        SET status = ?, retry_count = 0, next_retry_at = ?, processed_at = NULL
        WHERE id = ? AND status = ?`),
		models.QueueStatusPending, time.Now().UTC(), id, models.QueueStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to requeue sync entry: %w", err)
	}
	return expectRows(result)
}

// GetFailedSyncEntries lists failed entries; userID 0 means every user.
func (db *DB) GetFailedSyncEntries(ctx context.Context, userID int64) ([]models.SyncQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE status = ?`
	args := []interface{}{models.QueueStatusFailed}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var entries []models.SyncQueueEntry
	if err := db.SelectContext(ctx, &entries, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get failed sync entries: %w", err)
	}
	return entries, nil
}

func (db *DB) CountPendingSyncEntries(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.GetContext(ctx, &count,
		db.Rebind(`SELECT COUNT(*) FROM sync_queue WHERE user_id = ? AND status IN (?, ?)`),
		userID, models.QueueStatusPending, models.QueueStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending sync entries: %w", err)
	}
	return count, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
