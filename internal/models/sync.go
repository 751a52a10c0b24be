package models

import "time"

// SyncMetadata links a local task to its Google counterpart.
type SyncMetadata struct {
	TaskID           int64      `json:"task_id" db:"task_id"`
	GoogleEventID    *string    `json:"google_event_id,omitempty" db:"google_event_id"`
	GoogleTaskID     *string    `json:"google_task_id,omitempty" db:"google_task_id"`
	GoogleTaskListID *string    `json:"google_task_list_id,omitempty" db:"google_task_list_id"`
	IsFixed          bool       `json:"is_fixed" db:"is_fixed"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	SyncStatus       string     `json:"sync_status" db:"sync_status"`
	LastError        *string    `json:"last_error,omitempty" db:"last_error"`
	RetryCount       int        `json:"retry_count" db:"retry_count"`
}

// SyncQueueEntry is a durable, retryable export operation.
type SyncQueueEntry struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	Operation   string     `json:"operation" db:"operation"`
	EntityType  string     `json:"entity_type" db:"entity_type"`
	EntityID    int64      `json:"entity_id" db:"entity_id"`
	Payload     string     `json:"payload" db:"payload"`
	Status      string     `json:"status" db:"status"`
	LastError   *string    `json:"last_error,omitempty" db:"last_error"`
	RetryCount  int        `json:"retry_count" db:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// SyncLogEntry is an append-only audit record.
type SyncLogEntry struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Operation  string    `json:"operation" db:"operation"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   int64     `json:"entity_id" db:"entity_id"`
	Status     string    `json:"status" db:"status"`
	Details    string    `json:"details" db:"details"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
