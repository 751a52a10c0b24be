package models

import "time"

// Completion records that a task was completed or skipped, as reported by
// the exported calendar event.
type Completion struct {
	ID            int64     `json:"id" db:"id"`
	TaskID        int64     `json:"task_id" db:"task_id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	Status        string    `json:"status" db:"status"` // completed, skipped
	OccurredAt    time.Time `json:"occurred_at" db:"occurred_at"`
	ActualMinutes *int      `json:"actual_minutes,omitempty" db:"actual_minutes"`
	Source        string    `json:"source" db:"source"`
	ExternalID    string    `json:"external_id" db:"external_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
