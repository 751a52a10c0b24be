package models

import "time"

type Task struct {
	ID               int64      `json:"id" db:"id"`
	UserID           int64      `json:"user_id" db:"user_id"`
	Title            string     `json:"title" db:"title"`
	Description      *string    `json:"description,omitempty" db:"description"`
	DomainID         *int64     `json:"domain_id,omitempty" db:"domain_id"`
	Priority         string     `json:"priority" db:"priority"` // must-do, should-do, nice-to-have
	EstimatedMinutes int        `json:"estimated_minutes" db:"estimated_minutes"`
	DueAt            *time.Time `json:"due_at,omitempty" db:"due_at"`
	Status           string     `json:"status" db:"status"` // todo, in-progress, done, dropped
	RecurrenceRule   *string    `json:"recurrence_rule,omitempty" db:"recurrence_rule"`
	EnergyLevel      string     `json:"energy_level" db:"energy_level"` // low, medium, high
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Duration returns the estimate, falling back to DefaultEstimatedMinutes.
func (t *Task) Duration() time.Duration {
	minutes := t.EstimatedMinutes
	if minutes <= 0 {
		minutes = DefaultEstimatedMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// IsRecurring reports whether completing the task spawns a successor.
func (t *Task) IsRecurring() bool {
	return t.RecurrenceRule != nil && *t.RecurrenceRule != ""
}

type Domain struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Category  string    `json:"category" db:"category"` // must-do, want-to, health
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
