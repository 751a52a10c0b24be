package models

import "time"

// ExternalEvent is the provider-neutral view of a timed calendar event.
type ExternalEvent struct {
	ID               string    `json:"id"`
	Summary          string    `json:"summary"`
	Description      string    `json:"description"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	RecurringEventID string    `json:"recurring_event_id,omitempty"`
}

// ExternalTask is the provider-neutral view of a task-list item.
type ExternalTask struct {
	ID        string     `json:"id"`
	ListID    string     `json:"list_id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
	Due       *time.Time `json:"due,omitempty"`
	Status    string     `json:"status"` // needsAction, completed
	Completed *time.Time `json:"completed,omitempty"`
}
