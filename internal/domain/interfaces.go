package domain

import (
	"context"
	"net/http"
	"time"

	"dayplan/internal/models"
)

// CalendarAPI is the narrow view of a remote calendar.
type CalendarAPI interface {
	ListDay(ctx context.Context, calendarID string, day time.Time) ([]models.ExternalEvent, error)
	CreateEvent(ctx context.Context, calendarID string, event models.ExternalEvent) (string, error)
	UpdateEvent(ctx context.Context, calendarID string, event models.ExternalEvent) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// TaskListAPI is the narrow view of a remote task-list service.
type TaskListAPI interface {
	ListToday(ctx context.Context) ([]models.ExternalTask, error)
	CreateTask(ctx context.Context, listID string, task models.ExternalTask) (models.ExternalTask, error)
	UpdateTask(ctx context.Context, task models.ExternalTask) error
	CompleteTask(ctx context.Context, listID, taskID string, at time.Time) error
	DeleteTask(ctx context.Context, listID, taskID string) error
}

// Connector builds API adapters on top of an authorized HTTP client.
type Connector interface {
	Calendar(ctx context.Context, client *http.Client) (CalendarAPI, error)
	Tasks(ctx context.Context, client *http.Client) (TaskListAPI, error)
}

// ClientProvider hands out authorized HTTP clients per user.
type ClientProvider interface {
	Configured() bool
	GetValidClient(ctx context.Context, userID int64) (*http.Client, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Locker serializes work across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// DeadLetterSink receives queue entries that exhausted their retries.
type DeadLetterSink interface {
	PushDeadLetter(ctx context.Context, entry *models.SyncQueueEntry) error
}

// Coordinator is the shared-state store behind drains and request throttling.
type Coordinator interface {
	Locker
	DeadLetterSink
	DeadLetters(ctx context.Context, limit int) ([]models.SyncQueueEntry, error)
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// TaskRepository is the task store behind the mutation path.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	UpdateTaskStatus(ctx context.Context, id int64, status string) error
	DeleteTask(ctx context.Context, id int64) error
	GetSyncMetadata(ctx context.Context, taskID int64) (*models.SyncMetadata, error)
	ListPlannableTasks(ctx context.Context, userID int64, end time.Time) ([]models.Task, error)
}
