// Package engine reconciles local tasks with Google Calendar and Google
// Tasks. Local state always wins: exports never read the remote copy first.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dayplan/internal/database"
	"dayplan/internal/domain"
	"dayplan/internal/google"
	"dayplan/internal/metrics"
	"dayplan/internal/models"

	"github.com/rs/zerolog"
)

// Store is the persistence the engine needs.
type Store interface {
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status string) error
	GetDomain(ctx context.Context, id int64) (*models.Domain, error)

	GetSyncMetadata(ctx context.Context, taskID int64) (*models.SyncMetadata, error)
	GetSyncMetadataByEventID(ctx context.Context, userID int64, eventID string) (*models.SyncMetadata, error)
	GetSyncMetadataByGoogleTaskID(ctx context.Context, userID int64, googleTaskID string) (*models.SyncMetadata, error)
	UpsertSyncMetadata(ctx context.Context, meta *models.SyncMetadata) error
	CreateTaskWithMetadata(ctx context.Context, task *models.Task, meta *models.SyncMetadata) error
	UpdateTaskWithMetadata(ctx context.Context, task *models.Task, meta *models.SyncMetadata) error

	CreateSyncEntry(ctx context.Context, entry *models.SyncQueueEntry) error
	GetSyncEntry(ctx context.Context, id int64) (*models.SyncQueueEntry, error)
	GetDueSyncEntries(ctx context.Context, now time.Time, limit int) ([]models.SyncQueueEntry, error)
	ClaimSyncEntry(ctx context.Context, id int64, at time.Time) error
	ReleaseSyncEntry(ctx context.Context, id int64) error
	ResetStaleSyncEntries(ctx context.Context, olderThan time.Time) (int64, error)
	UpdateSyncEntryStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	RequeueSyncEntry(ctx context.Context, id int64) error
	GetFailedSyncEntries(ctx context.Context, userID int64) ([]models.SyncQueueEntry, error)
	CountPendingSyncEntries(ctx context.Context, userID int64) (int, error)

	AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error
	LastSuccessfulSync(ctx context.Context, userID int64) (*time.Time, error)
	RecordCompletion(ctx context.Context, c *models.Completion) (bool, error)
}

// Options tunes the engine. Zero values fall back to defaults in New.
type Options struct {
	CalendarID          string
	Location            *time.Location
	Retry               RetryPolicy
	ImmediateRetries    int
	ImmediateRetryDelay time.Duration
	BatchSize           int
	DefaultDomainID     int64
	ExportTimeout       time.Duration
	// StaleClaim is how long an entry may sit in processing before a drain
	// takes it back.
	StaleClaim time.Duration
}

// TaskRef identifies the task an export acts on. It is also the queue
// payload. The external ids are only needed for deletions, where the local
// row is gone by the time the export runs.
type TaskRef struct {
	TaskID           int64  `json:"task_id"`
	UserID           int64  `json:"user_id"`
	GoogleEventID    string `json:"google_event_id,omitempty"`
	GoogleTaskID     string `json:"google_task_id,omitempty"`
	GoogleTaskListID string `json:"google_task_list_id,omitempty"`
}

var errBadPayload = errors.New("malformed queue payload")

type Engine struct {
	store     Store
	clients   domain.ClientProvider
	connector domain.Connector
	opts      Options
	logger    zerolog.Logger
	reader    CompletionReader

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	inflight sync.WaitGroup
}

func New(store Store, clients domain.ClientProvider, connector domain.Connector, opts Options, logger *zerolog.Logger) *Engine {
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = models.DefaultQueueBatchSize
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = 30 * time.Second
	}
	if opts.StaleClaim <= 0 {
		opts.StaleClaim = 10 * time.Minute
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry.MaxRetries = 5
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sync_engine").Logger()
	}

	return &Engine{
		store:     store,
		clients:   clients,
		connector: connector,
		opts:      opts,
		logger:    l,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Enabled is false when no OAuth client is configured. Every sync entry
// point is then a silent no-op.
func (e *Engine) Enabled() bool {
	return e.clients != nil && e.clients.Configured() && e.connector != nil
}

type remoteAPIs struct {
	calendar domain.CalendarAPI
	tasks    domain.TaskListAPI
}

func (e *Engine) remote(ctx context.Context, userID int64) (*remoteAPIs, error) {
	client, err := e.clients.GetValidClient(ctx, userID)
	if err != nil {
		return nil, err
	}
	cal, err := e.connector.Calendar(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("build calendar client: %w", err)
	}
	tl, err := e.connector.Tasks(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("build tasks client: %w", err)
	}
	return &remoteAPIs{calendar: cal, tasks: tl}, nil
}

func (e *Engine) today() time.Time {
	return e.now().In(e.opts.Location)
}

// logAttempt writes the sync-log row for one export attempt.
func (e *Engine) logAttempt(ctx context.Context, op string, ref TaskRef, cause error, queued bool) {
	status := models.LogStatusSuccess
	details := map[string]interface{}{}
	outcome := "success"
	if cause != nil {
		class := Classify(cause)
		status = models.LogStatusFailure
		outcome = string(class)
		details["error"] = cause.Error()
		details["class"] = class
		details["queued"] = queued
	}
	metrics.IncSync(op, outcome)
	e.appendLog(ctx, ref.UserID, op, ref.TaskID, status, details)
}

func (e *Engine) appendLog(ctx context.Context, userID int64, op string, entityID int64, status string, details interface{}) {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	entry := &models.SyncLogEntry{
		UserID:     userID,
		Operation:  op,
		EntityType: models.EntityTask,
		EntityID:   entityID,
		Status:     status,
		Details:    string(raw),
	}
	if err := e.store.AppendSyncLog(ctx, entry); err != nil {
		e.logger.Error().Err(err).Str("operation", op).Int64("task_id", entityID).Msg("failed to write sync log")
	}
}

func (e *Engine) loadMetadata(ctx context.Context, taskID int64) (*models.SyncMetadata, error) {
	meta, err := e.store.GetSyncMetadata(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return meta, err
}

func (e *Engine) loadDomain(ctx context.Context, task *models.Task) *models.Domain {
	if task.DomainID == nil {
		return nil
	}
	d, err := e.store.GetDomain(ctx, *task.DomainID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			e.logger.Warn().Err(err).Int64("domain_id", *task.DomainID).Msg("failed to load domain")
		}
		return nil
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// listID falls back to the account's default list.
func listID(id string) string {
	if id == "" {
		return google.DefaultTaskList
	}
	return id
}
