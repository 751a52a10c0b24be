package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dayplan/internal/database"
	"dayplan/internal/metrics"
	"dayplan/internal/models"
	"dayplan/internal/planfmt"
	"dayplan/internal/scheduler"
)

const untitled = "(untitled)"

// ItemError is a per-item import failure; the rest of the batch continues.
type ItemError struct {
	Kind       string `json:"kind"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error"`
}

type ImportResult struct {
	EventsCreated       int                  `json:"events_created"`
	EventsUpdated       int                  `json:"events_updated"`
	TasksCreated        int                  `json:"tasks_created"`
	TasksUpdated        int                  `json:"tasks_updated"`
	Skipped             int                  `json:"skipped"`
	CompletionsRecorded int                  `json:"completions_recorded"`
	Conflicts           []scheduler.Conflict `json:"conflicts,omitempty"`
	Errors              []ItemError          `json:"errors,omitempty"`
}

func (r *ImportResult) addError(kind, externalID string, err error) {
	r.Errors = append(r.Errors, ItemError{Kind: kind, ExternalID: externalID, Error: err.Error()})
}

type importOutcome int

const (
	outcomeCreated importOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

// ImportFromGoogle pulls today's events and open list items into the local
// store. Items already linked are updated in place, the rest are created.
// Links with unsynced local changes are left alone.
func (e *Engine) ImportFromGoogle(ctx context.Context, userID int64) (*ImportResult, error) {
	result := &ImportResult{}
	if !e.Enabled() {
		return result, nil
	}

	rem, err := e.remote(ctx, userID)
	if err != nil {
		e.logImportFailure(ctx, userID, err)
		return nil, err
	}

	day := e.today()
	events, err := rem.calendar.ListDay(ctx, e.opts.CalendarID, day)
	if err != nil {
		e.logImportFailure(ctx, userID, err)
		return nil, fmt.Errorf("list events: %w", err)
	}

	var blocks []scheduler.Block
	for _, ev := range events {
		taskID, outcome, err := e.importEvent(ctx, userID, ev)
		if err != nil {
			e.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to import event")
			result.addError("event", ev.ID, err)
			continue
		}
		switch outcome {
		case outcomeCreated:
			result.EventsCreated++
		case outcomeUpdated:
			result.EventsUpdated++
		default:
			result.Skipped++
		}
		blocks = append(blocks, scheduler.Block{TaskID: taskID, Start: ev.Start, End: ev.End, Fixed: true})
	}

	result.Conflicts = scheduler.DetectConflicts(blocks)
	for _, c := range result.Conflicts {
		e.appendLog(ctx, userID, models.OperationConflict, c.TaskIDs[0], models.LogStatusSuccess, c)
	}

	items, err := rem.tasks.ListToday(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to list task items")
		result.addError("task_list", "", err)
	}
	for _, item := range items {
		outcome, err := e.importListItem(ctx, userID, item)
		if err != nil {
			e.logger.Warn().Err(err).Str("google_task_id", item.ID).Msg("failed to import task item")
			result.addError("task", item.ID, err)
			continue
		}
		switch outcome {
		case outcomeCreated:
			result.TasksCreated++
		case outcomeUpdated:
			result.TasksUpdated++
		default:
			result.Skipped++
		}
	}

	for _, rec := range e.reader.FromEvents(events) {
		if err := e.importCompletion(ctx, userID, rec, result); err != nil {
			result.addError("completion", rec.EventID, err)
		}
	}

	metrics.AddImported("event", result.EventsCreated+result.EventsUpdated)
	metrics.AddImported("task", result.TasksCreated+result.TasksUpdated)
	metrics.AddImported("completion", result.CompletionsRecorded)

	e.appendLog(ctx, userID, models.OperationImport, 0, models.LogStatusSuccess, map[string]interface{}{
		"events_created":       result.EventsCreated,
		"events_updated":       result.EventsUpdated,
		"tasks_created":        result.TasksCreated,
		"tasks_updated":        result.TasksUpdated,
		"skipped":              result.Skipped,
		"completions_recorded": result.CompletionsRecorded,
		"conflicts":            len(result.Conflicts),
		"errors":               len(result.Errors),
	})
	e.logger.Info().Int64("user_id", userID).Int("events", len(events)).Int("items", len(items)).
		Int("errors", len(result.Errors)).Msg("import finished")
	return result, nil
}

func (e *Engine) logImportFailure(ctx context.Context, userID int64, err error) {
	metrics.IncSync(models.OperationImport, string(Classify(err)))
	e.appendLog(ctx, userID, models.OperationImport, 0, models.LogStatusFailure, map[string]interface{}{
		"error": err.Error(),
		"class": Classify(err),
	})
}

func (e *Engine) importEvent(ctx context.Context, userID int64, ev models.ExternalEvent) (int64, importOutcome, error) {
	meta, err := e.store.GetSyncMetadataByEventID(ctx, userID, ev.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return 0, 0, err
	}

	priority, title, _ := decodeTitle(ev.Summary)
	minutes := int(ev.End.Sub(ev.Start).Minutes())
	if minutes <= 0 {
		minutes = models.DefaultEstimatedMinutes
	}
	start := ev.Start.UTC()
	now := e.now().UTC()

	if meta != nil {
		if meta.SyncStatus != models.SyncStatusSynced {
			return meta.TaskID, outcomeSkipped, nil
		}
		task, err := e.store.GetTask(ctx, meta.TaskID)
		if err != nil {
			return 0, 0, err
		}
		task.Title = title
		task.Priority = priority
		task.EstimatedMinutes = minutes
		task.DueAt = &start
		meta.IsFixed = true
		meta.LastSyncAt = &now
		meta.LastError = nil
		if err := e.store.UpdateTaskWithMetadata(ctx, task, meta); err != nil {
			return 0, 0, err
		}
		return task.ID, outcomeUpdated, nil
	}

	task := e.newImportedTask(userID, title, priority, minutes, &start, ev.Description)
	id := ev.ID
	link := &models.SyncMetadata{
		GoogleEventID: &id,
		IsFixed:       true,
		SyncStatus:    models.SyncStatusSynced,
		LastSyncAt:    &now,
	}
	if err := e.store.CreateTaskWithMetadata(ctx, task, link); err != nil {
		return 0, 0, err
	}
	return task.ID, outcomeCreated, nil
}

func (e *Engine) importListItem(ctx context.Context, userID int64, item models.ExternalTask) (importOutcome, error) {
	meta, err := e.store.GetSyncMetadataByGoogleTaskID(ctx, userID, item.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return 0, err
	}

	priority, title, minutes := decodeTitle(item.Title)
	if minutes <= 0 {
		minutes = models.DefaultEstimatedMinutes
	}
	due := e.listDue(item.Due)
	now := e.now().UTC()

	if meta != nil {
		if meta.SyncStatus != models.SyncStatusSynced {
			return outcomeSkipped, nil
		}
		task, err := e.store.GetTask(ctx, meta.TaskID)
		if err != nil {
			return 0, err
		}
		task.Title = title
		task.Priority = priority
		task.EstimatedMinutes = minutes
		task.DueAt = due
		meta.LastSyncAt = &now
		meta.LastError = nil
		if err := e.store.UpdateTaskWithMetadata(ctx, task, meta); err != nil {
			return 0, err
		}
		return outcomeUpdated, nil
	}

	task := e.newImportedTask(userID, title, priority, minutes, due, item.Notes)
	id, list := item.ID, listID(item.ListID)
	link := &models.SyncMetadata{
		GoogleTaskID:     &id,
		GoogleTaskListID: &list,
		SyncStatus:       models.SyncStatusSynced,
		LastSyncAt:       &now,
	}
	if err := e.store.CreateTaskWithMetadata(ctx, task, link); err != nil {
		return 0, err
	}
	return outcomeCreated, nil
}

func (e *Engine) importCompletion(ctx context.Context, userID int64, rec CompletionRecord, result *ImportResult) error {
	task, err := e.store.GetTask(ctx, rec.TaskID)
	if errors.Is(err, database.ErrNotFound) {
		e.logger.Debug().Int64("task_id", rec.TaskID).Msg("completion for unknown task skipped")
		return nil
	}
	if err != nil {
		return err
	}
	if task.UserID != userID {
		return nil
	}

	inserted, err := e.store.RecordCompletion(ctx, &models.Completion{
		TaskID:        task.ID,
		UserID:        userID,
		Status:        rec.Status,
		OccurredAt:    rec.At,
		ActualMinutes: rec.ActualMinutes,
		Source:        models.ProviderGoogle,
		ExternalID:    rec.EventID,
	})
	if err != nil || !inserted {
		return err
	}
	result.CompletionsRecorded++

	if !closed(task) {
		status := models.TaskStatusDone
		if rec.Status == models.OutcomeSkipped {
			status = models.TaskStatusDropped
		}
		if err := e.store.UpdateTaskStatus(ctx, task.ID, status); err != nil {
			return fmt.Errorf("close task %d: %w", task.ID, err)
		}
	}
	return nil
}

func (e *Engine) newImportedTask(userID int64, title, priority string, minutes int, due *time.Time, body string) *models.Task {
	task := &models.Task{
		UserID:           userID,
		Title:            title,
		Priority:         priority,
		EstimatedMinutes: minutes,
		DueAt:            due,
		Status:           models.TaskStatusTodo,
		EnergyLevel:      models.EnergyMedium,
	}
	if body = strings.TrimSpace(body); body != "" {
		task.Description = &body
	}
	if e.opts.DefaultDomainID > 0 {
		id := e.opts.DefaultDomainID
		task.DomainID = &id
	}
	return task
}

// listDue pins a date-only due value to local midnight.
func (e *Engine) listDue(due *time.Time) *time.Time {
	if due == nil {
		return nil
	}
	d := due.UTC()
	local := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, e.opts.Location)
	return &local
}

// decodeTitle strips exporter markers; foreign titles keep their text.
func decodeTitle(raw string) (priority, title string, minutes int) {
	priority, title, minutes, ok := planfmt.DecodeTaskTitle(raw)
	if !ok {
		priority = models.PriorityShouldDo
		title = strings.TrimSpace(raw)
		minutes = 0
	}
	if title == "" {
		title = untitled
	}
	return priority, title, minutes
}
