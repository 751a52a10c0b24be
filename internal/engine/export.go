package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/database"
	"dayplan/internal/metrics"
	"dayplan/internal/models"
	"dayplan/internal/planfmt"
)

func (e *Engine) ExportNewTask(ctx context.Context, taskID int64) error {
	return e.exportTask(ctx, models.OperationCreate, taskID)
}

func (e *Engine) ExportTaskModification(ctx context.Context, taskID int64) error {
	return e.exportTask(ctx, models.OperationUpdate, taskID)
}

func (e *Engine) ExportTaskCompletion(ctx context.Context, taskID int64) error {
	return e.exportTask(ctx, models.OperationComplete, taskID)
}

// ExportTaskDeletion removes the remote copy of a deleted task. ref must
// carry the external ids captured before the local row was removed.
func (e *Engine) ExportTaskDeletion(ctx context.Context, ref TaskRef) error {
	if !e.Enabled() {
		return nil
	}
	if ref.GoogleEventID == "" && ref.GoogleTaskID == "" {
		return nil
	}
	return e.export(ctx, models.OperationDelete, ref)
}

func (e *Engine) exportTask(ctx context.Context, op string, taskID int64) error {
	if !e.Enabled() {
		return nil
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %d: %w", taskID, err)
	}
	return e.export(ctx, op, TaskRef{TaskID: task.ID, UserID: task.UserID})
}

// export runs one operation with in-process retries and queues it if the
// last error is still transient.
func (e *Engine) export(ctx context.Context, op string, ref TaskRef) error {
	err := e.apply(ctx, op, ref)
	for i := 0; err != nil && Classify(err) == ClassRetryable && i < e.opts.ImmediateRetries; i++ {
		e.logAttempt(ctx, op, ref, err, false)
		if sErr := e.sleep(ctx, e.opts.ImmediateRetryDelay); sErr != nil {
			break
		}
		err = e.apply(ctx, op, ref)
	}

	if err == nil {
		e.logAttempt(ctx, op, ref, nil, false)
		return nil
	}

	class := Classify(err)
	queued := false
	if class == ClassRetryable {
		if qErr := e.enqueue(ctx, op, ref, err); qErr != nil {
			e.logger.Error().Err(qErr).Str("operation", op).Int64("task_id", ref.TaskID).Msg("failed to queue export")
		} else {
			queued = true
		}
	}
	e.logAttempt(ctx, op, ref, err, queued)

	if op != models.OperationDelete && !errors.Is(err, database.ErrNotFound) {
		status := models.SyncStatusFailed
		if queued {
			status = models.SyncStatusPending
		}
		e.markMetadata(ctx, ref.TaskID, status, err)
	}

	e.logger.Warn().Err(err).Str("operation", op).Int64("task_id", ref.TaskID).
		Str("class", string(class)).Bool("queued", queued).Msg("export failed")
	return fmt.Errorf("%s task %d: %w", op, ref.TaskID, err)
}

func (e *Engine) enqueue(ctx context.Context, op string, ref TaskRef, cause error) error {
	payload, err := encodeRef(ref)
	if err != nil {
		return err
	}
	next := e.now().Add(e.opts.Retry.NextDelay(1))
	entry := &models.SyncQueueEntry{
		UserID:      ref.UserID,
		Operation:   op,
		EntityType:  models.EntityTask,
		EntityID:    ref.TaskID,
		Payload:     payload,
		Status:      models.QueueStatusPending,
		LastError:   strPtr(cause.Error()),
		NextRetryAt: &next,
	}
	if err := e.store.CreateSyncEntry(ctx, entry); err != nil {
		return err
	}
	metrics.IncQueue(models.QueueStatusPending)
	return nil
}

// markMetadata records a failed attempt on an existing link. Tasks that
// were never exported get a bare link so the failure is visible.
func (e *Engine) markMetadata(ctx context.Context, taskID int64, status string, cause error) {
	meta, err := e.loadMetadata(ctx, taskID)
	if err != nil {
		e.logger.Error().Err(err).Int64("task_id", taskID).Msg("failed to load sync metadata")
		return
	}
	if meta == nil {
		meta = &models.SyncMetadata{TaskID: taskID}
	}
	meta.SyncStatus = status
	meta.LastError = strPtr(cause.Error())
	meta.RetryCount++
	if err := e.store.UpsertSyncMetadata(ctx, meta); err != nil {
		e.logger.Error().Err(err).Int64("task_id", taskID).Msg("failed to update sync metadata")
	}
}

// apply performs a single attempt of op against the remote services.
func (e *Engine) apply(ctx context.Context, op string, ref TaskRef) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ExportTimeout)
	defer cancel()

	if op == models.OperationDelete {
		return e.applyDelete(ctx, ref)
	}

	task, err := e.store.GetTask(ctx, ref.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	meta, err := e.loadMetadata(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("load sync metadata: %w", err)
	}

	rem, err := e.remote(ctx, task.UserID)
	if err != nil {
		return err
	}

	if meta == nil {
		meta = &models.SyncMetadata{TaskID: task.ID, SyncStatus: models.SyncStatusPending}
	}
	linked := meta.GoogleEventID != nil || meta.GoogleTaskID != nil
	if CalendarBacked(task, meta, e.opts.Location) {
		err = e.exportEvent(ctx, rem, op, task, meta)
	} else {
		err = e.exportListItem(ctx, rem, op, task, meta)
	}
	if err != nil {
		// Keep a freshly created remote id so a replay updates instead of
		// creating a duplicate.
		if !linked && (meta.GoogleEventID != nil || meta.GoogleTaskID != nil) {
			if sErr := e.store.UpsertSyncMetadata(context.WithoutCancel(ctx), meta); sErr != nil {
				e.logger.Error().Err(sErr).Int64("task_id", task.ID).Msg("failed to save remote id")
			}
		}
		return err
	}

	now := e.now().UTC()
	meta.SyncStatus = models.SyncStatusSynced
	meta.LastSyncAt = &now
	meta.LastError = nil
	meta.RetryCount = 0
	// The remote write already happened; record it even if ctx just ended.
	if err := e.store.UpsertSyncMetadata(context.WithoutCancel(ctx), meta); err != nil {
		return fmt.Errorf("save sync metadata: %w", err)
	}
	return nil
}

// CalendarBacked decides whether a task is exported as an event. An
// existing link wins; otherwise fixed tasks and tasks with a time of day
// and an estimate become events, the rest become list items.
func CalendarBacked(task *models.Task, meta *models.SyncMetadata, loc *time.Location) bool {
	if meta != nil {
		if meta.GoogleEventID != nil {
			return true
		}
		if meta.GoogleTaskID != nil {
			return false
		}
		if meta.IsFixed {
			return true
		}
	}
	if task.DueAt == nil || task.EstimatedMinutes <= 0 {
		return false
	}
	local := task.DueAt.In(loc)
	return local.Hour() != 0 || local.Minute() != 0 || local.Second() != 0
}

func (e *Engine) exportEvent(ctx context.Context, rem *remoteAPIs, op string, task *models.Task, meta *models.SyncMetadata) error {
	if task.DueAt == nil {
		return ErrNoTimeSlot
	}
	dom := e.loadDomain(ctx, task)

	ev := models.ExternalEvent{
		ID:          deref(meta.GoogleEventID),
		Summary:     planfmt.EncodeTaskTitle(task),
		Description: describe(task, dom, op),
		Start:       *task.DueAt,
		End:         task.DueAt.Add(task.Duration()),
	}

	if ev.ID == "" {
		id, err := rem.calendar.CreateEvent(ctx, e.opts.CalendarID, ev)
		if err != nil {
			return err
		}
		meta.GoogleEventID = &id
		return nil
	}
	return rem.calendar.UpdateEvent(ctx, e.opts.CalendarID, ev)
}

func (e *Engine) exportListItem(ctx context.Context, rem *remoteAPIs, op string, task *models.Task, meta *models.SyncMetadata) error {
	dom := e.loadDomain(ctx, task)

	item := models.ExternalTask{
		ID:     deref(meta.GoogleTaskID),
		ListID: listID(deref(meta.GoogleTaskListID)),
		Title:  planfmt.EncodeTaskTitle(task),
		Notes:  describe(task, dom, op),
		Due:    task.DueAt,
	}

	if item.ID == "" {
		created, err := rem.tasks.CreateTask(ctx, item.ListID, item)
		if err != nil {
			return err
		}
		meta.GoogleTaskID = &created.ID
		meta.GoogleTaskListID = &created.ListID
		item.ID = created.ID
	} else if err := rem.tasks.UpdateTask(ctx, item); err != nil {
		return err
	}

	if op == models.OperationComplete || closed(task) {
		return rem.tasks.CompleteTask(ctx, item.ListID, item.ID, task.UpdatedAt)
	}
	return nil
}

func (e *Engine) applyDelete(ctx context.Context, ref TaskRef) error {
	rem, err := e.remote(ctx, ref.UserID)
	if err != nil {
		return err
	}
	if ref.GoogleEventID != "" {
		if err := rem.calendar.DeleteEvent(ctx, e.opts.CalendarID, ref.GoogleEventID); err != nil && !isGone(err) {
			return err
		}
	}
	if ref.GoogleTaskID != "" {
		if err := rem.tasks.DeleteTask(ctx, listID(ref.GoogleTaskListID), ref.GoogleTaskID); err != nil && !isGone(err) {
			return err
		}
	}
	return nil
}

// describe renders the pending description, or the outcome one once the
// task is closed.
func describe(task *models.Task, dom *models.Domain, op string) string {
	if op != models.OperationComplete && !closed(task) {
		return planfmt.EncodeTaskDescription(task, dom)
	}
	status := models.OutcomeCompleted
	if task.Status == models.TaskStatusDropped {
		status = models.OutcomeSkipped
	}
	return planfmt.EncodeOutcomeDescription(task, dom, planfmt.Outcome{Status: status, At: task.UpdatedAt})
}

func closed(task *models.Task) bool {
	return task.Status == models.TaskStatusDone || task.Status == models.TaskStatusDropped
}
