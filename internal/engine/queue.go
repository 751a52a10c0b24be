package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dayplan/internal/database"
	"dayplan/internal/metrics"
	"dayplan/internal/models"
)

// RetryReport summarises one drain pass.
type RetryReport struct {
	Processed   int `json:"processed"`
	Succeeded   int `json:"succeeded"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`

	// FailedEntries are the entries that reached failed during this pass.
	FailedEntries []models.SyncQueueEntry `json:"failed_entries,omitempty"`
}

// RetryFailedOperations replays due pending entries once each.
func (e *Engine) RetryFailedOperations(ctx context.Context) (*RetryReport, error) {
	report := &RetryReport{}
	if !e.Enabled() {
		return report, nil
	}

	reset, err := e.store.ResetStaleSyncEntries(ctx, e.now().Add(-e.opts.StaleClaim))
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to reset stale sync entries")
	} else if reset > 0 {
		e.logger.Warn().Int64("count", reset).Msg("released stale sync entries")
	}

	entries, err := e.store.GetDueSyncEntries(ctx, e.now(), e.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		entry := &entries[i]
		report.Processed++

		switch e.processEntry(ctx, entry) {
		case models.QueueStatusCompleted:
			report.Succeeded++
		case models.QueueStatusPending:
			report.Rescheduled++
		case models.QueueStatusFailed:
			report.Failed++
			entry.Status = models.QueueStatusFailed
			report.FailedEntries = append(report.FailedEntries, *entry)
		}
	}

	if report.Processed > 0 {
		e.logger.Info().Int("processed", report.Processed).Int("succeeded", report.Succeeded).
			Int("rescheduled", report.Rescheduled).Int("failed", report.Failed).Msg("sync queue drained")
	}
	return report, ctx.Err()
}

// processEntry replays one entry and returns the status it ended in.
// Once claimed, the entry's bookkeeping runs even if ctx is cancelled.
func (e *Engine) processEntry(ctx context.Context, entry *models.SyncQueueEntry) string {
	if err := e.store.ClaimSyncEntry(ctx, entry.ID, e.now()); err != nil {
		e.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("failed to claim sync entry")
		return ""
	}
	metrics.IncQueue(models.QueueStatusProcessing)
	bookCtx := context.WithoutCancel(ctx)

	ref, err := decodeRef(entry.Payload)
	if err != nil {
		e.failEntry(bookCtx, entry, err)
		return models.QueueStatusFailed
	}
	if ref.UserID == 0 {
		ref.UserID = entry.UserID
	}
	if ref.TaskID == 0 {
		ref.TaskID = entry.EntityID
	}

	err = e.apply(ctx, entry.Operation, ref)
	if err == nil {
		e.logAttempt(bookCtx, entry.Operation, ref, nil, false)
		if uErr := e.store.UpdateSyncEntryStatus(bookCtx, entry.ID, models.QueueStatusCompleted, "", nil); uErr != nil {
			e.logger.Error().Err(uErr).Int64("entry_id", entry.ID).Msg("failed to mark sync entry completed")
		}
		metrics.IncQueue(models.QueueStatusCompleted)
		return models.QueueStatusCompleted
	}

	if ctx.Err() != nil {
		// The drain was stopped, the remote did not refuse: no attempt spent.
		if rErr := e.store.ReleaseSyncEntry(bookCtx, entry.ID); rErr != nil {
			e.logger.Error().Err(rErr).Int64("entry_id", entry.ID).Msg("failed to release sync entry")
		}
		metrics.IncQueue(models.QueueStatusPending)
		return models.QueueStatusPending
	}

	if Classify(err) != ClassRetryable {
		e.logAttempt(bookCtx, entry.Operation, ref, err, false)
		e.failEntry(bookCtx, entry, err)
		return models.QueueStatusFailed
	}
	return e.retryOrFail(bookCtx, entry, ref, err)
}

// retryOrFail reschedules a transient failure, or fails the entry once its
// budget is spent. The initial export is not counted against the budget.
func (e *Engine) retryOrFail(ctx context.Context, entry *models.SyncQueueEntry, ref TaskRef, cause error) string {
	attempts := entry.RetryCount + 1
	if e.opts.Retry.Exhausted(attempts) {
		e.logAttempt(ctx, entry.Operation, ref, cause, false)
		e.failEntry(ctx, entry, cause)
		return models.QueueStatusFailed
	}

	e.logAttempt(ctx, entry.Operation, ref, cause, true)
	next := e.now().Add(e.opts.Retry.NextDelay(attempts + 1))
	if err := e.store.UpdateSyncEntryStatus(ctx, entry.ID, models.QueueStatusPending, cause.Error(), &next); err != nil {
		e.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("failed to reschedule sync entry")
	}
	metrics.IncQueue(models.QueueStatusPending)
	return models.QueueStatusPending
}

func (e *Engine) failEntry(ctx context.Context, entry *models.SyncQueueEntry, cause error) {
	if err := e.store.UpdateSyncEntryStatus(ctx, entry.ID, models.QueueStatusFailed, cause.Error(), nil); err != nil {
		e.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("failed to mark sync entry failed")
	}
	metrics.IncQueue(models.QueueStatusFailed)
	entry.LastError = strPtr(cause.Error())

	if entry.Operation != models.OperationDelete && !errors.Is(cause, database.ErrNotFound) {
		e.markMetadata(ctx, entry.EntityID, models.SyncStatusFailed, cause)
	}
	e.logger.Warn().Err(cause).Int64("entry_id", entry.ID).Str("operation", entry.Operation).
		Int64("task_id", entry.EntityID).Msg("sync entry failed")
}

// RequeueFailed moves a failed entry back to pending with a fresh retry
// budget. Entries in any other status return database.ErrNotFound.
func (e *Engine) RequeueFailed(ctx context.Context, entryID int64) error {
	entry, err := e.store.GetSyncEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("load sync entry %d: %w", entryID, err)
	}
	if err := e.store.RequeueSyncEntry(ctx, entryID); err != nil {
		return fmt.Errorf("requeue sync entry %d: %w", entryID, err)
	}
	metrics.IncQueue(models.QueueStatusPending)

	if entry.Operation != models.OperationDelete {
		meta, err := e.loadMetadata(ctx, entry.EntityID)
		if err == nil && meta != nil && meta.SyncStatus == models.SyncStatusFailed {
			meta.SyncStatus = models.SyncStatusPending
			if err := e.store.UpsertSyncMetadata(ctx, meta); err != nil {
				e.logger.Error().Err(err).Int64("task_id", entry.EntityID).Msg("failed to reset sync metadata")
			}
		}
	}

	e.logger.Info().Int64("entry_id", entryID).Str("operation", entry.Operation).Msg("sync entry requeued")
	return nil
}

func encodeRef(ref TaskRef) (string, error) {
	raw, err := json.Marshal(ref)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(raw), nil
}

func decodeRef(payload string) (TaskRef, error) {
	var ref TaskRef
	if payload == "" {
		return ref, nil
	}
	if err := json.Unmarshal([]byte(payload), &ref); err != nil {
		return ref, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return ref, nil
}
