package engine

import (
	"context"
	"errors"
	"time"

	"dayplan/internal/credentials"
	"dayplan/internal/models"
)

// Status is the user-facing sync health summary.
type Status struct {
	Configured         bool                    `json:"configured"`
	Connected          bool                    `json:"connected"`
	ReauthRequired     bool                    `json:"reauth_required"`
	LastSuccessfulSync *time.Time              `json:"last_successful_sync,omitempty"`
	PendingOperations  int                     `json:"pending_operations"`
	FailedOperations   []models.SyncQueueEntry `json:"failed_operations"`
}

func (e *Engine) GetSyncStatus(ctx context.Context, userID int64) (*Status, error) {
	status := &Status{Configured: e.Enabled(), FailedOperations: []models.SyncQueueEntry{}}

	if status.Configured {
		_, err := e.clients.GetValidClient(ctx, userID)
		switch {
		case err == nil:
			status.Connected = true
		case errors.Is(err, credentials.ErrReauthRequired):
			status.ReauthRequired = true
		case errors.Is(err, credentials.ErrNotFound):
		default:
			e.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to check credentials")
		}
	}

	last, err := e.store.LastSuccessfulSync(ctx, userID)
	if err != nil {
		return nil, err
	}
	status.LastSuccessfulSync = last

	if status.PendingOperations, err = e.store.CountPendingSyncEntries(ctx, userID); err != nil {
		return nil, err
	}

	failed, err := e.store.GetFailedSyncEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		status.FailedOperations = failed
	}
	return status, nil
}
