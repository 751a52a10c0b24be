package database

import (
	"context"
	"testing"
	"time"

	"dayplan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := &models.SyncQueueEntry{
		UserID:     1,
		Operation:  models.OperationCreate,
		EntityType: models.EntityTask,
		EntityID:   100,
		Payload:    `{"task_id":100,"nested":{"k":[1,2]}}`,
	}

	require.NoError(t, db.CreateSyncEntry(ctx, entry))
	assert.Equal(t, models.QueueStatusPending, entry.Status)

	// No next_retry_at means due immediately.
	entries, err := db.GetDueSyncEntries(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100), entries[0].EntityID)
	assert.Equal(t, entry.Payload, entries[0].Payload)

	require.NoError(t, db.ClaimSyncEntry(ctx, entries[0].ID, time.Now()))
	entries, _ = db.GetDueSyncEntries(ctx, time.Now(), 10)
	assert.Len(t, entries, 0)
	assert.ErrorIs(t, db.ClaimSyncEntry(ctx, entry.ID, time.Now()), ErrNotFound, "already claimed")

	require.NoError(t, db.UpdateSyncEntryStatus(ctx, entry.ID, models.QueueStatusCompleted, "", nil))
	got, err := db.GetSyncEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.ClaimedAt)

	assert.Error(t, db.UpdateSyncEntryStatus(ctx, entry.ID, "bogus", "", nil))
	assert.ErrorIs(t, db.UpdateSyncEntryStatus(ctx, 999, models.QueueStatusCompleted, "", nil), ErrNotFound)
}

func TestSyncQueueRetrySchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	entry := &models.SyncQueueEntry{UserID: 1, Operation: models.OperationUpdate, EntityType: models.EntityTask,
		EntityID: 102, NextRetryAt: &future}
	require.NoError(t, db.CreateSyncEntry(ctx, entry))

	entries, _ := db.GetDueSyncEntries(ctx, time.Now(), 10)
	assert.Len(t, entries, 0, "entry with future retry should not be due")

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.UpdateSyncEntryStatus(ctx, entry.ID, models.QueueStatusPending, "temporary error", &past))

	entries, err := db.GetDueSyncEntries(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	require.NotNil(t, entries[0].LastError)
	assert.Equal(t, "temporary error", *entries[0].LastError)

	count, err := db.CountPendingSyncEntries(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncQueueFailAndRequeue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := &models.SyncQueueEntry{UserID: 3, Operation: models.OperationComplete, EntityType: models.EntityTask, EntityID: 5}
	require.NoError(t, db.CreateSyncEntry(ctx, entry))
	require.NoError(t, db.UpdateSyncEntryStatus(ctx, entry.ID, models.QueueStatusFailed, "503 backend error", nil))

	failed, err := db.GetFailedSyncEntries(ctx, 3)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "503 backend error", *failed[0].LastError)
	assert.Equal(t, 1, failed[0].RetryCount)

	all, err := db.GetFailedSyncEntries(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := db.GetFailedSyncEntries(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, none, 0)

	require.NoError(t, db.RequeueSyncEntry(ctx, entry.ID))
	got, err := db.GetSyncEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)

	// Only failed entries can be requeued.
	assert.ErrorIs(t, db.RequeueSyncEntry(ctx, entry.ID), ErrNotFound)
}

func TestSyncQueueReleaseAndStaleReset(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	newEntry := func(entityID int64) *models.SyncQueueEntry {
		e := &models.SyncQueueEntry{UserID: 1, Operation: models.OperationUpdate, EntityType: models.EntityTask, EntityID: entityID}
		require.NoError(t, db.CreateSyncEntry(ctx, e))
		return e
	}

	released := newEntry(1)
	require.NoError(t, db.ClaimSyncEntry(ctx, released.ID, base))
	got, err := db.GetSyncEntry(ctx, released.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClaimedAt)
	assert.True(t, base.Equal(*got.ClaimedAt))

	require.NoError(t, db.ReleaseSyncEntry(ctx, released.ID))
	got, err = db.GetSyncEntry(ctx, released.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.ClaimedAt)
	assert.ErrorIs(t, db.ReleaseSyncEntry(ctx, released.ID), ErrNotFound, "only processing entries are released")

	stale := newEntry(2)
	fresh := newEntry(3)
	require.NoError(t, db.ClaimSyncEntry(ctx, stale.ID, base))
	require.NoError(t, db.ClaimSyncEntry(ctx, fresh.ID, base.Add(9*time.Minute)))

	n, err := db.ResetStaleSyncEntries(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = db.GetSyncEntry(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, got.Status)

	got, err = db.GetSyncEntry(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusProcessing, got.Status)
}
