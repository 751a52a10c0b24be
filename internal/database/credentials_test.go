package database

import (
	"context"
	"testing"
	"time"

	"dayplan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	cred := &models.Credential{UserID: 1, Provider: models.ProviderGoogle, AccessToken: "enc-a",
		RefreshToken: "enc-r", ExpiresAt: expires, Scopes: `["calendar"]`}
	require.NoError(t, db.UpsertCredential(ctx, cred))
	firstID := cred.ID

	cred2 := &models.Credential{UserID: 1, Provider: models.ProviderGoogle, AccessToken: "enc-a2",
		RefreshToken: "enc-r", ExpiresAt: expires.Add(time.Hour)}
	require.NoError(t, db.UpsertCredential(ctx, cred2))
	assert.Equal(t, firstID, cred2.ID)

	got, err := db.GetCredential(ctx, 1, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "enc-a2", got.AccessToken)
	assert.Equal(t, "[]", got.Scopes)
	assert.True(t, expires.Add(time.Hour).Equal(got.ExpiresAt))

	require.NoError(t, db.UpsertCredential(ctx, &models.Credential{UserID: 2, Provider: models.ProviderGoogle,
		AccessToken: "x", RefreshToken: "y", ExpiresAt: expires}))
	users, err := db.ListCredentialUsers(ctx, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, users)

	require.NoError(t, db.DeleteCredential(ctx, 1, models.ProviderGoogle))
	_, err = db.GetCredential(ctx, 1, models.ProviderGoogle)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteCredential(ctx, 1, models.ProviderGoogle), ErrNotFound)
}

func TestRecordCompletionIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)
	minutes := 20
	c := &models.Completion{TaskID: 4, UserID: 1, Status: models.OutcomeCompleted, OccurredAt: at,
		ActualMinutes: &minutes, ExternalID: "evt-4"}

	inserted, err := db.RecordCompletion(ctx, c)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = db.RecordCompletion(ctx, &models.Completion{TaskID: 4, UserID: 1,
		Status: models.OutcomeCompleted, OccurredAt: at})
	require.NoError(t, err)
	assert.False(t, inserted)

	list, err := db.ListCompletions(ctx, 4)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 20, *list[0].ActualMinutes)
	assert.Equal(t, models.ProviderGoogle, list[0].Source)
}
