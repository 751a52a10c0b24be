package repository

import (
	"context"
	"testing"
	"time"

	"dayplan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	t.Run("Lock", func(t *testing.T) {
		release, ok, err := repo.Acquire(ctx, "drain", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, _ = repo.Acquire(ctx, "drain", time.Minute)
		assert.False(t, ok)

		release()
		_, ok, _ = repo.Acquire(ctx, "drain", time.Minute)
		assert.True(t, ok)
	})

	t.Run("ExpiredLock", func(t *testing.T) {
		stale, ok, _ := repo.Acquire(ctx, "exp", time.Second)
		require.True(t, ok)

		now = now.Add(2 * time.Second)
		_, ok, _ = repo.Acquire(ctx, "exp", time.Minute)
		require.True(t, ok)

		stale()
		_, ok, _ = repo.Acquire(ctx, "exp", time.Minute)
		assert.False(t, ok, "stale release must not free the new holder")
	})

	t.Run("DeadLetters", func(t *testing.T) {
		require.NoError(t, repo.PushDeadLetter(ctx, &models.SyncQueueEntry{ID: 1}))
		require.NoError(t, repo.PushDeadLetter(ctx, &models.SyncQueueEntry{ID: 2}))

		entries, err := repo.DeadLetters(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(2), entries[0].ID)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "import:1"
		allowed, _ := repo.CheckRateLimit(ctx, key, 1, time.Minute)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, key, 1, time.Minute)
		assert.False(t, allowed)

		now = now.Add(2 * time.Minute)
		allowed, _ = repo.CheckRateLimit(ctx, key, 1, time.Minute)
		assert.True(t, allowed)
	})
}
