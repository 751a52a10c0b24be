package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"dayplan/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCoordinator struct {
	mock.Mock
}

func (m *mockCoordinator) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	args := m.Called(ctx, key, ttl)
	release, _ := args.Get(0).(func())
	return release, args.Bool(1), args.Error(2)
}

func (m *mockCoordinator) PushDeadLetter(ctx context.Context, entry *models.SyncQueueEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockCoordinator) DeadLetters(ctx context.Context, limit int) ([]models.SyncQueueEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]models.SyncQueueEntry)
	return entries, args.Error(1)
}

func (m *mockCoordinator) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRepository(t *testing.T) {
	primary := new(mockCoordinator)
	fallback := new(mockCoordinator)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "import:1", 5, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "import:1", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		entry := &models.SyncQueueEntry{ID: 7}
		primary.On("PushDeadLetter", ctx, entry).Return(errors.New("connection refused")).Once()
		fallback.On("PushDeadLetter", ctx, entry).Return(nil).Once()

		assert.NoError(t, repo.PushDeadLetter(ctx, entry))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("DeadLetters", ctx, 10).Return([]models.SyncQueueEntry{{ID: 7}}, nil).Once()

		entries, err := repo.DeadLetters(ctx, 10)
		assert.NoError(t, err)
		assert.Len(t, entries, 1)
		primary.AssertNotCalled(t, "DeadLetters", ctx, 10)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("Acquire", ctx, "drain", time.Minute).Return(func() {}, true, nil).Once()

		release, ok, err := repo.Acquire(ctx, "drain", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NotNil(t, release)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("Acquire", ctx, "drain", time.Minute).Return(nil, false, errors.New("still down")).Once()
		fallback.On("Acquire", ctx, "drain", time.Minute).Return(func() {}, true, nil).Once()

		_, ok, err := repo.Acquire(ctx, "drain", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, repo.isDown.Load())
		assert.WithinDuration(t, time.Now(), repo.lastCheck, time.Second)
	})
}
