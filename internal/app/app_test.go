package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/models"
	"dayplan/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:      config.AppConfig{Name: "dayplan", Timezone: "UTC"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "dayplan.db")},
		Google:   config.GoogleConfig{CalendarID: "primary", RPS: 5, Burst: 5},
		Sync:     config.SyncConfig{DrainSchedule: "@every 1m"},
		Planning: config.PlanningConfig{WorkdayStartHour: 8, WorkdayEndHour: 18, DefaultDurationMinutes: 30},
	}
}

func TestNewWithoutGoogle(t *testing.T) {
	logger := zerolog.New(io.Discard)
	a, err := New(context.Background(), testConfig(t), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.Credentials)
	assert.False(t, a.Engine.Enabled())
	assert.IsType(t, &repository.MemoryRepository{}, a.Coordinator)

	// Local mutations work without sync.
	ctx := context.Background()
	task := &models.Task{UserID: 1, Title: "Call Mom", Priority: models.PriorityMustDo, EstimatedMinutes: 15}
	require.NoError(t, a.Tasks.CreateTask(ctx, task))
	assert.NotZero(t, task.ID)

	status, err := a.Engine.GetSyncStatus(ctx, 1)
	require.NoError(t, err)
	assert.False(t, status.Configured)
	assert.Zero(t, status.PendingOperations)

	result, err := a.Planner.PlanDay(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, task.ID, result.Blocks[0].TaskID)
}

func TestNewWithGoogleRequiresKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Google.ClientID = "id"
	cfg.Google.ClientSecret = "secret"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg.Security.TokenEncryptionKey = "0123456789abcdef0123456789abcdef"
	logger := zerolog.New(io.Discard)
	a, err := New(context.Background(), cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NotNil(t, a.Credentials)
	assert.True(t, a.Engine.Enabled())
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Address = mr.Addr()

	logger := zerolog.New(io.Discard)
	a, err := New(context.Background(), cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &repository.FailoverRepository{}, a.Coordinator)

	report, err := a.Drainer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestNewWithUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Address = "127.0.0.1:1"

	logger := zerolog.New(io.Discard)
	a, err := New(context.Background(), cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &repository.MemoryRepository{}, a.Coordinator)
}
