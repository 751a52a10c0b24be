package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dayplan/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(filepath.Join(t.TempDir(), "dayplan.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestNewDBInMemory(t *testing.T) {
	db, err := NewDB(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.PingContext(context.Background()))
}

func TestNewDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dayplan.db")

	db1, err := NewDB(path, nil)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := NewDB(path, nil)
	require.NoError(t, err)
	defer db2.Close()
}

func TestTaskCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	task := &models.Task{
		UserID:           1,
		Title:            "Write report",
		Description:      strPtr("quarterly numbers"),
		Priority:         models.PriorityMustDo,
		EstimatedMinutes: 45,
		DueAt:            &due,
	}
	require.NoError(t, db.CreateTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.TaskStatusTodo, task.Status)
	assert.Equal(t, models.EnergyMedium, task.EnergyLevel)

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write report", got.Title)
	assert.Equal(t, "quarterly numbers", *got.Description)
	require.NotNil(t, got.DueAt)
	assert.True(t, due.Equal(*got.DueAt))

	got.Title = "Write annual report"
	got.DueAt = nil
	require.NoError(t, db.UpdateTask(ctx, got))

	got, err = db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write annual report", got.Title)
	assert.Nil(t, got.DueAt)

	require.NoError(t, db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusDone))
	got, _ = db.GetTask(ctx, task.ID)
	assert.Equal(t, models.TaskStatusDone, got.Status)

	require.NoError(t, db.DeleteTask(ctx, task.ID))
	_, err = db.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, db.DeleteTask(ctx, task.ID), ErrNotFound)
	assert.ErrorIs(t, db.UpdateTaskStatus(ctx, 999, models.TaskStatusDone), ErrNotFound)
}

func TestListPlannableTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	dayStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	today := dayStart.Add(9 * time.Hour)
	tomorrow := dayEnd.Add(9 * time.Hour)

	require.NoError(t, db.CreateTask(ctx, &models.Task{UserID: 1, Title: "today", DueAt: &today}))
	require.NoError(t, db.CreateTask(ctx, &models.Task{UserID: 1, Title: "undated"}))
	require.NoError(t, db.CreateTask(ctx, &models.Task{UserID: 1, Title: "tomorrow", DueAt: &tomorrow}))
	require.NoError(t, db.CreateTask(ctx, &models.Task{UserID: 1, Title: "done", Status: models.TaskStatusDone}))
	require.NoError(t, db.CreateTask(ctx, &models.Task{UserID: 2, Title: "other user"}))

	tasks, err := db.ListPlannableTasks(ctx, 1, dayEnd)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "today", tasks[0].Title)
	assert.Equal(t, "undated", tasks[1].Title)

	due, err := db.ListTasksDueBetween(ctx, 1, dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "today", due[0].Title)
}

func TestDomains(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	domain := &models.Domain{UserID: 1, Name: "Family", Category: models.CategoryMustDo}
	require.NoError(t, db.CreateDomain(ctx, domain))

	got, err := db.GetDomain(ctx, domain.ID)
	require.NoError(t, err)
	assert.Equal(t, "Family", got.Name)
	assert.Equal(t, models.CategoryMustDo, got.Category)

	require.NoError(t, db.CreateDomain(ctx, &models.Domain{UserID: 1, Name: "Body"}))
	list, err := db.ListDomains(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Body", list[0].Name)
	assert.Equal(t, models.CategoryWantTo, list[0].Category)

	_, err = db.GetDomain(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTaskWithMetadataIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.Task{UserID: 1, Title: "Standup"}
	meta := &models.SyncMetadata{GoogleEventID: strPtr("evt-1"), IsFixed: true, SyncStatus: models.SyncStatusSynced}
	require.NoError(t, db.CreateTaskWithMetadata(ctx, task, meta))
	assert.Equal(t, task.ID, meta.TaskID)

	// Same event id again violates the unique index and must not leave an orphan task.
	dup := &models.Task{UserID: 1, Title: "Standup copy"}
	err := db.CreateTaskWithMetadata(ctx, dup, &models.SyncMetadata{GoogleEventID: strPtr("evt-1")})
	require.Error(t, err)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM tasks`))
	assert.Equal(t, 1, count)

	task.Title = "Daily standup"
	meta.SyncStatus = models.SyncStatusSynced
	require.NoError(t, db.UpdateTaskWithMetadata(ctx, task, meta))

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Daily standup", got.Title)
}
