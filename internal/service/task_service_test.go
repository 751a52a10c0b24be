package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/database"
	"dayplan/internal/events"
	"dayplan/internal/models"
	"dayplan/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTaskRepo struct {
	mock.Mock
}

func (m *mockTaskRepo) CreateTask(ctx context.Context, task *models.Task) error {
	return m.Called(ctx, task).Error(0)
}
func (m *mockTaskRepo) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}
func (m *mockTaskRepo) UpdateTask(ctx context.Context, task *models.Task) error {
	return m.Called(ctx, task).Error(0)
}
func (m *mockTaskRepo) UpdateTaskStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *mockTaskRepo) DeleteTask(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockTaskRepo) GetSyncMetadata(ctx context.Context, taskID int64) (*models.SyncMetadata, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncMetadata), args.Error(1)
}
func (m *mockTaskRepo) ListPlannableTasks(ctx context.Context, userID int64, end time.Time) ([]models.Task, error) {
	args := m.Called(ctx, userID, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Task), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

func payloadFor(taskID int64) interface{} {
	return mock.MatchedBy(func(p events.TaskEventPayload) bool { return p.TaskID == taskID })
}

func strp(s string) *string { return &s }

func TestTaskService_CreateTask(t *testing.T) {
	repo := new(mockTaskRepo)
	bus := new(mockPublisher)
	s := NewTaskService(repo, bus, time.UTC, nil)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		task := &models.Task{UserID: 1, Title: "  Call Mom ", EstimatedMinutes: 15}
		repo.On("CreateTask", ctx, task).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Task).ID = 10
		}).Return(nil).Once()
		bus.On("PublishJSON", events.EventTaskCreated, payloadFor(10)).Return(nil).Once()

		require.NoError(t, s.CreateTask(ctx, task))
		assert.Equal(t, "Call Mom", task.Title)
		assert.Equal(t, models.PriorityShouldDo, task.Priority)
		assert.Equal(t, models.TaskStatusTodo, task.Status)
		assert.Equal(t, models.EnergyMedium, task.EnergyLevel)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("Invalid", func(t *testing.T) {
		repo := new(mockTaskRepo)
		s := NewTaskService(repo, bus, time.UTC, nil)
		cases := []*models.Task{
			{UserID: 1},
			{Title: "no user"},
			{UserID: 1, Title: "x", Priority: "urgent"},
			{UserID: 1, Title: "x", EnergyLevel: "sleepy"},
			{UserID: 1, Title: "x", RecurrenceRule: strp("FREQ=SOMETIMES")},
		}
		for _, task := range cases {
			assert.ErrorIs(t, s.CreateTask(ctx, task), ErrInvalidTask)
		}
		repo.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
	})

	t.Run("PublishErrorIsSwallowed", func(t *testing.T) {
		task := &models.Task{ID: 11, UserID: 1, Title: "Water plants"}
		repo.On("UpdateTask", ctx, task).Return(nil).Once()
		bus.On("PublishJSON", events.EventTaskUpdated, payloadFor(11)).Return(errors.New("bus down")).Once()

		assert.NoError(t, s.UpdateTask(ctx, task))
	})
}

func TestTaskService_StoreFailureSkipsEvent(t *testing.T) {
	repo := new(mockTaskRepo)
	bus := new(mockPublisher)
	s := NewTaskService(repo, bus, time.UTC, nil)
	ctx := context.Background()

	task := &models.Task{ID: 3, UserID: 1, Title: "X"}
	repo.On("UpdateTask", ctx, task).Return(database.ErrNotFound).Once()

	assert.ErrorIs(t, s.UpdateTask(ctx, task), database.ErrNotFound)
	bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestTaskService_CompleteTask(t *testing.T) {
	ctx := context.Background()
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday

	t.Run("OneOff", func(t *testing.T) {
		repo := new(mockTaskRepo)
		bus := new(mockPublisher)
		s := NewTaskService(repo, bus, time.UTC, nil)

		repo.On("GetTask", ctx, int64(1)).Return(&models.Task{ID: 1, UserID: 1, Title: "A", Status: models.TaskStatusTodo}, nil).Once()
		repo.On("UpdateTaskStatus", ctx, int64(1), models.TaskStatusDone).Return(nil).Once()
		bus.On("PublishJSON", events.EventTaskCompleted, payloadFor(1)).Return(nil).Once()

		next, err := s.CompleteTask(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, next)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("AlreadyDone", func(t *testing.T) {
		repo := new(mockTaskRepo)
		s := NewTaskService(repo, nil, time.UTC, nil)
		repo.On("GetTask", ctx, int64(1)).Return(&models.Task{ID: 1, Status: models.TaskStatusDone}, nil).Once()

		next, err := s.CompleteTask(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, next)
		repo.AssertNotCalled(t, "UpdateTaskStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	tests := []struct {
		name     string
		rule     string
		want     *time.Time
		wantRule string
	}{
		{"Daily", "FREQ=DAILY", timePtr(due.AddDate(0, 0, 1)), ""},
		{"WeeklyWithPrefix", "RRULE:FREQ=WEEKLY;BYDAY=MO,WE", timePtr(due.AddDate(0, 0, 2)), ""},
		{"CountCarriesForward", "FREQ=DAILY;COUNT=3", timePtr(due.AddDate(0, 0, 1)), "FREQ=DAILY;COUNT=2"},
		{"LastCountedOccurrence", "RRULE:FREQ=DAILY;COUNT=2;INTERVAL=2", timePtr(due.AddDate(0, 0, 2)), "RRULE:FREQ=DAILY;COUNT=1;INTERVAL=2"},
		{"Exhausted", "FREQ=DAILY;COUNT=1", nil, ""},
		{"PastUntil", "FREQ=DAILY;UNTIL=20260301T000000Z", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockTaskRepo)
			bus := new(mockPublisher)
			s := NewTaskService(repo, bus, time.UTC, nil)

			task := &models.Task{
				ID: 5, UserID: 1, Title: "Stretch", Priority: models.PriorityMustDo,
				EstimatedMinutes: 10, DueAt: &due, Status: models.TaskStatusTodo, RecurrenceRule: strp(tt.rule),
			}
			repo.On("GetTask", ctx, int64(5)).Return(task, nil).Once()
			repo.On("UpdateTaskStatus", ctx, int64(5), models.TaskStatusDone).Return(nil).Once()
			bus.On("PublishJSON", events.EventTaskCompleted, payloadFor(5)).Return(nil).Once()
			if tt.want != nil {
				repo.On("CreateTask", ctx, mock.AnythingOfType("*models.Task")).Run(func(args mock.Arguments) {
					args.Get(1).(*models.Task).ID = 6
				}).Return(nil).Once()
				bus.On("PublishJSON", events.EventTaskCreated, payloadFor(6)).Return(nil).Once()
			}

			next, err := s.CompleteTask(ctx, 5)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, next)
				repo.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
				return
			}
			require.NotNil(t, next)
			assert.Equal(t, int64(6), next.ID)
			assert.Equal(t, models.TaskStatusTodo, next.Status)
			assert.Equal(t, "Stretch", next.Title)
			wantRule := tt.wantRule
			if wantRule == "" {
				wantRule = tt.rule
			}
			assert.Equal(t, wantRule, *next.RecurrenceRule)
			assert.Equal(t, tt.rule, *task.RecurrenceRule, "completed task keeps its rule")
			assert.True(t, tt.want.Equal(*next.DueAt), "got %s", next.DueAt)
			assert.Equal(t, models.TaskStatusDone, task.Status)
			repo.AssertExpectations(t)
			bus.AssertExpectations(t)
		})
	}
}

func TestTaskService_DeleteTaskCarriesExternalIDs(t *testing.T) {
	repo := new(mockTaskRepo)
	bus := new(mockPublisher)
	s := NewTaskService(repo, bus, time.UTC, nil)
	ctx := context.Background()

	repo.On("GetTask", ctx, int64(7)).Return(&models.Task{ID: 7, UserID: 2, Title: "Dentist"}, nil).Once()
	repo.On("GetSyncMetadata", ctx, int64(7)).Return(&models.SyncMetadata{TaskID: 7, GoogleEventID: strp("evt-7")}, nil).Once()
	repo.On("DeleteTask", ctx, int64(7)).Return(nil).Once()
	bus.On("PublishJSON", events.EventTaskDeleted, mock.MatchedBy(func(p events.TaskEventPayload) bool {
		return p.TaskID == 7 && p.UserID == 2 && p.GoogleEventID == "evt-7" && p.GoogleTaskID == ""
	})).Return(nil).Once()

	require.NoError(t, s.DeleteTask(ctx, 7))
	repo.AssertExpectations(t)
	bus.AssertExpectations(t)

	t.Run("NeverSynced", func(t *testing.T) {
		repo.On("GetTask", ctx, int64(8)).Return(&models.Task{ID: 8, UserID: 2, Title: "Local"}, nil).Once()
		repo.On("GetSyncMetadata", ctx, int64(8)).Return(nil, database.ErrNotFound).Once()
		repo.On("DeleteTask", ctx, int64(8)).Return(nil).Once()
		bus.On("PublishJSON", events.EventTaskDeleted, payloadFor(8)).Return(nil).Once()

		assert.NoError(t, s.DeleteTask(ctx, 8))
	})
}

func TestPlanService_PlanDay(t *testing.T) {
	repo := new(mockTaskRepo)
	s := NewPlanService(repo, config.PlanningConfig{
		WorkdayStartHour:       8,
		WorkdayEndHour:         18,
		PeakHours:              []int{9, 10},
		LowHours:               []int{15},
		DefaultDurationMinutes: 30,
	}, time.UTC, nil)
	ctx := context.Background()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	dentist := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	repo.On("ListPlannableTasks", ctx, int64(1), tomorrow).Return([]models.Task{
		{ID: 1, UserID: 1, Title: "Dentist", Priority: models.PriorityMustDo, EstimatedMinutes: 60, DueAt: &dentist},
		{ID: 2, UserID: 1, Title: "Write report", Priority: models.PriorityShouldDo, EstimatedMinutes: 30, EnergyLevel: models.EnergyMedium},
		{ID: 3, UserID: 1, Title: "Marathon", Priority: models.PriorityNiceToHave, EstimatedMinutes: 12 * 60},
	}, nil).Once()
	repo.On("GetSyncMetadata", ctx, int64(1)).Return(nil, database.ErrNotFound).Once()

	result, err := s.PlanDay(ctx, 1, day.Add(15*time.Hour))
	require.NoError(t, err)

	require.Len(t, result.Blocks, 2)
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.Unscheduled, 1)
	assert.Equal(t, int64(3), result.Unscheduled[0].TaskID)

	var fixed, flexible scheduler.Block
	for _, b := range result.Blocks {
		if b.Fixed {
			fixed = b
		} else {
			flexible = b
		}
	}
	assert.Equal(t, int64(1), fixed.TaskID)
	assert.True(t, fixed.Start.Equal(dentist))
	assert.True(t, fixed.End.Equal(dentist.Add(time.Hour)))
	assert.Equal(t, int64(2), flexible.TaskID)
	assert.True(t, !flexible.End.After(dentist) || !flexible.Start.Before(fixed.End))
	repo.AssertExpectations(t)
}

func TestPlanService_RescheduleTask(t *testing.T) {
	repo := new(mockTaskRepo)
	s := NewPlanService(repo, config.PlanningConfig{WorkdayStartHour: 8, WorkdayEndHour: 12}, time.UTC, nil)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

	repo.On("GetTask", ctx, int64(2)).Return(&models.Task{ID: 2, Priority: models.PriorityShouldDo, EstimatedMinutes: 60}, nil)

	current := []scheduler.Block{
		{TaskID: 1, Start: at(8), End: at(10), Fixed: true},
		{TaskID: 2, Start: at(10), End: at(11)},
		{TaskID: 3, Start: at(11), End: at(12)},
	}
	block, err := s.RescheduleTask(ctx, 2, day, current)
	require.NoError(t, err)
	assert.True(t, block.Start.Equal(at(10)))

	current[1] = scheduler.Block{TaskID: 4, Start: at(10), End: at(11)}
	_, err = s.RescheduleTask(ctx, 2, day, current)
	assert.ErrorIs(t, err, scheduler.ErrNoSlotAvailable)
}

func timePtr(t time.Time) *time.Time { return &t }
