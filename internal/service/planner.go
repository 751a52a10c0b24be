package service

import (
	"context"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/models"
	"dayplan/internal/scheduler"

	"github.com/rs/zerolog"
)

// PlanService turns a user's open tasks into a timeline for one day.
type PlanService struct {
	repo      domain.TaskRepository
	scheduler *scheduler.Scheduler
	profile   scheduler.EnergyProfile
	loc       *time.Location
	logger    *zerolog.Logger
}

func NewPlanService(repo domain.TaskRepository, cfg config.PlanningConfig, loc *time.Location, logger *zerolog.Logger) *PlanService {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	sched := scheduler.New()
	if cfg.WorkdayEndHour > cfg.WorkdayStartHour {
		sched.WorkdayStartHour = cfg.WorkdayStartHour
		sched.WorkdayEndHour = cfg.WorkdayEndHour
	}

	return &PlanService{
		repo:      repo,
		scheduler: sched,
		profile: scheduler.EnergyProfile{
			PeakHours:              cfg.PeakHours,
			LowHours:               cfg.LowHours,
			DefaultDurationMinutes: cfg.DefaultDurationMinutes,
		},
		loc:    loc,
		logger: logger,
	}
}

// PlanDay schedules every open task for the day containing date. Timed
// tasks due that day are fixed; the rest are placed around them.
func (s *PlanService) PlanDay(ctx context.Context, userID int64, date time.Time) (*scheduler.Result, error) {
	fixed, flexible, err := s.split(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	result := s.scheduler.Schedule(s.dayStart(date), fixed, flexible, s.profile)
	s.logger.Debug().
		Int64("user_id", userID).
		Int("blocks", len(result.Blocks)).
		Int("unscheduled", len(result.Unscheduled)).
		Int("conflicts", len(result.Conflicts)).
		Msg("day planned")
	return &result, nil
}

// RescheduleTask finds a new slot for one task without moving any other
// block in current.
func (s *PlanService) RescheduleTask(ctx context.Context, taskID int64, date time.Time, current []scheduler.Block) (scheduler.Block, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return scheduler.Block{}, err
	}
	return s.scheduler.Reschedule(s.dayStart(date), flexibleTask(task), current, s.profile)
}

func (s *PlanService) split(ctx context.Context, userID int64, date time.Time) ([]scheduler.FixedTask, []scheduler.FlexibleTask, error) {
	start := s.dayStart(date)
	end := start.AddDate(0, 0, 1)

	tasks, err := s.repo.ListPlannableTasks(ctx, userID, end)
	if err != nil {
		return nil, nil, err
	}

	var (
		fixed    []scheduler.FixedTask
		flexible []scheduler.FlexibleTask
	)
	for i := range tasks {
		task := &tasks[i]
		if s.isFixed(ctx, task, start, end) {
			fixed = append(fixed, scheduler.FixedTask{
				TaskID: task.ID,
				Start:  *task.DueAt,
				End:    task.DueAt.Add(task.Duration()),
			})
			continue
		}
		flexible = append(flexible, flexibleTask(task))
	}
	return fixed, flexible, nil
}

func (s *PlanService) isFixed(ctx context.Context, task *models.Task, start, end time.Time) bool {
	if task.DueAt == nil || task.DueAt.Before(start) || !task.DueAt.Before(end) {
		return false
	}
	meta, err := s.repo.GetSyncMetadata(ctx, task.ID)
	if err != nil {
		meta = nil
	}
	return engine.CalendarBacked(task, meta, s.loc)
}

func (s *PlanService) dayStart(date time.Time) time.Time {
	d := date.In(s.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
}

func flexibleTask(task *models.Task) scheduler.FlexibleTask {
	return scheduler.FlexibleTask{
		TaskID:          task.ID,
		Priority:        task.Priority,
		DurationMinutes: task.EstimatedMinutes,
		Energy:          task.EnergyLevel,
	}
}
