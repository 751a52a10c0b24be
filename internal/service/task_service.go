package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"dayplan/internal/database"
	"dayplan/internal/domain"
	"dayplan/internal/events"
	"dayplan/internal/models"

	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"
)

var ErrInvalidTask = errors.New("invalid task")

var countRe = regexp.MustCompile(`(?i)\bCOUNT=\d+`)

// TaskService owns task mutations. Every mutation commits locally first and
// then publishes an event; sync never fails a mutation.
type TaskService struct {
	repo     domain.TaskRepository
	eventBus domain.EventPublisher
	loc      *time.Location
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewTaskService(repo domain.TaskRepository, eventBus domain.EventPublisher, loc *time.Location, logger *zerolog.Logger) *TaskService {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TaskService{
		repo:     repo,
		eventBus: eventBus,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *TaskService) CreateTask(ctx context.Context, task *models.Task) error {
	applyTaskDefaults(task)
	if err := validateTask(task); err != nil {
		return err
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return err
	}

	s.publishEvent(events.EventTaskCreated, task, nil)
	return nil
}

func (s *TaskService) UpdateTask(ctx context.Context, task *models.Task) error {
	applyTaskDefaults(task)
	if err := validateTask(task); err != nil {
		return err
	}

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return err
	}

	s.publishEvent(events.EventTaskUpdated, task, nil)
	return nil
}

// CompleteTask marks the task done. For a recurring task the next
// occurrence is created and returned; otherwise the result is nil.
func (s *TaskService) CompleteTask(ctx context.Context, taskID int64) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusDone {
		return nil, nil
	}

	if err := s.repo.UpdateTaskStatus(ctx, task.ID, models.TaskStatusDone); err != nil {
		return nil, err
	}
	task.Status = models.TaskStatusDone
	s.publishEvent(events.EventTaskCompleted, task, nil)

	if !task.IsRecurring() {
		return nil, nil
	}

	next, err := s.nextOccurrence(task)
	if err != nil {
		s.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("recurrence rule rejected, no successor created")
		return nil, nil
	}
	if next == nil {
		return nil, nil
	}

	if err := s.repo.CreateTask(ctx, next); err != nil {
		return nil, fmt.Errorf("create next occurrence: %w", err)
	}
	s.publishEvent(events.EventTaskCreated, next, nil)
	return next, nil
}

// nextOccurrence builds the todo sibling due at the rule's first
// occurrence after the completed task's due date. nil means the rule
// has run out. Each sibling's COUNT is one less than its predecessor's.
func (s *TaskService) nextOccurrence(task *models.Task) (*models.Task, error) {
	anchor := s.now()
	if task.DueAt != nil {
		anchor = *task.DueAt
	}
	anchor = anchor.In(s.loc)

	opt, err := parseRule(*task.RecurrenceRule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = anchor
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	due := r.After(anchor, false)
	if due.IsZero() {
		return nil, nil
	}

	next := *task
	next.ID = 0
	next.Status = models.TaskStatusTodo
	next.DueAt = &due
	if opt.Count > 1 {
		rule := countRe.ReplaceAllString(*task.RecurrenceRule, fmt.Sprintf("COUNT=%d", opt.Count-1))
		next.RecurrenceRule = &rule
	}
	next.CreatedAt = time.Time{}
	next.UpdatedAt = time.Time{}
	return &next, nil
}

// DeleteTask removes the task and its metadata. The external ids are read
// first so the remote copies can still be deleted afterwards.
func (s *TaskService) DeleteTask(ctx context.Context, taskID int64) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	meta, err := s.repo.GetSyncMetadata(ctx, taskID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	s.publishEvent(events.EventTaskDeleted, task, meta)
	return nil
}

func (s *TaskService) publishEvent(eventType string, task *models.Task, meta *models.SyncMetadata) {
	if s.eventBus == nil {
		return
	}

	payload := events.TaskEventPayload{
		TaskID:     task.ID,
		UserID:     task.UserID,
		Title:      task.Title,
		Status:     task.Status,
		OccurredAt: s.now(),
	}
	if meta != nil {
		payload.GoogleEventID = deref(meta.GoogleEventID)
		payload.GoogleTaskID = deref(meta.GoogleTaskID)
		payload.GoogleTaskListID = deref(meta.GoogleTaskListID)
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("task_id", task.ID).Msg("failed to publish task event")
	}
}

func applyTaskDefaults(task *models.Task) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Priority == "" {
		task.Priority = models.PriorityShouldDo
	}
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	if task.EnergyLevel == "" {
		task.EnergyLevel = models.EnergyMedium
	}
}

func validateTask(task *models.Task) error {
	switch {
	case task.UserID == 0:
		return fmt.Errorf("%w: user id is required", ErrInvalidTask)
	case task.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	case !models.ValidPriority(task.Priority):
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, task.Priority)
	case !models.ValidTaskStatus(task.Status):
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, task.Status)
	case !models.ValidEnergy(task.EnergyLevel):
		return fmt.Errorf("%w: unknown energy level %q", ErrInvalidTask, task.EnergyLevel)
	case task.EstimatedMinutes < 0:
		return fmt.Errorf("%w: negative estimate", ErrInvalidTask)
	}
	if task.IsRecurring() {
		if _, err := parseRule(*task.RecurrenceRule); err != nil {
			return fmt.Errorf("%w: recurrence rule: %v", ErrInvalidTask, err)
		}
	}
	return nil
}

// parseRule accepts a bare RRULE value with or without the "RRULE:" prefix.
func parseRule(rule string) (*rrule.ROption, error) {
	rule = strings.TrimSpace(rule)
	if len(rule) > 6 && strings.EqualFold(rule[:6], "RRULE:") {
		rule = rule[6:]
	}
	return rrule.StrToROption(rule)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
