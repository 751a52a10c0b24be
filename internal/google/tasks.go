package google

import (
	"context"
	"fmt"
	"time"

	"dayplan/internal/models"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const (
	DefaultTaskList = "@default"

	taskStatusNeedsAction = "needsAction"
	taskStatusCompleted   = "completed"
)

// TaskListAdapter maps Google Tasks items to models.ExternalTask.
type TaskListAdapter struct {
	service *tasks.Service
	limiter *rate.Limiter
	loc     *time.Location
	now     func() time.Time
}

func NewTaskListAdapter(ctx context.Context, limiter *rate.Limiter, loc *time.Location, opts ...option.ClientOption) (*TaskListAdapter, error) {
	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Tasks service: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &TaskListAdapter{service: srv, limiter: limiter, loc: loc, now: time.Now}, nil
}

func (a *TaskListAdapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// ListToday returns incomplete items due today or earlier across every task
// list. Filtering is done by the request, not here.
func (a *TaskListAdapter) ListToday(ctx context.Context) ([]models.ExternalTask, error) {
	dueMax := todayDueMax(a.now(), a.loc)

	var listIDs []string
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	err := a.service.Tasklists.List().MaxResults(100).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, l := range page.Items {
			listIDs = append(listIDs, l.Id)
		}
		return a.wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list task lists: %w", err)
	}

	var out []models.ExternalTask
	for _, listID := range listIDs {
		if err := a.wait(ctx); err != nil {
			return nil, err
		}
		call := a.service.Tasks.List(listID).
			ShowCompleted(false).
			ShowHidden(false).
			DueMax(dueMax.Format(time.RFC3339)).
			MaxResults(100)

		err := call.Pages(ctx, func(page *tasks.Tasks) error {
			for _, item := range page.Items {
				out = append(out, toExternalTask(listID, item))
			}
			return a.wait(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list tasks in %s: %w", listID, err)
		}
	}
	return out, nil
}

// CreateTask inserts into listID, or the default list when empty.
func (a *TaskListAdapter) CreateTask(ctx context.Context, listID string, task models.ExternalTask) (models.ExternalTask, error) {
	if listID == "" {
		listID = DefaultTaskList
	}
	if err := a.wait(ctx); err != nil {
		return models.ExternalTask{}, err
	}

	created, err := a.service.Tasks.Insert(listID, fromExternalTask(task)).Context(ctx).Do()
	if err != nil {
		return models.ExternalTask{}, fmt.Errorf("create task: %w", err)
	}
	if created == nil || created.Id == "" {
		return models.ExternalTask{}, &MissingIDError{Resource: "task"}
	}
	return toExternalTask(listID, created), nil
}

func (a *TaskListAdapter) UpdateTask(ctx context.Context, task models.ExternalTask) error {
	listID := task.ListID
	if listID == "" {
		listID = DefaultTaskList
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	if _, err := a.service.Tasks.Patch(listID, task.ID, fromExternalTask(task)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return nil
}

// CompleteTask marks the item completed; it is never deleted.
func (a *TaskListAdapter) CompleteTask(ctx context.Context, listID, taskID string, at time.Time) error {
	if listID == "" {
		listID = DefaultTaskList
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	completed := at.UTC().Format(time.RFC3339)
	patch := &tasks.Task{Status: taskStatusCompleted, Completed: &completed}
	if _, err := a.service.Tasks.Patch(listID, taskID, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	return nil
}

func (a *TaskListAdapter) DeleteTask(ctx context.Context, listID, taskID string) error {
	if listID == "" {
		listID = DefaultTaskList
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	if err := a.service.Tasks.Delete(listID, taskID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

// todayDueMax is the last second of the local calendar date on the UTC clock.
// Google Tasks keeps due dates as midnight UTC of the date.
func todayDueMax(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

func toExternalTask(listID string, item *tasks.Task) models.ExternalTask {
	out := models.ExternalTask{
		ID:     item.Id,
		ListID: listID,
		Title:  item.Title,
		Notes:  item.Notes,
		Status: item.Status,
	}
	if item.Due != "" {
		if due, err := time.Parse(time.RFC3339, item.Due); err == nil {
			out.Due = &due
		}
	}
	if item.Completed != nil {
		if c, err := time.Parse(time.RFC3339, *item.Completed); err == nil {
			out.Completed = &c
		}
	}
	return out
}

func fromExternalTask(t models.ExternalTask) *tasks.Task {
	out := &tasks.Task{Title: t.Title, Notes: t.Notes, Status: t.Status}
	if out.Status == "" {
		out.Status = taskStatusNeedsAction
	}
	if t.Due != nil {
		// Google Tasks stores the date only.
		d := t.Due.UTC()
		out.Due = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	return out
}
