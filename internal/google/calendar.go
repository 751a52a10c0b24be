package google

import (
	"context"
	"fmt"
	"time"

	"dayplan/internal/models"

	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarAdapter maps Google Calendar events to models.ExternalEvent.
type CalendarAdapter struct {
	service *calendar.Service
	limiter *rate.Limiter
	loc     *time.Location
	now     func() time.Time
}

func NewCalendarAdapter(ctx context.Context, limiter *rate.Limiter, loc *time.Location, opts ...option.ClientOption) (*CalendarAdapter, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &CalendarAdapter{service: srv, limiter: limiter, loc: loc, now: time.Now}, nil
}

func (a *CalendarAdapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// ListToday lists today's timed events in the adapter's location.
func (a *CalendarAdapter) ListToday(ctx context.Context, calendarID string) ([]models.ExternalEvent, error) {
	return a.ListDay(ctx, calendarID, a.now())
}

// ListDay returns timed events fully inside the local day of day. Recurring
// events are expanded into instances; all-day events are dropped.
func (a *CalendarAdapter) ListDay(ctx context.Context, calendarID string, day time.Time) ([]models.ExternalEvent, error) {
	dayStart, dayEnd := dayBounds(day, a.loc)

	var out []models.ExternalEvent
	call := a.service.Events.List(calendarID).
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false)

	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			ev, ok := toExternalEvent(item)
			if !ok {
				continue
			}
			if ev.Start.Before(dayStart) || ev.End.After(dayEnd) {
				continue
			}
			out = append(out, ev)
		}
		return a.wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func (a *CalendarAdapter) CreateEvent(ctx context.Context, calendarID string, event models.ExternalEvent) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}
	created, err := a.service.Events.Insert(calendarID, fromExternalEvent(event)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	if created == nil || created.Id == "" {
		return "", &MissingIDError{Resource: "event"}
	}
	return created.Id, nil
}

func (a *CalendarAdapter) UpdateEvent(ctx context.Context, calendarID string, event models.ExternalEvent) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	if _, err := a.service.Events.Patch(calendarID, event.ID, fromExternalEvent(event)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return nil
}

func (a *CalendarAdapter) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	if err := a.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

func toExternalEvent(item *calendar.Event) (models.ExternalEvent, bool) {
	if item == nil || item.Status == "cancelled" {
		return models.ExternalEvent{}, false
	}
	// All-day events only carry Date.
	if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
		return models.ExternalEvent{}, false
	}
	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return models.ExternalEvent{}, false
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return models.ExternalEvent{}, false
	}
	return models.ExternalEvent{
		ID:               item.Id,
		Summary:          item.Summary,
		Description:      item.Description,
		Start:            start,
		End:              end,
		RecurringEventID: item.RecurringEventId,
	}, true
}

func fromExternalEvent(ev models.ExternalEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}
}

func dayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
