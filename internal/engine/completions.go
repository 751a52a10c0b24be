package engine

import (
	"context"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/models"
	"dayplan/internal/planfmt"
)

// CompletionRecord is a completion parsed from an exported event.
type CompletionRecord struct {
	planfmt.Record
	EventID string
}

// CompletionReader reads completion markers back from calendar events.
type CompletionReader struct{}

// Read lists the day's events and returns their completion records.
func (r CompletionReader) Read(ctx context.Context, cal domain.CalendarAPI, calendarID string, day time.Time) ([]CompletionRecord, error) {
	events, err := cal.ListDay(ctx, calendarID, day)
	if err != nil {
		return nil, err
	}
	return r.FromEvents(events), nil
}

// FromEvents parses already fetched events. Pending and malformed
// descriptions are skipped.
func (CompletionReader) FromEvents(events []models.ExternalEvent) []CompletionRecord {
	var out []CompletionRecord
	for _, ev := range events {
		rec, ok := planfmt.ParseOutcome(ev.Description)
		if !ok {
			continue
		}
		out = append(out, CompletionRecord{Record: rec, EventID: ev.ID})
	}
	return out
}
