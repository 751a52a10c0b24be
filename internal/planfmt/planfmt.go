// Package planfmt encodes tasks into calendar event text and parses the
// status markers back out of event descriptions.
//
// Title:       [!!!] Call Mom (15m)
// Description: Domain: <name>
//              Task ID: <id>
//              Category: <must-do|want-to|health>
//              Status: <pending|completed|skipped>
//
//              <free-text body, only when present>
//              CompletedAt: <RFC3339>      (completed/skipped exports only)
//              ActualDuration: <minutes>   (optional)
package planfmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dayplan/internal/models"
)

const unassignedDomain = "Unassigned"

// Outcome is the completion fact attached to a completed or skipped export.
type Outcome struct {
	Status        string // models.OutcomeCompleted or models.OutcomeSkipped
	At            time.Time
	ActualMinutes *int
}

// Record is a parsed event description.
type Record struct {
	TaskID        int64
	Status        string
	At            time.Time
	ActualMinutes *int
}

func priorityMarker(priority string) string {
	switch priority {
	case models.PriorityMustDo:
		return "!!!"
	case models.PriorityShouldDo:
		return "!!"
	default:
		return "!"
	}
}

// EncodeTaskTitle renders "[<marker>] <title> (<N>m)".
func EncodeTaskTitle(task *models.Task) string {
	return fmt.Sprintf("[%s] %s (%dm)", priorityMarker(task.Priority), task.Title, int(task.Duration().Minutes()))
}

var titleRe = regexp.MustCompile(`^\[(!{1,3})\]\s+(.*?)\s+\((\d+)m\)$`)

// DecodeTaskTitle reverses EncodeTaskTitle. ok is false for titles that were
// not produced by the encoder.
func DecodeTaskTitle(title string) (priority, plain string, minutes int, ok bool) {
	m := titleRe.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", title, 0, false
	}

	switch m[1] {
	case "!!!":
		priority = models.PriorityMustDo
	case "!!":
		priority = models.PriorityShouldDo
	default:
		priority = models.PriorityNiceToHave
	}

	minutes, err := strconv.Atoi(m[3])
	if err != nil {
		return "", title, 0, false
	}
	return priority, m[2], minutes, true
}

// Category resolves the exported category: the domain's own, else derived
// from the task priority.
func Category(task *models.Task, domain *models.Domain) string {
	if domain != nil && domain.Category != "" {
		return domain.Category
	}
	if task.Priority == models.PriorityMustDo {
		return models.CategoryMustDo
	}
	return models.CategoryWantTo
}

func header(task *models.Task, domain *models.Domain, status string) []string {
	name := unassignedDomain
	if domain != nil && domain.Name != "" {
		name = domain.Name
	}
	return []string{
		"Domain: " + name,
		"Task ID: " + strconv.FormatInt(task.ID, 10),
		"Category: " + Category(task, domain),
		"Status: " + status,
	}
}

// EncodeTaskDescription renders the pending description. The body follows a
// blank line only when the task has one.
func EncodeTaskDescription(task *models.Task, domain *models.Domain) string {
	lines := header(task, domain, models.OutcomePending)
	if body := taskBody(task); body != "" {
		lines = append(lines, "", body)
	}
	return strings.Join(lines, "\n")
}

// EncodeOutcomeDescription renders a completed or skipped description.
func EncodeOutcomeDescription(task *models.Task, domain *models.Domain, outcome Outcome) string {
	lines := header(task, domain, outcome.Status)
	if body := taskBody(task); body != "" {
		lines = append(lines, "", body)
	}
	lines = append(lines, timestampKey(outcome.Status)+": "+outcome.At.UTC().Format(time.RFC3339))
	if outcome.ActualMinutes != nil {
		lines = append(lines, "ActualDuration: "+strconv.Itoa(*outcome.ActualMinutes))
	}
	return strings.Join(lines, "\n")
}

func taskBody(task *models.Task) string {
	if task.Description == nil {
		return ""
	}
	return *task.Description
}

func timestampKey(status string) string {
	if status == models.OutcomeSkipped {
		return "SkippedAt"
	}
	return "CompletedAt"
}

var (
	statusRe      = regexp.MustCompile(`(?m)^Status:\s*(completed|skipped|pending)\s*$`)
	taskIDRe      = regexp.MustCompile(`(?m)^Task ID:\s*(\d+)\s*$`)
	completedAtRe = regexp.MustCompile(`(?m)^CompletedAt:\s*(\S+)\s*$`)
	skippedAtRe   = regexp.MustCompile(`(?m)^SkippedAt:\s*(\S+)\s*$`)
	durationRe    = regexp.MustCompile(`(?m)^ActualDuration:\s*(\d+)\s*$`)
)

// ParseOutcome extracts a completion record from an event description. It
// returns ok=false for pending, partial or malformed descriptions.
func ParseOutcome(description string) (Record, bool) {
	description = strings.ReplaceAll(description, "\r\n", "\n")

	m := statusRe.FindStringSubmatch(description)
	if m == nil || m[1] == models.OutcomePending {
		return Record{}, false
	}
	rec := Record{Status: m[1]}

	idMatch := taskIDRe.FindStringSubmatch(description)
	if idMatch == nil {
		return Record{}, false
	}
	id, err := strconv.ParseInt(idMatch[1], 10, 64)
	if err != nil {
		return Record{}, false
	}
	rec.TaskID = id

	atRe := completedAtRe
	if rec.Status == models.OutcomeSkipped {
		atRe = skippedAtRe
	}
	atMatch := atRe.FindStringSubmatch(description)
	if atMatch == nil {
		return Record{}, false
	}
	at, err := time.Parse(time.RFC3339, atMatch[1])
	if err != nil {
		return Record{}, false
	}
	rec.At = at.UTC()

	if d := durationRe.FindStringSubmatch(description); d != nil {
		if minutes, err := strconv.Atoi(d[1]); err == nil {
			rec.ActualMinutes = &minutes
		}
	}
	return rec, true
}
