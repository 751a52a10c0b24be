// Package scheduler places flexible tasks into the gaps between fixed
// calendar blocks. Everything here is pure; a Scheduler may be shared
// between goroutines.
package scheduler

import (
	"errors"
	"sort"
	"time"

	"dayplan/internal/models"
)

// ErrNoSlotAvailable is returned by Reschedule when no gap fits the task.
var ErrNoSlotAvailable = errors.New("no slot available")

// ConflictOverlap marks two blocks that share time.
const ConflictOverlap = "overlap"

// FixedTask is anchored to an absolute time and is never moved.
type FixedTask struct {
	TaskID int64
	Start  time.Time
	End    time.Time
}

// FlexibleTask only carries a duration and energy preference.
type FlexibleTask struct {
	TaskID          int64  `json:"task_id"`
	Priority        string `json:"priority"`
	DurationMinutes int    `json:"duration_minutes"`
	Energy          string `json:"energy"`
}

// EnergyProfile lists the hours of day suited to high and low energy work.
type EnergyProfile struct {
	PeakHours              []int
	LowHours               []int
	DefaultDurationMinutes int
}

// Block is one placed task on the day.
type Block struct {
	TaskID int64     `json:"task_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Fixed  bool      `json:"fixed"`
}

// Conflict reports the overlapping span between blocks.
type Conflict struct {
	Type    string    `json:"type"`
	TaskIDs []int64   `json:"task_ids"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Result is the outcome of one Schedule run.
type Result struct {
	Blocks      []Block        `json:"blocks"`
	Unscheduled []FlexibleTask `json:"unscheduled"`
	Conflicts   []Conflict     `json:"conflicts"`
}

// Scheduler holds the working window, as hours of the day.
type Scheduler struct {
	WorkdayStartHour int
	WorkdayEndHour   int
}

// New creates a scheduler with the 08:00-18:00 working window.
func New() *Scheduler {
	return &Scheduler{WorkdayStartHour: 8, WorkdayEndHour: 18}
}

type interval struct {
	start time.Time
	end   time.Time
}

func (i interval) length() time.Duration { return i.end.Sub(i.start) }

// Schedule builds the day's timeline. Fixed tasks become blocks verbatim;
// flexible tasks are placed in priority order into the first fitting gap,
// preferring hours that match their energy tag.
func (s *Scheduler) Schedule(date time.Time, fixed []FixedTask, flexible []FlexibleTask, profile EnergyProfile) Result {
	result := Result{Blocks: []Block{}, Unscheduled: []FlexibleTask{}}

	for _, f := range fixed {
		result.Blocks = append(result.Blocks, Block{TaskID: f.TaskID, Start: f.Start, End: f.End, Fixed: true})
	}

	window := s.window(date)
	for _, task := range sortFlexible(flexible) {
		block, ok := s.place(window, task, result.Blocks, profile)
		if !ok {
			result.Unscheduled = append(result.Unscheduled, task)
			continue
		}
		result.Blocks = append(result.Blocks, block)
	}

	sortBlocks(result.Blocks)
	result.Conflicts = DetectConflicts(result.Blocks)
	return result
}

// Reschedule finds a new block for task against current, ignoring the
// task's own previous flexible placement. Other blocks are left untouched.
func (s *Scheduler) Reschedule(date time.Time, task FlexibleTask, current []Block, profile EnergyProfile) (Block, error) {
	others := make([]Block, 0, len(current))
	for _, b := range current {
		if b.TaskID == task.TaskID && !b.Fixed {
			continue
		}
		others = append(others, b)
	}

	block, ok := s.place(s.window(date), task, others, profile)
	if !ok {
		return Block{}, ErrNoSlotAvailable
	}
	return block, nil
}

// DetectConflicts reports every overlapping pair of blocks.
func DetectConflicts(blocks []Block) []Conflict {
	conflicts := []Conflict{}
	for i := 0; i < len(blocks); i++ {
		for j := i + 1; j < len(blocks); j++ {
			a, b := blocks[i], blocks[j]
			if !overlaps(a.Start, a.End, b.Start, b.End) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Type:    ConflictOverlap,
				TaskIDs: []int64{a.TaskID, b.TaskID},
				Start:   latest(a.Start, b.Start),
				End:     earliest(a.End, b.End),
			})
		}
	}
	return conflicts
}

func (s *Scheduler) window(date time.Time) interval {
	y, m, d := date.Date()
	loc := date.Location()
	return interval{
		start: time.Date(y, m, d, s.WorkdayStartHour, 0, 0, 0, loc),
		end:   time.Date(y, m, d, s.WorkdayEndHour, 0, 0, 0, loc),
	}
}

func (s *Scheduler) place(window interval, task FlexibleTask, placed []Block, profile EnergyProfile) (Block, bool) {
	duration := taskDuration(task, profile)
	if duration <= 0 || duration > window.length() {
		return Block{}, false
	}

	gaps := freeGaps(window, placed)

	if preferred := preferredHours(task.Energy, profile); len(preferred) > 0 {
		for _, pref := range hourIntervals(window.start, preferred) {
			for _, gap := range gaps {
				start := latest(gap.start, pref.start)
				if !start.Before(pref.end) || !start.Before(gap.end) {
					continue
				}
				if start.Add(duration).After(gap.end) {
					continue
				}
				return Block{TaskID: task.TaskID, Start: start, End: start.Add(duration)}, true
			}
		}
	}

	for _, gap := range gaps {
		if gap.length() >= duration {
			return Block{TaskID: task.TaskID, Start: gap.start, End: gap.start.Add(duration)}, true
		}
	}
	return Block{}, false
}

func taskDuration(task FlexibleTask, profile EnergyProfile) time.Duration {
	minutes := task.DurationMinutes
	if minutes <= 0 {
		minutes = profile.DefaultDurationMinutes
	}
	if minutes <= 0 {
		minutes = models.DefaultEstimatedMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func preferredHours(energy string, profile EnergyProfile) []int {
	switch energy {
	case models.EnergyHigh:
		return profile.PeakHours
	case models.EnergyLow:
		return profile.LowHours
	default:
		return nil
	}
}

// freeGaps is the complement of placed blocks inside window.
func freeGaps(window interval, placed []Block) []interval {
	busy := make([]interval, 0, len(placed))
	for _, b := range placed {
		start, end := latest(b.Start, window.start), earliest(b.End, window.end)
		if start.Before(end) {
			busy = append(busy, interval{start: start, end: end})
		}
	}
	busy = mergeIntervals(busy)

	gaps := []interval{}
	cursor := window.start
	for _, b := range busy {
		if cursor.Before(b.start) {
			gaps = append(gaps, interval{start: cursor, end: b.start})
		}
		if b.end.After(cursor) {
			cursor = b.end
		}
	}
	if cursor.Before(window.end) {
		gaps = append(gaps, interval{start: cursor, end: window.end})
	}
	return gaps
}

func mergeIntervals(slots []interval) []interval {
	if len(slots) == 0 {
		return slots
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].start.Before(slots[j].start)
	})

	merged := []interval{slots[0]}
	for i := 1; i < len(slots); i++ {
		last := &merged[len(merged)-1]
		current := slots[i]

		// If overlapping or adjacent, extend
		if !current.start.After(last.end) {
			if current.end.After(last.end) {
				last.end = current.end
			}
		} else {
			merged = append(merged, current)
		}
	}
	return merged
}

// hourIntervals turns hours-of-day into merged intervals on day's date.
func hourIntervals(day time.Time, hours []int) []interval {
	y, m, d := day.Date()
	out := make([]interval, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			continue
		}
		start := time.Date(y, m, d, h, 0, 0, 0, day.Location())
		out = append(out, interval{start: start, end: start.Add(time.Hour)})
	}
	return mergeIntervals(out)
}

// sortFlexible orders by priority, then energy-tagged tasks before medium.
func sortFlexible(tasks []FlexibleTask) []FlexibleTask {
	sorted := append([]FlexibleTask(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := models.PriorityRank(sorted[i].Priority), models.PriorityRank(sorted[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return energyRank(sorted[i].Energy) < energyRank(sorted[j].Energy)
	})
	return sorted
}

func energyRank(energy string) int {
	if energy == models.EnergyHigh || energy == models.EnergyLow {
		return 0
	}
	return 1
}

func sortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Start.Before(blocks[j].Start)
	})
}

func overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && startB.Before(endA)
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
