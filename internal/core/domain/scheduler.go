package domain

import (
	"fmt"
	"time"
)

// DefaultTriggerTime is the wall-clock time of the daily run.
const DefaultTriggerTime = "17:11"

// TaskIDPipeline identifies the scheduled pipeline task.
const TaskIDPipeline = "pipeline"

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" in 24-hour form, with two
// digits per field and nothing else.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var layout string
	switch len(s) {
	case len("15:04"):
		layout = "15:04"
	case len("15:04:05"):
		layout = "15:04:05"
	default:
		return TimeOfDay{}, fmt.Errorf("%w: invalid time of day %q: expected HH:MM or HH:MM:SS", ErrInvalidInput, s)
	}
	parsed, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time of day %q: %v", ErrInvalidInput, s, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
}

// MustParseTimeOfDay is ParseTimeOfDay for constants.
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String formats as HH:MM, or HH:MM:SS when seconds are set.
func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant at this time of day on the calendar date of day in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// NextOccurrence returns the first instant strictly after now at this time of day.
func (t TimeOfDay) NextOccurrence(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	next := t.On(local, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, t.Hour, t.Minute, t.Second, 0, loc)
	}
	return next
}

// ScheduledTask is the daily pipeline trigger and its state.
type ScheduledTask struct {
	// ID is the unique identifier for the task.
	ID string

	// Name is a human-readable name for the task.
	Name string

	// At is the daily trigger time.
	At TimeOfDay

	// LastRun is when the task last started.
	LastRun time.Time

	// NextRun is when the task should run next.
	NextRun time.Time

	// LastError contains the last error message, if any.
	LastError string

	// LastSuccess is when the task last completed without any failure.
	LastSuccess time.Time

	// Skipped counts triggers dropped because a run was still in progress.
	Skipped int
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// At is the daily trigger time.
	At TimeOfDay

	// Location is the time zone At is interpreted in.
	Location *time.Location

	// Tick is how often the loop checks whether the trigger is due.
	Tick time.Duration
}

// DefaultSchedulerConfig returns the fixed daily schedule.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		At:       MustParseTimeOfDay(DefaultTriggerTime),
		Location: time.Local,
		Tick:     time.Second,
	}
}
