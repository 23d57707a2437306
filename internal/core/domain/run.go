package domain

import (
	"errors"
	"fmt"
	"time"
)

// Stage is a step in the per-source pipeline.
// A source advances Idle -> Fetching -> Materializing -> Transferring ->
// CleaningUp -> Done, or stops at the stage that failed.
type Stage string

// Pipeline stages.
const (
	StageIdle          Stage = "idle"
	StageFetching      Stage = "fetching"
	StageMaterializing Stage = "materializing"
	StageTransferring  Stage = "transferring"
	StageCleaningUp    Stage = "cleaning_up"
	StageDone          Stage = "done"
)

// Trigger records what started a run.
type Trigger string

// Run triggers.
const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	// Source is the source name.
	Source string

	// Artifact is the artifact file name.
	Artifact string

	// Stage is the last stage reached: StageDone on success, the failing stage otherwise.
	Stage Stage

	// Err is nil on success.
	Err error

	// Uploaded is true once the transfer succeeded, even if cleanup later failed.
	Uploaded bool

	// Rows is the number of data rows fetched.
	Rows int

	// Bytes is the artifact size.
	Bytes int64

	// StartedAt is when fetching began.
	StartedAt time.Time

	// EndedAt is when the source finished or failed.
	EndedAt time.Time
}

// Succeeded reports whether the source completed every stage.
func (r SourceResult) Succeeded() bool {
	return r.Err == nil && r.Stage == StageDone
}

// Status returns "done" or "failed".
func (r SourceResult) Status() string {
	if r.Succeeded() {
		return "done"
	}
	return "failed"
}

// RunReport summarises one execution of the pipeline over a source set.
type RunReport struct {
	// ID uniquely identifies the run.
	ID string

	// Trigger records what started the run.
	Trigger Trigger

	// StartedAt is when the run began.
	StartedAt time.Time

	// EndedAt is when the run finished.
	EndedAt time.Time

	// Results holds per-source outcomes in processing order.
	Results []SourceResult

	// Fatal is set when the run could not process any source
	// (configuration, credentials, or session errors).
	Fatal error
}

// Succeeded returns the number of sources that completed.
func (r *RunReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of sources that did not complete.
func (r *RunReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Err returns the fatal error, or all per-source failures joined, or nil.
func (r *RunReport) Err() error {
	if r.Fatal != nil {
		return r.Fatal
	}
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Source, res.Err))
		}
	}
	return errors.Join(errs...)
}

// RecordedError restores a persisted error so errors.Is still matches
// the sentinel of its kind.
type RecordedError struct {
	Kind    ErrorKind
	Message string
}

// Error returns the stored message.
func (e *RecordedError) Error() string {
	return e.Message
}

// Is matches the sentinel for the recorded kind.
func (e *RecordedError) Is(target error) bool {
	for _, k := range kindOrder {
		if k.kind == e.Kind {
			return target == k.err
		}
	}
	return false
}

// ProgressEvent names a user-visible pipeline milestone.
type ProgressEvent string

// Progress events.
const (
	EventDownloaded ProgressEvent = "downloaded"
	EventUploaded   ProgressEvent = "uploaded"
	EventDeleted    ProgressEvent = "deleted"
	EventFailed     ProgressEvent = "failed"
)

// Progress is emitted by the runner as a source moves through the pipeline.
type Progress struct {
	RunID    string
	Source   string
	Artifact string
	Event    ProgressEvent
	Stage    Stage
	Err      error
}
