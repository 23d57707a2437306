package driven

import "github.com/custodia-labs/tablesync/internal/core/domain"

// ProgressReporter receives pipeline milestones for display.
type ProgressReporter interface {
	Report(p domain.Progress)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(p domain.Progress)

// Report calls f(p).
func (f ProgressFunc) Report(p domain.Progress) {
	f(p)
}
