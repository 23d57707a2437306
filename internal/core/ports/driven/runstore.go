package driven

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// RunStore persists run history.
type RunStore interface {
	// RecordRun stores a finished run and its per-source results.
	RecordRun(ctx context.Context, report *domain.RunReport) error

	// GetRun retrieves a run by ID, with results in processing order.
	// Returns domain.ErrNotFound if the run does not exist.
	GetRun(ctx context.Context, runID string) (*domain.RunReport, error)

	// ListRuns returns up to limit recent runs, most recent first.
	// limit <= 0 returns every run.
	ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error)

	// PruneHistory keeps the most recent 'keep' runs.
	PruneHistory(ctx context.Context, keep int) error
}
