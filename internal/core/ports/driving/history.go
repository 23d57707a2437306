package driving

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// HistoryService exposes past runs to the CLI.
type HistoryService interface {
	// Recent returns up to limit runs, most recent first.
	Recent(ctx context.Context, limit int) ([]domain.RunReport, error)

	// Get returns one run with its per-source results.
	Get(ctx context.Context, runID string) (*domain.RunReport, error)
}
