package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
	"github.com/custodia-labs/tablesync/internal/core/ports/driving"
)

// Ensure HistoryService implements the interface.
var _ driving.HistoryService = (*HistoryService)(nil)

// DefaultHistoryLimit is how many runs Recent returns when limit <= 0.
const DefaultHistoryLimit = 20

// HistoryService reads past runs from a RunStore.
type HistoryService struct {
	store driven.RunStore
}

// NewHistoryService creates a history service.
func NewHistoryService(store driven.RunStore) *HistoryService {
	return &HistoryService{store: store}
}

// Recent returns up to limit runs, most recent first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.ListRuns(ctx, limit)
}

// Get returns one run with its per-source results.
func (s *HistoryService) Get(ctx context.Context, runID string) (*domain.RunReport, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is required", domain.ErrInvalidInput)
	}
	return s.store.GetRun(ctx, runID)
}
