package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
)

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.RunStore.
// Used when history is disabled and in tests.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]storedRun
	seq  int
}

type storedRun struct {
	report domain.RunReport
	seq    int
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]storedRun),
	}
}

// RecordRun stores a copy of the report. Recording the same ID replaces it.
func (s *RunStore) RecordRun(_ context.Context, report *domain.RunReport) error {
	if report == nil || report.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	stored := *report
	stored.Results = append([]domain.SourceResult(nil), report.Results...)
	s.runs[report.ID] = storedRun{report: stored, seq: s.seq}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (*domain.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	report := run.report
	report.Results = append([]domain.SourceResult(nil), run.report.Results...)
	return &report, nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]domain.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	reports := make([]domain.RunReport, 0, len(sorted))
	for _, run := range sorted {
		report := run.report
		report.Results = append([]domain.SourceResult(nil), run.report.Results...)
		reports = append(reports, report)
	}
	return reports, nil
}

// PruneHistory keeps the most recent keep runs.
func (s *RunStore) PruneHistory(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := s.sortedLocked()
	if keep < 0 {
		keep = 0
	}
	for _, run := range sorted[min(keep, len(sorted)):] {
		delete(s.runs, run.report.ID)
	}
	return nil
}

// sortedLocked returns runs newest first. Caller holds the lock.
func (s *RunStore) sortedLocked() []storedRun {
	runs := make([]storedRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if !a.report.StartedAt.Equal(b.report.StartedAt) {
			return a.report.StartedAt.After(b.report.StartedAt)
		}
		return a.seq > b.seq
	})
	return runs
}
