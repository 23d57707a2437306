package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// RecordRun stores a run and its per-source results, replacing any
// previous record with the same ID.
func (s *runStore) RecordRun(ctx context.Context, report *domain.RunReport) error {
	if report == nil || report.ID == "" {
		return domain.ErrInvalidInput
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	fatalKind, fatalMsg := splitError(report.Fatal)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, trigger, started_at, ended_at, fatal_kind, fatal_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trigger = excluded.trigger,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			fatal_kind = excluded.fatal_kind,
			fatal_error = excluded.fatal_error
	`, report.ID, string(report.Trigger),
		formatTime(report.StartedAt), formatNullableTime(report.EndedAt),
		fatalKind, fatalMsg)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM source_results WHERE run_id = ?", report.ID); err != nil {
		return fmt.Errorf("clearing source results: %w", err)
	}

	for i, res := range report.Results {
		errKind, errMsg := splitError(res.Err)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO source_results
				(run_id, position, source, artifact, stage, error_kind, error, uploaded, rows, bytes, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, report.ID, i, res.Source, res.Artifact, string(res.Stage),
			errKind, errMsg, boolToInt(res.Uploaded), res.Rows, res.Bytes,
			formatNullableTime(res.StartedAt), formatNullableTime(res.EndedAt))
		if err != nil {
			return fmt.Errorf("saving result for %s: %w", res.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID with its results in processing order.
func (s *runStore) GetRun(ctx context.Context, runID string) (*domain.RunReport, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, trigger, started_at, ended_at, fatal_kind, fatal_error
		FROM runs WHERE id = ?
	`, runID)

	report, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	if report.Results, err = s.results(ctx, report.ID); err != nil {
		return nil, err
	}
	return report, nil
}

// ListRuns returns recent runs, most recent first.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, trigger, started_at, ended_at, fatal_kind, fatal_error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	var reports []domain.RunReport //nolint:prealloc // size unknown from query
	for rows.Next() {
		report, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	rows.Close()

	for i := range reports {
		if reports[i].Results, err = s.results(ctx, reports[i].ID); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

// PruneHistory removes runs beyond the retention limit.
// Keeps the most recent 'keep' runs; their results go with them.
func (s *runStore) PruneHistory(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning run history: %w", err)
	}

	// Results normally go by cascade; sweep any left by a store opened without foreign keys.
	_, err = s.store.db.ExecContext(ctx, `
		DELETE FROM source_results WHERE run_id NOT IN (SELECT id FROM runs)
	`)
	if err != nil {
		return fmt.Errorf("pruning source results: %w", err)
	}
	return nil
}

// results loads the per-source results of one run.
func (s *runStore) results(ctx context.Context, runID string) ([]domain.SourceResult, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source, artifact, stage, error_kind, error, uploaded, rows, bytes, started_at, ended_at
		FROM source_results
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying source results: %w", err)
	}
	defer rows.Close()

	var results []domain.SourceResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var res domain.SourceResult
		var stage string
		var errKind, errMsg, startedAt, endedAt sql.NullString
		var uploaded int

		if err := rows.Scan(&res.Source, &res.Artifact, &stage, &errKind, &errMsg,
			&uploaded, &res.Rows, &res.Bytes, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning source result: %w", err)
		}
		res.Stage = domain.Stage(stage)
		res.Err = joinError(errKind, errMsg)
		res.Uploaded = uploaded == 1
		res.StartedAt = parseNullableTime(startedAt)
		res.EndedAt = parseNullableTime(endedAt)
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source results: %w", err)
	}
	return results, nil
}

// ==================== Helper Functions ====================

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single run row.
func scanRun(row rowScanner) (*domain.RunReport, error) {
	var report domain.RunReport
	var trigger, startedAt string
	var endedAt, fatalKind, fatalMsg sql.NullString

	if err := row.Scan(&report.ID, &trigger, &startedAt, &endedAt, &fatalKind, &fatalMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	report.Trigger = domain.Trigger(trigger)
	report.StartedAt = parseNullableTime(sql.NullString{String: startedAt, Valid: true})
	report.EndedAt = parseNullableTime(endedAt)
	report.Fatal = joinError(fatalKind, fatalMsg)
	return &report, nil
}

// splitError returns the kind and message of err, or nils.
func splitError(err error) (kind, msg any) {
	if err == nil {
		return nil, nil
	}
	return string(domain.KindOf(err)), err.Error()
}

// joinError restores a stored error so errors.Is still matches its kind.
func joinError(kind, msg sql.NullString) error {
	if !msg.Valid {
		return nil
	}
	return &domain.RecordedError{Kind: domain.ErrorKind(kind.String), Message: msg.String}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatNullableTime formats a time, or returns nil for zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseNullableTime parses a stored timestamp.
// Returns zero time if the string is empty or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
