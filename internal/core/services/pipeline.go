package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
	"github.com/custodia-labs/tablesync/internal/core/ports/driving"
	"github.com/custodia-labs/tablesync/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.PipelineRunner = (*Pipeline)(nil)

// DefaultHistoryKeep is how many runs are kept in history.
const DefaultHistoryKeep = 100

// Pipeline runs fetch -> materialize -> transfer -> cleanup for every
// configured source, sharing one transfer session per run.
type Pipeline struct {
	loader      driven.SourceLoader
	credentials driven.CredentialsProvider
	fetcher     driven.Fetcher
	artifacts   driven.ArtifactStore
	sessions    driven.SessionFactory

	runs        driven.RunStore
	historyKeep int
	progress    driven.ProgressReporter
	retry       RetryPolicy

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	running bool
}

// PipelineOption configures optional Pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithRunStore records every run and keeps the latest keep runs.
// keep <= 0 disables pruning.
func WithRunStore(store driven.RunStore, keep int) PipelineOption {
	return func(p *Pipeline) {
		p.runs = store
		p.historyKeep = keep
	}
}

// WithProgress sends stage milestones to r.
func WithProgress(r driven.ProgressReporter) PipelineOption {
	return func(p *Pipeline) {
		p.progress = r
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(policy RetryPolicy) PipelineOption {
	return func(p *Pipeline) {
		p.retry = policy
	}
}

// NewPipeline creates a pipeline runner.
func NewPipeline(
	loader driven.SourceLoader,
	credentials driven.CredentialsProvider,
	fetcher driven.Fetcher,
	artifacts driven.ArtifactStore,
	sessions driven.SessionFactory,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		loader:      loader,
		credentials: credentials,
		fetcher:     fetcher,
		artifacts:   artifacts,
		sessions:    sessions,
		historyKeep: DefaultHistoryKeep,
		retry:       DefaultRetryPolicy(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every configured source once, in configured order.
//
// Configuration, credential and session errors abort the run before any
// source is touched and are returned as the error. Any other failure is
// scoped to its source: it is recorded in the report and the next source
// is processed.
func (p *Pipeline) Run(ctx context.Context, trigger domain.Trigger) (*domain.RunReport, error) {
	if !p.begin() {
		return nil, domain.ErrRunInProgress
	}
	defer p.end()

	report := &domain.RunReport{
		ID:        p.newID(),
		Trigger:   trigger,
		StartedAt: p.now(),
	}
	log := logger.FromContext(ctx).With("run_id", report.ID)
	ctx = logger.WithContext(ctx, log)
	log.Info("run started", "trigger", trigger)

	defer p.finish(ctx, report)

	sources, err := p.loader.Load(ctx)
	if err != nil {
		return p.abort(report, ensureKind(fmt.Errorf("load sources: %w", err), domain.ErrConfig))
	}

	creds, err := p.credentials.Credentials(ctx)
	if err != nil {
		return p.abort(report, ensureKind(fmt.Errorf("load credentials: %w", err), domain.ErrConfig))
	}
	if err := creds.Validate(); err != nil {
		return p.abort(report, err)
	}

	session, err := p.openSession(ctx, creds)
	if err != nil {
		return p.abort(report, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("closing transfer session", "error", err)
		}
	}()

	for _, source := range sources.All() {
		result := p.runSource(ctx, report.ID, session, source)
		report.Results = append(report.Results, result)
	}

	return report, nil
}

// openSession connects to the remote store, retrying unreachable endpoints.
// Rejected credentials are not retried.
func (p *Pipeline) openSession(ctx context.Context, creds domain.Credentials) (driven.TransferSession, error) {
	log := logger.FromContext(ctx)

	var session driven.TransferSession
	err := p.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		s, err := p.sessions.Open(ctx, creds)
		if err != nil {
			err = ensureKind(err, domain.ErrConnect)
			log.Debug("open session failed", "store", p.sessions.Kind(), "attempt", attempt, "error", err)
			if errors.Is(err, domain.ErrAuth) {
				return fmt.Errorf("%w: %w", domain.ErrPermanent, err)
			}
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open %s session: %w", p.sessions.Kind(), err)
	}
	log.Debug("transfer session open", "store", p.sessions.Kind(), "host", creds.Host)
	return session, nil
}

// runSource drives one source through every stage, stopping at the first failure.
// A failed transfer leaves the artifact on disk.
func (p *Pipeline) runSource(
	ctx context.Context,
	runID string,
	session driven.TransferSession,
	source domain.SourceConfig,
) domain.SourceResult {
	log := logger.FromContext(ctx).With("source", source.Name)
	result := domain.SourceResult{
		Source:    source.Name,
		Artifact:  source.ArtifactName(),
		Stage:     domain.StageFetching,
		StartedAt: p.now(),
	}

	// 1. FETCH
	var table *domain.Table
	err := p.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		t, err := p.fetcher.Fetch(ctx, source)
		if err != nil {
			log.Debug("fetch failed", "attempt", attempt, "error", err)
			return err
		}
		table = t
		return nil
	})
	if err != nil {
		return p.failSource(runID, log, result, stageError(err, domain.ErrFetch))
	}
	result.Rows = table.NumRows()

	// 2. MATERIALIZE
	result.Stage = domain.StageMaterializing
	artifact, err := p.artifacts.Write(ctx, source.Name, result.Artifact, table)
	if err != nil {
		return p.failSource(runID, log, result, stageError(err, domain.ErrWrite))
	}
	result.Bytes = artifact.Size
	p.emit(runID, result, domain.EventDownloaded, nil)
	log.Debug("artifact written", "path", artifact.Path, "rows", artifact.Rows, "bytes", artifact.Size)

	// 3. TRANSFER
	result.Stage = domain.StageTransferring
	err = p.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := session.Store(ctx, artifact); err != nil {
			log.Debug("upload failed", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return p.failSource(runID, log, result, stageError(err, domain.ErrTransfer))
	}
	result.Uploaded = true
	p.emit(runID, result, domain.EventUploaded, nil)

	// 4. CLEANUP
	result.Stage = domain.StageCleaningUp
	if err := p.artifacts.Remove(ctx, artifact); err != nil {
		return p.failSource(runID, log, result, stageError(err, domain.ErrCleanup))
	}
	p.emit(runID, result, domain.EventDeleted, nil)

	result.Stage = domain.StageDone
	result.EndedAt = p.now()
	log.Info("source synchronised", "rows", result.Rows, "bytes", result.Bytes)
	return result
}

// failSource records err on the result at its current stage.
func (p *Pipeline) failSource(runID string, log *slog.Logger, result domain.SourceResult, err error) domain.SourceResult {
	result.Err = err
	result.EndedAt = p.now()
	p.emit(runID, result, domain.EventFailed, err)
	log.Warn("source failed", "stage", result.Stage, "kind", domain.KindOf(err), "error", err)
	return result
}

// abort marks the run fatal.
func (p *Pipeline) abort(report *domain.RunReport, err error) (*domain.RunReport, error) {
	report.Fatal = err
	return report, err
}

// finish stamps the end time, records history and logs a summary.
func (p *Pipeline) finish(ctx context.Context, report *domain.RunReport) {
	report.EndedAt = p.now()
	log := logger.FromContext(ctx)

	if report.Fatal != nil {
		log.Error("run aborted", "kind", domain.KindOf(report.Fatal), "error", report.Fatal)
	} else {
		log.Info("run finished",
			"sources", len(report.Results),
			"succeeded", report.Succeeded(),
			"failed", report.Failed(),
			"duration", report.Duration())
	}

	if p.runs == nil {
		return
	}
	// History must survive a cancelled run context.
	storeCtx := context.WithoutCancel(ctx)
	if err := p.runs.RecordRun(storeCtx, report); err != nil {
		log.Warn("recording run history", "error", err)
		return
	}
	if p.historyKeep > 0 {
		if err := p.runs.PruneHistory(storeCtx, p.historyKeep); err != nil {
			log.Warn("pruning run history", "error", err)
		}
	}
}

// emit forwards a milestone to the progress reporter, if any.
func (p *Pipeline) emit(runID string, result domain.SourceResult, event domain.ProgressEvent, err error) {
	if p.progress == nil {
		return
	}
	p.progress.Report(domain.Progress{
		RunID:    runID,
		Source:   result.Source,
		Artifact: result.Artifact,
		Event:    event,
		Stage:    result.Stage,
		Err:      err,
	})
}

// begin marks the pipeline as running; false if a run is already active.
func (p *Pipeline) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Pipeline) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
}

// stageError scopes err to the stage that failed. A run-fatal kind raised
// after the session is open is demoted to kind, since the run goes on.
func stageError(err error, kind error) error {
	if domain.IsFatal(err) {
		return fmt.Errorf("%w: %v", kind, err)
	}
	return ensureKind(err, kind)
}

// ensureKind wraps err with kind unless it already carries a pipeline error kind.
func ensureKind(err error, kind error) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
