package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driving"
	"github.com/custodia-labs/tablesync/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// RunObserver is told about every run the scheduler starts.
type RunObserver func(report *domain.RunReport, err error)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithRunObserver registers fn to receive each finished run.
func WithRunObserver(fn RunObserver) SchedulerOption {
	return func(s *Scheduler) {
		s.observer = fn
	}
}

// Scheduler triggers the pipeline once a day at a fixed wall-clock time.
// At most one run is in flight; a trigger that fires while a run is still
// going is dropped.
type Scheduler struct {
	config   domain.SchedulerConfig
	runner   driving.PipelineRunner
	observer RunObserver
	now      func() time.Time

	slot *semaphore.Weighted

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	task    domain.ScheduledTask
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(config domain.SchedulerConfig, runner driving.PipelineRunner, opts ...SchedulerOption) *Scheduler {
	defaults := domain.DefaultSchedulerConfig()
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.Tick <= 0 {
		config.Tick = defaults.Tick
	}

	s := &Scheduler{
		config: config,
		runner: runner,
		now:    time.Now,
		slot:   semaphore.NewWeighted(1),
		task: domain.ScheduledTask{
			ID:   domain.TaskIDPipeline,
			Name: "Daily Pipeline",
			At:   config.At,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop. It blocks until Stop is called or ctx
// is done, then waits for an in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.task.NextRun = s.config.At.NextOccurrence(s.now(), s.config.Location)
	next := s.task.NextRun
	s.mu.Unlock()

	logger.FromContext(ctx).Info("scheduler started",
		"at", s.config.At.String(),
		"location", s.config.Location.String(),
		"next_run", next.Format(time.RFC3339))

	err := s.run(ctx, stopCh)

	// Only the loop adds to wg, and it has returned.
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.stopCh = nil
	s.mu.Unlock()
	close(done)
	return err
}

// Stop gracefully shuts down the scheduler, waiting for a running pipeline.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// Task returns a snapshot of the scheduled task state.
func (s *Scheduler) Task() domain.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// RunOnce runs the pipeline synchronously in the scheduler's slot.
func (s *Scheduler) RunOnce(ctx context.Context, trigger domain.Trigger) (*domain.RunReport, error) {
	if !s.slot.TryAcquire(1) {
		return nil, domain.ErrRunInProgress
	}
	defer s.slot.Release(1)

	started := s.now()
	report, err := s.runner.Run(ctx, trigger)
	s.record(started, report, err)
	return report, err
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRun(ctx, s.now())
		}
	}
}

// checkAndRun fires the trigger if it is due at now. The next trigger is
// recomputed from now, so missed days are not caught up.
func (s *Scheduler) checkAndRun(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	if now.Before(s.task.NextRun) {
		s.mu.Unlock()
		return false
	}
	s.task.NextRun = s.config.At.NextOccurrence(now, s.config.Location)
	next := s.task.NextRun
	s.mu.Unlock()

	s.trigger(ctx, now, next)
	return true
}

// trigger starts a run in the background unless one is still in progress.
func (s *Scheduler) trigger(ctx context.Context, now, next time.Time) {
	log := logger.FromContext(ctx)

	if !s.slot.TryAcquire(1) {
		s.mu.Lock()
		s.task.Skipped++
		s.mu.Unlock()
		log.Warn("previous run still in progress, trigger dropped",
			"trigger_at", now.Format(time.RFC3339),
			"next_run", next.Format(time.RFC3339))
		return
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.slot.Release(1)

		report, err := s.runner.Run(runCtx, domain.TriggerSchedule)
		s.record(now, report, err)
		log.Info("next run scheduled", "next_run", next.Format(time.RFC3339))
	}()
}

// record updates task state and notifies the observer.
func (s *Scheduler) record(started time.Time, report *domain.RunReport, err error) {
	outcome := err
	if outcome == nil && report != nil {
		outcome = report.Err()
	}

	s.mu.Lock()
	s.task.LastRun = started
	if outcome != nil {
		s.task.LastError = outcome.Error()
	} else {
		s.task.LastError = ""
		s.task.LastSuccess = s.now()
	}
	s.mu.Unlock()

	if s.observer != nil && !errors.Is(err, domain.ErrRunInProgress) {
		s.observer(report, err)
	}
}
