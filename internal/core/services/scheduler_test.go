package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driving"
)

// --- Mock implementations for scheduler testing ---

// mockRunner implements driving.PipelineRunner for testing.
type mockRunner struct {
	mu       sync.Mutex
	calls    []domain.Trigger
	err      error
	failures []error
	block    chan struct{}
	started  chan struct{}
}

func newMockRunner() *mockRunner {
	return &mockRunner{started: make(chan struct{}, 16)}
}

func (m *mockRunner) Run(_ context.Context, trigger domain.Trigger) (*domain.RunReport, error) {
	m.mu.Lock()
	m.calls = append(m.calls, trigger)
	block := m.block
	m.mu.Unlock()

	m.started <- struct{}{}
	if block != nil {
		<-block
	}

	report := &domain.RunReport{ID: fmt.Sprintf("run-%d", m.callCount()), Trigger: trigger}
	for _, err := range m.failures {
		report.Results = append(report.Results, domain.SourceResult{Source: "weather", Stage: domain.StageFetching, Err: err})
	}
	if m.err != nil {
		report.Fatal = m.err
		return report, m.err
	}
	return report, nil
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ driving.PipelineRunner = (*mockRunner)(nil)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestScheduler(runner driving.PipelineRunner, clock *fakeClock, opts ...SchedulerOption) *Scheduler {
	cfg := domain.SchedulerConfig{
		At:       domain.MustParseTimeOfDay("17:11"),
		Location: time.UTC,
		Tick:     5 * time.Millisecond,
	}
	opts = append([]SchedulerOption{WithClock(clock.Now)}, opts...)
	return NewScheduler(cfg, runner, opts...)
}

// ==================== Scheduler Tests ====================

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(domain.SchedulerConfig{At: domain.MustParseTimeOfDay("08:00")}, newMockRunner())

	require.NotNil(t, s)
	assert.Equal(t, time.Local, s.config.Location)
	assert.Equal(t, time.Second, s.config.Tick)

	task := s.Task()
	assert.Equal(t, domain.TaskIDPipeline, task.ID)
	assert.Equal(t, "08:00", task.At.String())
}

func TestScheduler_CheckAndRun_NotDue(t *testing.T) {
	runner := newMockRunner()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestScheduler(runner, clock)
	s.task.NextRun = domain.MustParseTimeOfDay("17:11").NextOccurrence(clock.Now(), time.UTC)

	fired := s.checkAndRun(context.Background(), time.Date(2024, 5, 1, 17, 10, 59, 0, time.UTC))
	s.wg.Wait()

	assert.False(t, fired)
	assert.Equal(t, 0, runner.callCount())
}

// A simulated clock crosses 17:11 once per day; the runner runs once per day.
func TestScheduler_OncePerCalendarDay(t *testing.T) {
	runner := newMockRunner()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	s := newTestScheduler(runner, clock)
	s.task.NextRun = s.config.At.NextOccurrence(start, time.UTC)

	runsPerDay := make(map[string]int)
	ctx := context.Background()
	for now := start; now.Before(start.AddDate(0, 0, 3)); now = now.Add(30 * time.Second) {
		clock.Set(now)
		if s.checkAndRun(ctx, now) {
			runsPerDay[now.Format("2006-01-02")]++
		}
		s.wg.Wait()
	}

	assert.Equal(t, map[string]int{"2024-05-01": 1, "2024-05-02": 1, "2024-05-03": 1}, runsPerDay)
	assert.Equal(t, 3, runner.callCount())
	for _, trigger := range runner.calls {
		assert.Equal(t, domain.TriggerSchedule, trigger)
	}

	task := s.Task()
	assert.Equal(t, time.Date(2024, 5, 4, 17, 11, 0, 0, time.UTC), task.NextRun)
	assert.Equal(t, time.Date(2024, 5, 3, 17, 11, 0, 0, time.UTC), task.LastRun)
	assert.Empty(t, task.LastError)
}

// Ticks that land well after the trigger still fire only once.
func TestScheduler_CoarseTicks(t *testing.T) {
	runner := newMockRunner()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	s := newTestScheduler(runner, clock)
	s.task.NextRun = s.config.At.NextOccurrence(start, time.UTC)

	ctx := context.Background()
	for _, now := range []time.Time{
		time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC),
	} {
		s.checkAndRun(ctx, now)
		s.wg.Wait()
	}

	assert.Equal(t, 1, runner.callCount())
}

// A process that was down on the trigger does not catch up missed days.
func TestScheduler_NoCatchUp(t *testing.T) {
	runner := newMockRunner()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	s := newTestScheduler(runner, clock)
	s.task.NextRun = s.config.At.NextOccurrence(start, time.UTC)

	// Clock jumps four days ahead in one tick.
	jump := time.Date(2024, 5, 5, 9, 0, 0, 0, time.UTC)
	assert.True(t, s.checkAndRun(context.Background(), jump))
	s.wg.Wait()
	assert.False(t, s.checkAndRun(context.Background(), jump.Add(time.Minute)))

	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, time.Date(2024, 5, 5, 17, 11, 0, 0, time.UTC), s.Task().NextRun)
}

func TestScheduler_DropsOverlappingTrigger(t *testing.T) {
	runner := newMockRunner()
	runner.block = make(chan struct{})
	start := time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	s := newTestScheduler(runner, clock)
	s.task.NextRun = s.config.At.NextOccurrence(start, time.UTC)

	ctx := context.Background()
	require.True(t, s.checkAndRun(ctx, time.Date(2024, 5, 1, 17, 11, 0, 0, time.UTC)))
	<-runner.started

	// The next day's trigger fires while the first run is still blocked.
	require.True(t, s.checkAndRun(ctx, time.Date(2024, 5, 2, 17, 11, 0, 0, time.UTC)))

	close(runner.block)
	s.wg.Wait()

	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, 1, s.Task().Skipped)
}

func TestScheduler_RecordsRunOutcome(t *testing.T) {
	t.Run("fatal", func(t *testing.T) {
		runner := newMockRunner()
		runner.err = fmt.Errorf("%w: FTPHOST not set", domain.ErrConfig)
		clock := &fakeClock{now: time.Date(2024, 5, 1, 17, 11, 0, 0, time.UTC)}

		var observed []error
		s := newTestScheduler(runner, clock, WithRunObserver(func(_ *domain.RunReport, err error) {
			observed = append(observed, err)
		}))
		s.checkAndRun(context.Background(), clock.Now())
		s.wg.Wait()

		task := s.Task()
		assert.Contains(t, task.LastError, "FTPHOST")
		assert.True(t, task.LastSuccess.IsZero())
		require.Len(t, observed, 1)
		assert.ErrorIs(t, observed[0], domain.ErrConfig)
	})

	t.Run("source failure", func(t *testing.T) {
		runner := newMockRunner()
		runner.failures = []error{fmt.Errorf("%w: status 500", domain.ErrFetch)}
		clock := &fakeClock{now: time.Date(2024, 5, 1, 17, 11, 0, 0, time.UTC)}
		s := newTestScheduler(runner, clock)

		s.checkAndRun(context.Background(), clock.Now())
		s.wg.Wait()

		assert.Contains(t, s.Task().LastError, "weather")
	})

	t.Run("success", func(t *testing.T) {
		runner := newMockRunner()
		clock := &fakeClock{now: time.Date(2024, 5, 1, 17, 11, 0, 0, time.UTC)}
		s := newTestScheduler(runner, clock)

		s.checkAndRun(context.Background(), clock.Now())
		s.wg.Wait()

		task := s.Task()
		assert.Empty(t, task.LastError)
		assert.Equal(t, clock.Now(), task.LastSuccess)
	})
}

func TestScheduler_RunOnce(t *testing.T) {
	runner := newMockRunner()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestScheduler(runner, clock)

	report, err := s.RunOnce(context.Background(), domain.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, []domain.Trigger{domain.TriggerManual}, runner.calls)
	assert.Equal(t, clock.Now(), s.Task().LastRun)
}

func TestScheduler_RunOnce_BusySlot(t *testing.T) {
	runner := newMockRunner()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestScheduler(runner, clock)
	require.True(t, s.slot.TryAcquire(1))
	defer s.slot.Release(1)

	_, err := s.RunOnce(context.Background(), domain.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
	assert.Equal(t, 0, runner.callCount())
}

func TestScheduler_StartStop(t *testing.T) {
	runner := newMockRunner()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestScheduler(runner, clock)

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return !s.Task().NextRun.IsZero()
	}, time.Second, time.Millisecond)
	assert.Equal(t, time.Date(2024, 5, 1, 17, 11, 0, 0, time.UTC), s.Task().NextRun)

	// Moving the clock past the trigger makes the loop fire on its next tick.
	clock.Set(time.Date(2024, 5, 1, 17, 11, 1, 0, time.UTC))
	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not trigger the runner")
	}

	require.NoError(t, s.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, 1, runner.callCount())
}

func TestScheduler_StartReturnsOnContextCancel(t *testing.T) {
	runner := newMockRunner()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestScheduler(runner, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.NoError(t, s.Stop(), "Stop after exit is a no-op")
}

func TestScheduler_CancelWaitsForRunningPipeline(t *testing.T) {
	runner := newMockRunner()
	runner.block = make(chan struct{})
	clock := &fakeClock{now: time.Date(2024, 5, 1, 17, 11, 30, 0, time.UTC)}
	s := newTestScheduler(runner, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// NextRun is tomorrow; force it due.
	require.Eventually(t, func() bool {
		return !s.Task().NextRun.IsZero()
	}, time.Second, time.Millisecond)
	clock.Set(time.Date(2024, 5, 2, 17, 11, 0, 0, time.UTC))
	<-runner.started
	cancel()

	select {
	case <-done:
		t.Fatal("Start returned while a run was in progress")
	case <-time.After(20 * time.Millisecond):
	}

	close(runner.block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after the run finished")
	}
	assert.Equal(t, 1, runner.callCount())
}

func TestScheduler_StopWhileTriggerIsFiring(t *testing.T) {
	for i := 0; i < 20; i++ {
		runner := newMockRunner()
		clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
		s := newTestScheduler(runner, clock)

		done := make(chan error, 1)
		go func() {
			done <- s.Start(context.Background())
		}()
		require.Eventually(t, func() bool {
			return !s.Task().NextRun.IsZero()
		}, time.Second, time.Millisecond)

		clock.Set(time.Date(2024, 5, 1, 17, 11, 0, 0, time.UTC))
		require.NoError(t, s.Stop())

		// Any run the last tick started has finished by the time Stop returns.
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Start did not return after Stop")
		}
		assert.LessOrEqual(t, runner.callCount(), 1)
		assert.Len(t, runner.started, runner.callCount())

		s.mu.Lock()
		assert.False(t, s.running)
		s.mu.Unlock()
	}
}

func TestScheduler_StopTwice(t *testing.T) {
	runner := newMockRunner()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestScheduler(runner, clock)

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()
	require.Eventually(t, func() bool {
		return !s.Task().NextRun.IsZero()
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.NoError(t, <-done)
}

func TestScheduler_StartTwiceIsNoop(t *testing.T) {
	runner := newMockRunner()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := newTestScheduler(runner, clock)

	go func() { _ = s.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, time.Millisecond)

	assert.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}
