package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tablesync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driving"
	"github.com/custodia-labs/tablesync/internal/core/services"
)

// mockRunner implements driving.PipelineRunner for testing.
type mockRunner struct {
	report   *domain.RunReport
	err      error
	triggers []domain.Trigger
}

var _ driving.PipelineRunner = (*mockRunner)(nil)

func (m *mockRunner) Run(_ context.Context, trigger domain.Trigger) (*domain.RunReport, error) {
	m.triggers = append(m.triggers, trigger)
	return m.report, m.err
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	startErr error
	started  bool
	blockCtx bool
}

var _ driving.Scheduler = (*mockScheduler)(nil)

func (m *mockScheduler) Start(ctx context.Context) error {
	m.started = true
	if m.blockCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.startErr
}

func (m *mockScheduler) Stop() error {
	return nil
}

// mockHistory implements driving.HistoryService for testing.
type mockHistory struct {
	runs      []domain.RunReport
	run       *domain.RunReport
	err       error
	lastLimit int
	lastID    string
}

var _ driving.HistoryService = (*mockHistory)(nil)

func (m *mockHistory) Recent(_ context.Context, limit int) ([]domain.RunReport, error) {
	m.lastLimit = limit
	return m.runs, m.err
}

func (m *mockHistory) Get(_ context.Context, id string) (*domain.RunReport, error) {
	m.lastID = id
	return m.run, m.err
}

// setupApp makes every command use a.
func setupApp(t *testing.T, a *app) {
	t.Helper()
	if a.settings == nil {
		a.settings = &file.Settings{Schedule: file.ScheduleSettings{At: domain.DefaultTriggerTime}}
	}
	old := newApp
	newApp = func(_ *cobra.Command) (*app, error) { return a, nil }
	t.Cleanup(func() {
		newApp = old
		historyLimit = services.DefaultHistoryLimit
	})
}

// runCLI executes args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(context.Background(), t, args...)
}

func runCLIContext(ctx context.Context, t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := execute(ctx, args)
	return out.String(), errOut.String(), err
}
