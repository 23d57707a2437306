package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tablesync/internal/adapters/driven/artifact/local"
	"github.com/custodia-labs/tablesync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/tablesync/internal/adapters/driven/fetch/httpcsv"
	"github.com/custodia-labs/tablesync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/tablesync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/tablesync/internal/adapters/driven/transfer/ftps"
	"github.com/custodia-labs/tablesync/internal/adapters/driven/transfer/s3"
	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
	"github.com/custodia-labs/tablesync/internal/core/ports/driving"
	"github.com/custodia-labs/tablesync/internal/core/services"
	"github.com/custodia-labs/tablesync/internal/logger"
)

// app holds the services a command needs.
type app struct {
	settings  *file.Settings
	sources   *file.SourceLoader
	runner    driving.PipelineRunner
	scheduler driving.Scheduler
	history   driving.HistoryService
	closers   []func() error
}

// Close releases resources held by the services.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// newApp builds the services for cmd. Replaced in tests.
var newApp = buildApp

// buildApp resolves settings from cmd's flags and wires every adapter.
func buildApp(cmd *cobra.Command) (*app, error) {
	settings, err := file.LoadSettings(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := configureLogging(cmd.ErrOrStderr(), settings); err != nil {
		return nil, err
	}
	if settings.File != "" {
		logger.Debug("settings loaded", "file", settings.File)
	}

	a := &app{settings: settings}

	artifacts, err := local.NewStore(settings.Workdir)
	if err != nil {
		return nil, err
	}

	runs, closeRuns, err := openRunStore(settings.History)
	if err != nil {
		return nil, err
	}
	if closeRuns != nil {
		a.closers = append(a.closers, closeRuns)
	}

	fetcher := httpcsv.NewFetcher(httpcsv.Config{
		Timeout:           settings.Fetch.Timeout,
		RequestsPerSecond: settings.Fetch.Rate,
		Burst:             settings.Fetch.Burst,
		UserAgent:         userAgent(),
	})

	a.sources = file.NewSourceLoader(settings.Sources)
	pipeline := services.NewPipeline(
		a.sources,
		file.NewEnvCredentials(),
		fetcher,
		artifacts,
		newSessionFactory(settings.Store),
		services.WithRunStore(runs, settings.History.Keep),
		services.WithProgress(newProgressPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())),
		services.WithRetryPolicy(services.RetryPolicy{
			Attempts:   settings.Retry.Attempts,
			Backoff:    settings.Retry.Backoff,
			MaxBackoff: settings.Retry.MaxBackoff,
		}),
	)
	a.runner = pipeline

	schedCfg, err := settings.SchedulerConfig()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	out := cmd.OutOrStdout()
	a.scheduler = services.NewScheduler(schedCfg, pipeline,
		services.WithRunObserver(func(report *domain.RunReport, err error) {
			printSummary(out, report, err)
		}))

	a.history = services.NewHistoryService(runs)
	return a, nil
}

// configureLogging applies the log settings and --verbose.
func configureLogging(w io.Writer, s *file.Settings) error {
	logger.SetOutput(w)
	if err := logger.SetLevel(s.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	if err := logger.SetFormat(s.Log.Format); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	logger.SetVerbose(verbose)
	return nil
}

// openRunStore returns the sqlite history store, or an in-memory one
// when history is disabled.
func openRunStore(h file.HistorySettings) (driven.RunStore, func() error, error) {
	if !h.Enabled {
		return memory.NewRunStore(), nil, nil
	}
	path := h.Path
	if path == "" {
		p, err := sqlite.DefaultPath()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: resolving history path: %w", domain.ErrConfig, err)
		}
		path = p
	}
	store, err := sqlite.NewStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run history %s: %w", path, err)
	}
	return store.RunStore(), store.Close, nil
}

// newSessionFactory selects the remote store adapter.
func newSessionFactory(s file.StoreSettings) driven.SessionFactory {
	if s.Kind == file.StoreS3 {
		return s3.NewFactory(s3.Config{
			Bucket:    s.S3.Bucket,
			Region:    s.S3.Region,
			Prefix:    s.RemoteDir,
			PathStyle: s.S3.PathStyle,
			Timeout:   s.S3.Timeout,
		})
	}
	return ftps.NewFactory(ftps.Config{
		ImplicitTLS:        s.FTPS.ImplicitTLS,
		Timeout:            s.FTPS.Timeout,
		RemoteDir:          s.RemoteDir,
		InsecureSkipVerify: s.FTPS.InsecureSkipVerify,
		DisableEPSV:        s.FTPS.DisableEPSV,
	})
}
