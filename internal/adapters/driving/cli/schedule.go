package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tablesync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/logger"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline every day at a fixed time",
	Long: `Runs the pipeline once a day at 17:11 local time (see --at and --timezone)
until interrupted. A run that is still going when the next trigger fires
causes that trigger to be skipped. On SIGINT or SIGTERM the scheduler stops
and waits for a run in progress to finish.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().String("at", "", "daily trigger time, HH:MM (default 17:11)")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing services", "error", err)
		}
	}()

	cmd.Printf("Pipeline scheduled daily at %s\n", a.settings.Schedule.At)

	if a.settings.Schedule.WatchSources && a.sources != nil {
		watchCtx, stopWatch := context.WithCancel(cmd.Context())
		defer stopWatch()
		go watchSources(watchCtx, a.sources)
	}

	err = a.scheduler.Start(cmd.Context())
	if errors.Is(err, context.Canceled) {
		cmd.Println("Scheduler stopped.")
		return nil
	}
	return err
}

// watchSources logs whether each edit of the sources file is loadable.
func watchSources(ctx context.Context, loader *file.SourceLoader) {
	err := file.WatchSources(ctx, loader, 0, func(set *domain.SourceSet, err error) {
		if err != nil {
			logger.Warn("sources file is invalid; the next run will fail until it is fixed",
				"path", loader.Path(), "error", err)
			return
		}
		logger.Info("sources file changed", "path", loader.Path(), "sources", set.Len())
	})
	if err != nil {
		logger.Warn("not watching sources file", "path", loader.Path(), "error", err)
	}
}
