package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/logger"
)

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Run the pipeline once and exit",
	Long: `Processes every source in the sources file once, in file order, then exits.
The exit status is non-zero if the run could not start or any source failed.`,
	Args: cobra.NoArgs,
	RunE: runManual,
}

func init() {
	rootCmd.AddCommand(manualCmd)
}

func runManual(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing services", "error", err)
		}
	}()

	report, err := a.runner.Run(cmd.Context(), domain.TriggerManual)
	printSummary(cmd.OutOrStdout(), report, err)
	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d sources failed: %w", n, len(report.Results), report.Err())
	}
	return nil
}
