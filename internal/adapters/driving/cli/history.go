package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/services"
	"github.com/custodia-labs/tablesync/internal/logger"
)

const historyTimeLayout = "2006-01-02 15:04:05"

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recent pipeline runs",
	Long: `Lists recent runs, most recent first. With a run ID, shows the outcome of
every source in that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", services.DefaultHistoryLimit, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing services", "error", err)
		}
	}()

	if len(args) == 1 {
		run, err := a.history.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		renderRun(cmd.OutOrStdout(), run)
		return nil
	}

	runs, err := a.history.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	renderRuns(cmd.OutOrStdout(), runs)
	return nil
}

func renderRuns(w io.Writer, runs []domain.RunReport) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Trigger", "Started", "Duration", "Sources", "OK", "Failed", "Error"})
	for i := range runs {
		run := &runs[i]
		t.AppendRow(table.Row{
			run.ID,
			run.Trigger,
			formatTime(run.StartedAt),
			run.Duration().Round(time.Millisecond),
			len(run.Results),
			run.Succeeded(),
			run.Failed(),
			errorText(run.Fatal),
		})
	}
	t.Render()
}

func renderRun(w io.Writer, run *domain.RunReport) {
	_, _ = fmt.Fprintf(w, "Run %s (%s) started %s, took %s\n",
		run.ID, run.Trigger, formatTime(run.StartedAt), run.Duration().Round(time.Millisecond))
	if run.Fatal != nil {
		_, _ = fmt.Fprintf(w, "Aborted [%s]: %v\n", domain.KindOf(run.Fatal), run.Fatal)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Artifact", "Status", "Stage", "Rows", "Bytes", "Error"})
	for _, res := range run.Results {
		t.AppendRow(table.Row{
			res.Source,
			res.Artifact,
			res.Status(),
			res.Stage,
			res.Rows,
			res.Bytes,
			errorText(res.Err),
		})
	}
	t.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(historyTimeLayout)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %v", domain.KindOf(err), err)
}
