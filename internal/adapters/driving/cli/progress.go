package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
)

// newProgressPrinter prints one line per milestone, as the pipeline reaches it.
func newProgressPrinter(out, errOut io.Writer) driven.ProgressReporter {
	return driven.ProgressFunc(func(p domain.Progress) {
		switch p.Event {
		case domain.EventDownloaded, domain.EventUploaded, domain.EventDeleted:
			_, _ = fmt.Fprintf(out, "File %s has been %s\n", p.Artifact, p.Event)
		case domain.EventFailed:
			_, _ = fmt.Fprintf(errOut, "File %s failed while %s: %v\n", p.Artifact, p.Stage, p.Err)
		}
	})
}

// printSummary prints the outcome of a run.
func printSummary(w io.Writer, report *domain.RunReport, err error) {
	switch {
	case report == nil && err != nil:
		_, _ = fmt.Fprintf(w, "Run did not start: %v\n", err)
	case report == nil:
	case report.Fatal != nil:
		_, _ = fmt.Fprintf(w, "Run %s aborted: %v\n", shortID(report.ID), report.Fatal)
	default:
		_, _ = fmt.Fprintf(w, "Run %s finished in %s: %d of %d sources synchronised\n",
			shortID(report.ID), report.Duration().Round(time.Millisecond),
			report.Succeeded(), len(report.Results))
	}
}

// shortID abbreviates a run id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
