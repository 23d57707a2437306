package driving

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// PipelineRunner runs fetch -> materialize -> transfer -> cleanup over all sources.
type PipelineRunner interface {
	// Run processes every configured source once, in order.
	// The error is non-nil only when the run could not start processing
	// sources (configuration, credentials, session); per-source failures
	// are reported in the returned report.
	Run(ctx context.Context, trigger domain.Trigger) (*domain.RunReport, error)
}
