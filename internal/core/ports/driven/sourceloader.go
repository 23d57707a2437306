package driven

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// SourceLoader supplies the ordered source set.
// The runner calls it at the start of every run so edits take effect
// on the next run without a restart.
type SourceLoader interface {
	// Load returns the configured sources. Errors wrap domain.ErrConfig.
	Load(ctx context.Context) (*domain.SourceSet, error)
}
