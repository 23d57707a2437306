package driven

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// ArtifactStore materializes tables as local files and removes them.
type ArtifactStore interface {
	// Write serialises table as CSV under name, replacing any existing file.
	// Errors wrap domain.ErrWrite.
	Write(ctx context.Context, source, name string, table *domain.Table) (domain.Artifact, error)

	// Remove deletes the artifact. Errors wrap domain.ErrCleanup.
	Remove(ctx context.Context, artifact domain.Artifact) error
}
