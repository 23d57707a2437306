package driven

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// Fetcher retrieves a table from a remote data provider.
type Fetcher interface {
	// Fetch makes one request for the source and parses the payload.
	// Errors wrap domain.ErrFetch; errors that will not clear on retry
	// also wrap domain.ErrPermanent.
	Fetch(ctx context.Context, source domain.SourceConfig) (*domain.Table, error)
}
