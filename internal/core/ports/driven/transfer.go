package driven

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// SessionFactory opens authenticated, encrypted sessions to the remote store.
type SessionFactory interface {
	// Open establishes one session.
	// Errors wrap domain.ErrConnect or domain.ErrAuth.
	Open(ctx context.Context, creds domain.Credentials) (TransferSession, error)

	// Kind names the store implementation (e.g., "ftps", "s3").
	Kind() string
}

// TransferSession is one connection to the remote store.
// It is used by a single run, one Store call at a time, and must be closed
// at the end of the run even if a source failed.
type TransferSession interface {
	// Store uploads the artifact's full content under its own name,
	// overwriting any remote file of that name. Errors wrap domain.ErrTransfer.
	Store(ctx context.Context, artifact domain.Artifact) error

	// Close releases the connection. The session is unusable afterwards.
	Close() error
}
