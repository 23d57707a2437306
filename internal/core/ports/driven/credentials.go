package driven

import (
	"context"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// CredentialsProvider supplies remote store credentials.
type CredentialsProvider interface {
	// Credentials returns validated credentials or an error wrapping domain.ErrConfig.
	Credentials(ctx context.Context) (domain.Credentials, error)
}
