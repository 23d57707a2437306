package file

import (
	"context"
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
)

// Ensure EnvCredentials implements the interface.
var _ driven.CredentialsProvider = (*EnvCredentials)(nil)

// Credential environment variables.
const (
	EnvHost     = "FTPHOST"
	EnvUser     = "FTPUSER"
	EnvPassword = "FTPPASS"
)

// EnvCredentials reads the remote store credentials from the environment
// on every call, so rotated values take effect on the next run.
type EnvCredentials struct{}

// NewEnvCredentials creates an environment credentials provider.
func NewEnvCredentials() *EnvCredentials {
	return &EnvCredentials{}
}

// Credentials returns FTPHOST, FTPUSER and FTPPASS. Any missing variable
// is an ErrConfig naming every variable that is not set.
func (e *EnvCredentials) Credentials(ctx context.Context) (domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credentials{}, err
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("FTP", ".", func(s string) string {
		switch s {
		case EnvHost, EnvUser, EnvPassword:
			return s
		}
		return ""
	}), nil); err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: reading environment: %w", domain.ErrConfig, err)
	}

	creds := domain.Credentials{
		Host:     strings.TrimSpace(k.String(EnvHost)),
		User:     k.String(EnvUser),
		Password: k.String(EnvPassword),
	}

	var missing []string
	for _, field := range creds.Missing() {
		switch field {
		case "host":
			missing = append(missing, EnvHost)
		case "user":
			missing = append(missing, EnvUser)
		case "password":
			missing = append(missing, EnvPassword)
		}
	}
	if len(missing) > 0 {
		return domain.Credentials{}, fmt.Errorf("%w: environment variables not set: %s",
			domain.ErrConfig, strings.Join(missing, ", "))
	}
	return creds, nil
}
