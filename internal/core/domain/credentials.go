package domain

import (
	"fmt"
	"strings"
)

// Credentials are the connection secrets for the remote file store.
// They are passed explicitly to the session factory; nothing reads them
// from process-wide state.
type Credentials struct {
	// Host is the store address, optionally with a port.
	Host string

	// User is the login name (or access key for object stores).
	User string

	// Password is the login secret.
	Password string
}

// Missing returns the names of empty fields.
func (c Credentials) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	return missing
}

// Validate returns ErrConfig when any field is empty.
func (c Credentials) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing credentials: %s", ErrConfig, strings.Join(missing, ", "))
	}
	return nil
}

// String never includes the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.Host)
}
