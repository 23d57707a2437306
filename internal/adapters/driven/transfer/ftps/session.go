// Package ftps uploads artifacts to an FTP server over TLS.
package ftps

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
	"github.com/custodia-labs/tablesync/internal/logger"
)

// Ensure interfaces are implemented.
var (
	_ driven.SessionFactory  = (*Factory)(nil)
	_ driven.TransferSession = (*Session)(nil)
)

// Default ports.
const (
	DefaultPort         = 21
	DefaultImplicitPort = 990

	// DefaultTimeout bounds dialing and each control command.
	DefaultTimeout = 30 * time.Second
)

// Config configures FTPS sessions.
type Config struct {
	// ImplicitTLS starts TLS before the FTP greeting instead of AUTH TLS.
	ImplicitTLS bool

	// Timeout bounds the dial and control exchanges.
	Timeout time.Duration

	// RemoteDir is the directory uploads go to. Empty means the login directory.
	RemoteDir string

	// InsecureSkipVerify disables server certificate checks.
	InsecureSkipVerify bool

	// DisableEPSV falls back to PASV for servers that mishandle EPSV.
	DisableEPSV bool
}

// conn is the part of *ftp.ServerConn the session uses.
type conn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// dialFunc connects to addr. Replaced in tests.
type dialFunc func(addr string, options ...ftp.DialOption) (conn, error)

func dialFTP(addr string, options ...ftp.DialOption) (conn, error) {
	c, err := ftp.Dial(addr, options...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Factory opens FTPS sessions.
type Factory struct {
	cfg  Config
	dial dialFunc
}

// NewFactory creates a session factory.
func NewFactory(cfg Config) *Factory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Factory{cfg: cfg, dial: dialFTP}
}

// Kind returns "ftps".
func (f *Factory) Kind() string {
	return "ftps"
}

// Open connects, negotiates TLS, logs in and enables the protected data
// channel (PBSZ 0, PROT P).
func (f *Factory) Open(ctx context.Context, creds domain.Credentials) (driven.TransferSession, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	host, addr, err := f.address(creds.Host)
	if err != nil {
		return nil, err
	}

	s := &Session{
		factory: f,
		creds:   creds,
		host:    host,
		addr:    addr,
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("ftps session open", "addr", addr, "user", creds.User, "implicit_tls", f.cfg.ImplicitTLS)
	return s, nil
}

// address splits FTPHOST into the TLS server name and the dial address.
func (f *Factory) address(hostport string) (host, addr string, err error) {
	port := DefaultPort
	if f.cfg.ImplicitTLS {
		port = DefaultImplicitPort
	}

	host = hostport
	if h, p, splitErr := net.SplitHostPort(hostport); splitErr == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n <= 0 || n > 65535 {
			return "", "", fmt.Errorf("%w: invalid port in FTPHOST %q", domain.ErrConfig, hostport)
		}
		host, port = h, n
	}
	return host, net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func (f *Factory) options(ctx context.Context, host string) []ftp.DialOption {
	tlsConfig := &tls.Config{
		ServerName:         host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: f.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test servers
	}
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.cfg.Timeout),
		ftp.DialWithDisabledEPSV(f.cfg.DisableEPSV),
	}
	if f.cfg.ImplicitTLS {
		return append(opts, ftp.DialWithTLS(tlsConfig))
	}
	return append(opts, ftp.DialWithExplicitTLS(tlsConfig))
}

// Session is one logged-in FTPS connection. A connection lost during an
// upload is re-established on the next Store.
type Session struct {
	factory *Factory
	creds   domain.Credentials
	host    string
	addr    string

	mu     sync.Mutex
	conn   conn
	closed bool
}

func (s *Session) connect(ctx context.Context) error {
	f := s.factory
	c, err := f.dial(s.addr, f.options(ctx, s.host)...)
	if err != nil {
		return classifyDial(s.addr, err)
	}
	if err := c.Login(s.creds.User, s.creds.Password); err != nil {
		_ = c.Quit()
		return classifyLogin(s.creds, err)
	}
	if f.cfg.RemoteDir != "" {
		if err := c.ChangeDir(f.cfg.RemoteDir); err != nil {
			_ = c.Quit()
			return fmt.Errorf("%w: %w: change to %s: %w", domain.ErrConnect, domain.ErrPermanent, f.cfg.RemoteDir, err)
		}
	}
	s.conn = c
	return nil
}

// Store uploads the artifact under its own name, replacing any remote file.
func (s *Session) Store(ctx context.Context, artifact domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: %w: session closed", domain.ErrTransfer, domain.ErrPermanent)
	}
	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			// Mid-run the failure belongs to this upload, not the session.
			return fmt.Errorf("%w: reconnect: %v", domain.ErrTransfer, err)
		}
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %w", domain.ErrTransfer, domain.ErrPermanent, artifact.Name, err)
	}
	defer f.Close()

	remote := path.Base(artifact.Name)
	if err := s.conn.Stor(remote, f); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return fmt.Errorf("%w: %w: %s: %w", domain.ErrTransfer, domain.ErrPermanent, remote, err)
		}
		if !errors.As(err, &tpErr) {
			// Connection is unusable; reconnect on the next attempt.
			_ = s.conn.Quit()
			s.conn = nil
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrTransfer, remote, err)
	}

	logger.FromContext(ctx).Debug("artifact stored", "artifact", remote, "bytes", artifact.Size)
	return nil
}

// Close sends QUIT. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Quit()
	s.conn = nil
	return err
}

func classifyDial(addr string, err error) error {
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) {
		return fmt.Errorf("%w: %w: %s: %w", domain.ErrConnect, domain.ErrPermanent, addr, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrConnect, addr, err)
}

func classifyLogin(creds domain.Credentials, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case ftp.StatusNotLoggedIn, ftp.StatusInvalidCredentials:
			return fmt.Errorf("%w: %s: %w", domain.ErrAuth, creds, err)
		}
	}
	return fmt.Errorf("%w: login %s: %w", domain.ErrConnect, creds, err)
}
