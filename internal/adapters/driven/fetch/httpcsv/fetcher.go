// Package httpcsv fetches CSV tables over HTTP(S) or from local files.
package httpcsv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
	"github.com/custodia-labs/tablesync/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.Fetcher = (*Fetcher)(nil)

// DefaultTimeout bounds one fetch attempt.
const DefaultTimeout = 60 * time.Second

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds one request including reading the body.
	Timeout time.Duration

	// RequestsPerSecond and Burst shape the outbound token bucket.
	RequestsPerSecond float64
	Burst             int

	// UserAgent is sent with every request.
	UserAgent string

	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

// DefaultConfig returns the fetcher defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
		UserAgent:         "tablesync",
	}
}

// Fetcher retrieves a source's table from its URL.
type Fetcher struct {
	client    *http.Client
	limiter   *RateLimiter
	userAgent string
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultConfig().UserAgent
	}
	return &Fetcher{
		client:    client,
		limiter:   NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		userAgent: ua,
	}
}

// Fetch downloads and parses the source's table. PARAMS are applied as
// read options. Errors wrap domain.ErrFetch; those retrying cannot fix
// also wrap domain.ErrPermanent.
func (f *Fetcher) Fetch(ctx context.Context, source domain.SourceConfig) (*domain.Table, error) {
	opts, err := parseOptions(source.Params)
	if err != nil {
		return nil, fetchError(source, fmt.Errorf("%w: %w", domain.ErrPermanent, err))
	}

	u, err := url.Parse(source.URL)
	if err != nil {
		return nil, fetchError(source, fmt.Errorf("%w: invalid URL: %w", domain.ErrPermanent, err))
	}

	var table *domain.Table
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		table, err = f.fetchHTTP(ctx, source.URL, opts)
	case u.Scheme == "file":
		table, err = readFile(u.Path, opts)
	case u.Scheme == "" || isDriveLetter(u.Scheme):
		table, err = readFile(source.URL, opts)
	default:
		err = fmt.Errorf("%w: unsupported scheme %q", domain.ErrPermanent, u.Scheme)
	}
	if err != nil {
		return nil, fetchError(source, err)
	}

	logger.FromContext(ctx).Debug("table fetched",
		"source", source.Name, "columns", len(table.Columns), "rows", table.NumRows())
	return table, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string, opts readOptions) (*domain.Table, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", domain.ErrPermanent, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, f.limiter); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}
	return decodeTable(resp.Body, opts)
}

// checkStatus classifies non-2xx responses. Client errors other than
// 408 and 429 are permanent.
func checkStatus(resp *http.Response, limiter *RateLimiter) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("unexpected status %s", resp.Status)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		limiter.RecordRateLimit(parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
		return err
	case resp.StatusCode == http.StatusServiceUnavailable:
		if d := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); d > 0 {
			limiter.RecordRateLimit(d)
		}
		return err
	case resp.StatusCode == http.StatusRequestTimeout:
		return err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %w", domain.ErrPermanent, err)
	default:
		return err
	}
}

func readFile(path string, opts readOptions) (*domain.Table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", domain.ErrPermanent, err)
		}
		return nil, err
	}
	defer f.Close()
	return decodeTable(f, opts)
}

// isDriveLetter reports whether a parsed scheme is really a Windows drive.
func isDriveLetter(scheme string) bool {
	return len(scheme) == 1 && strings.ContainsAny(strings.ToLower(scheme), "abcdefghijklmnopqrstuvwxyz")
}

func fetchError(source domain.SourceConfig, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrFetch, source.Name, err)
}
