package services

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// RetryPolicy bounds how often the runner repeats a failed fetch, upload
// or connect. Errors wrapping domain.ErrPermanent are never retried.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Backoff is the delay before the second try; it doubles on each retry.
	Backoff time.Duration

	// MaxBackoff caps a single delay. Zero means uncapped.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns three attempts with 1s, 2s delays.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   3,
		Backoff:    time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// NoRetry returns a policy that tries once.
func NoRetry() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

// backoff builds the go-retry backoff for this policy.
func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}

	b := retry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	return retry.WithMaxRetries(uint64(attempts-1), b) //nolint:gosec // attempts >= 1
}

// Do calls fn until it succeeds, fails permanently, or attempts run out.
// fn receives the 1-based attempt number. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil || domain.IsPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}
