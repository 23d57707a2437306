package httpcsv

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default limits for outbound fetches.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 5

	// defaultRetryAfter applies when a 429 carries no usable Retry-After.
	defaultRetryAfter = 60 * time.Second
	// maxRetryAfter bounds how long one response can pause the fetcher.
	maxRetryAfter = 10 * time.Minute
)

// RateLimiter throttles fetches with a token bucket and honours the
// backoff window a provider requests on 429 responses.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst. rps <= 0 disables the token bucket.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimit.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if wait := retryAt.Sub(r.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimit pauses requests for d. d <= 0 uses a 60s default.
func (r *RateLimiter) RecordRateLimit(d time.Duration) {
	if d <= 0 {
		d = defaultRetryAfter
	}
	if d > maxRetryAfter {
		d = maxRetryAfter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if at := r.now().Add(d); at.After(r.retryAt) {
		r.retryAt = at
	}
}

// BackoffUntil returns the end of the current backoff window, if any.
func (r *RateLimiter) BackoffUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryAt
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(h string, now time.Time) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		return at.Sub(now)
	}
	return 0
}
