// Package retry absorbs transient provider-side throttling with bounded
// exponential backoff. It wraps only remote API calls; store writes are never
// retried here.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

const (
	// DefaultMaxRetries bounds the retry budget per wrapped call.
	DefaultMaxRetries = 5
	// DefaultInitialDelay is the first backoff; it doubles on every retry.
	DefaultInitialDelay = time.Second
)

// RateLimitError marks a remote-call failure as retryable throttling. Remote
// client wrappers attach it so classification is structural instead of
// depending on exact error-message wording.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// ExhaustedError reports that the retry budget was spent on rate-limit
// failures; it wraps the last cause.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts due to rate limiting: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsRateLimit classifies an error as provider throttling. Structured types
// are checked first (our own marker plus go-github's rate-limit errors); the
// message-substring check remains as a fallback for clients that surface
// throttling only as text.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var ghRate *github.RateLimitError
	if errors.As(err, &ghRate) {
		return true
	}
	var ghAbuse *github.AbuseRateLimitError
	if errors.As(err, &ghAbuse) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit")
}

// Options tunes a WithRetry call. Zero values take the defaults; Sleep is
// injectable for tests and defaults to a context-aware timer wait.
type Options struct {
	MaxRetries   int
	InitialDelay time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do invokes fn, retrying with doubling delays while failures classify as
// rate limiting. Non-rate-limit failures return immediately with zero sleeps.
// When the budget is spent on rate-limit failures, the result is an
// ExhaustedError wrapping the last cause.
func Do[T any](ctx context.Context, opts Options, fn func() (T, error)) (T, error) {
	var zero T
	opts = opts.withDefaults()
	delay := opts.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !IsRateLimit(err) {
			return zero, err
		}
		lastErr = err

		if attempt == opts.MaxRetries {
			break
		}
		if err := opts.Sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
	}
	return zero, &ExhaustedError{Attempts: opts.MaxRetries, Err: lastErr}
}
