// Package retry provides the single retry-with-backoff helper used by
// the content fetcher and the embedder, so backoff behaviour stays
// uniform instead of being duplicated per call site.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Options configures a retried operation.
type Options struct {
	// MaxAttempts bounds the total number of tries (initial + retries).
	// Zero or negative selects DefaultMaxAttempts.
	MaxAttempts int

	// BaseDelay is the initial backoff interval. Zero selects
	// DefaultBaseDelay. Jitter is applied by the backoff policy.
	BaseDelay time.Duration

	// MaxDelay caps the backoff interval. Zero selects DefaultMaxDelay.
	MaxDelay time.Duration

	// IsRetryable decides whether an error is worth retrying.
	// Nil retries every error.
	IsRetryable func(error) bool
}

// Defaults for Options zero values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
)

// Do runs operation with exponential backoff plus jitter until it
// succeeds, returns a non-retryable error, exhausts MaxAttempts, or
// ctx is cancelled.
func Do[T any](ctx context.Context, operation func() (T, error), opts Options) (T, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.BaseDelay
	policy.MaxInterval = opts.MaxDelay

	wrapped := func() (T, error) {
		v, err := operation()
		if err != nil && opts.IsRetryable != nil && !opts.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(opts.MaxAttempts)),
	)
}
