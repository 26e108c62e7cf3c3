package evaluator

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region constants

const maxRetries = 2 // max 2 retries = 3 total attempts

// #endregion

// #region policy

// RetryPolicy bounds how often an idempotent call is repeated while the backend is unavailable.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy gives a starting evaluator service a few seconds to come up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Backoff: 2 * time.Second}
}

// ShouldRetry reports whether another attempt is allowed.
// attempts counts the calls made so far, including the one that returned err.
func (p RetryPolicy) ShouldRetry(err error, attempts int) bool {
	if err == nil || attempts > p.MaxRetries {
		return false
	}
	return status.Code(err) == codes.Unavailable
}

// #endregion

// #region do

// Do runs fn until it succeeds, fails with a non-retryable error, or the policy is exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := 0
	for {
		err := fn(ctx)
		attempts++
		if !p.ShouldRetry(err, attempts) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Backoff * time.Duration(attempts)):
		}
	}
}

// #endregion
