/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry computes retry delays and runs operations with retries.
package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Policy produces a fresh backoff.BackOff for every retried operation.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc lets a plain function serve as a Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// IsRetryable reports whether an error is worth another attempt.
type IsRetryable func(error) bool

// RetryableFunc is a single attempt of a retried operation.
type RetryableFunc func(ctx context.Context) error

// DoWithRetry runs fn until it succeeds, the policy stops, isRetryable rejects the error or ctx is done.
// A nil isRetryable retries every error. notify, if not nil, is called before each wait.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := backoff.WithContext(p.NewBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn(b.Context())
		if err == nil || isRetryable == nil || isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b, notify)
}
