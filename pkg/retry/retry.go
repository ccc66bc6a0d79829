// Package retry wraps github.com/cenkalti/backoff/v4 with the
// exponential-backoff-with-jitter policy spec sections 4.6, 5, and 7 repeat
// for every best-effort or transient-locking retry path in the pipeline: base
// 20ms, up to 6 attempts, jittered.
//
// Grounded on the teacher's internal/dispatcher/retry_manager.go, which owns
// the same "retry the operation, give up after N attempts, log the give-up"
// shape for its own delivery retries.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// BaseInterval and MaxAttempts are the defaults named throughout spec
// sections 4.6/5/7 ("base 20ms, up to 6 attempts, jitter").
const (
	BaseInterval = 20 * time.Millisecond
	MaxAttempts  = 6
)

// NewBackOff builds the standard policy: exponential growth from
// BaseInterval, randomized by backoff's default jitter factor, capped at
// MaxAttempts and bound to ctx.
func NewBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = BaseInterval
	eb.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall-clock
	return backoff.WithContext(backoff.WithMaxRetries(eb, MaxAttempts-1), ctx)
}

// Do runs fn under the standard policy. isRetryable decides whether a
// non-nil error should be retried; when it returns false, Do returns
// immediately instead of burning through the remaining attempts.
func Do(ctx context.Context, isRetryable func(error) bool, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, NewBackOff(ctx))
}

// DoWithWarn is Do, but logs a warning naming component/operation once all
// attempts are exhausted — the "exposed as warning if retries exhaust" clause
// in spec section 4.6.
func DoWithWarn(ctx context.Context, logger *logrus.Logger, component, operation string, isRetryable func(error) bool, fn func() error) error {
	err := Do(ctx, isRetryable, fn)
	if err != nil && logger != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"component": component,
			"operation": operation,
		}).Warn("retries exhausted")
	}
	return err
}
