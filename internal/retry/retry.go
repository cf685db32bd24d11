package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy separates what to retry from how retrying runs: a fixed number of
// attempts with a fixed inter-attempt delay, optionally filtered by error.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// IsRetryable, when set, stops retrying for errors it rejects.
	IsRetryable func(error) bool
}

// Do runs op under policy and returns the last result. The error of the
// final attempt is returned unwrapped so callers can match it with errors.Is
// and errors.As.
func Do[T any](ctx context.Context, policy Policy, op func() (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	wrapped := func() (T, error) {
		value, err := op()
		if err != nil && policy.IsRetryable != nil && !policy.IsRetryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Delay)),
		backoff.WithMaxTries(uint(attempts)),
	)
}
