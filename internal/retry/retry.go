// Package retry paces retry passes with an injectable backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// NoDelay returns a policy that retries immediately.
func NoDelay() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// DefaultBackOff is the exponential policy used when none is configured.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

// OrDefault returns b, or DefaultBackOff when b is nil.
func OrDefault(b backoff.BackOff) backoff.BackOff {
	if b == nil {
		return DefaultBackOff()
	}
	return b
}

// Wait sleeps for the next interval of b. It returns false when the policy
// says to stop, and ctx.Err() if ctx ends first.
func Wait(ctx context.Context, b backoff.BackOff) (bool, error) {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return false, nil
	}
	if d <= 0 {
		return true, ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}
