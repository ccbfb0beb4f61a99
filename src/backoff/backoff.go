// Package backoff holds the delay schedules shared by the health monitor and
// the realtime client.
package backoff

import (
	"context"
	"time"
)

const (
	maxShift    = 32
	maxDuration = time.Duration(1<<63 - 1)
)

// -----------------------------------------------------------------------------

// Exponential returns base * 2^exponent. Negative exponents yield base.
func Exponential(base time.Duration, exponent int) time.Duration {
	if base <= 0 {
		return 0
	}
	if exponent <= 0 {
		return base
	}
	if exponent > maxShift {
		exponent = maxShift
	}
	if base > maxDuration>>uint(exponent) {
		return maxDuration
	}
	return base << uint(exponent)
}

// -----------------------------------------------------------------------------

// Capped returns min(limit, base * 2^exponent). A non-positive limit means no cap.
func Capped(base time.Duration, exponent int, limit time.Duration) time.Duration {
	delay := Exponential(base, exponent)
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

// -----------------------------------------------------------------------------

// SleepWithContext waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was cut short.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
