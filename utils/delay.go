package utils

import (
	"context"
	"math/rand"
	"time"
)

// Jitter returns a random duration in [min, max].
//
// Both bounds are inclusive. When max is not above min the result is min, so
// a zero range turns the jitter off instead of panicking in rand.Int63n.
// Random spacing keeps request intervals from forming a fixed pattern:
//
//	Jitter(500*time.Millisecond, 1500*time.Millisecond) // somewhere in 0.5s..1.5s
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// Sleep blocks for d or until ctx is done.
//
// It returns nil once the full duration has passed and ctx.Err() when the
// context ends first. A non-positive d does not sleep at all but still
// reports a context that is already done, so callers can use it as a
// cancellation check between attempts.
func Sleep(ctx context.Context, d time.Duration) error {
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
