package scraper

import (
	"context"
	"shop-scraper/utils"
	"sync"
	"time"
)

const (
	defaultJitterMin = 100 * time.Millisecond
	defaultJitterMax = 500 * time.Millisecond
)

// RateLimiter spaces requests to the same source by minDelay plus jitter.
// Sources do not affect each other.
type RateLimiter struct {
	minDelay  time.Duration
	jitterMin time.Duration
	jitterMax time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateLimiter adds the default jitter of 100ms to 500ms on top of
// minDelay.
func NewRateLimiter(minDelay time.Duration) *RateLimiter {
	return NewRateLimiterWithJitter(minDelay, defaultJitterMin, defaultJitterMax)
}

func NewRateLimiterWithJitter(minDelay, jitterMin, jitterMax time.Duration) *RateLimiter {
	return &RateLimiter{
		minDelay:  minDelay,
		jitterMin: jitterMin,
		jitterMax: jitterMax,
		last:      make(map[string]time.Time),
	}
}

// WaitTurn blocks until the caller may send its next request to source.
// The slot is reserved under the lock and slept for outside of it, so
// concurrent callers queue up one delay apart.
//
// A wait that is cancelled gives its slot back, unless a later caller has
// already queued behind it; the next search to the same source then is not
// held up by a request that was never sent.
func (l *RateLimiter) WaitTurn(ctx context.Context, source string) error {
	l.mu.Lock()
	now := time.Now()
	slot := now
	prev, hadPrev := l.last[source]
	if hadPrev {
		if earliest := prev.Add(l.minDelay + utils.Jitter(l.jitterMin, l.jitterMax)); earliest.After(slot) {
			slot = earliest
		}
	}
	l.last[source] = slot
	l.mu.Unlock()

	if err := utils.Sleep(ctx, slot.Sub(now)); err != nil {
		l.release(source, slot, prev, hadPrev)
		return err
	}
	return nil
}

func (l *RateLimiter) release(source string, slot, prev time.Time, hadPrev bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.last[source].Equal(slot) {
		return
	}
	if hadPrev {
		l.last[source] = prev
	} else {
		delete(l.last, source)
	}
}
