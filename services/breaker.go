package services

import (
	"errors"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"shop-scraper/utils"
	"sync"
	"time"
)

// Breaker suspends a source after repeated soft-blocked searches. A zero
// threshold disables it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*breakerState
}

type breakerState struct {
	blocked   int
	openUntil time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		states:    make(map[string]*breakerState),
	}
}

// Allow reports whether source may be searched now.
func (b *Breaker) Allow(source string) bool {
	if b == nil || b.threshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[source]
	return !ok || !b.now().Before(st.openUntil)
}

// SuspendedUntil returns when source becomes available again, or the zero time.
func (b *Breaker) SuspendedUntil(source string) time.Time {
	if b == nil {
		return time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[source]; ok && b.now().Before(st.openUntil) {
		return st.openUntil
	}
	return time.Time{}
}

// Record feeds one finished source search into the breaker.
func (b *Breaker) Record(outcome models.SourceOutcome) {
	if b == nil || b.threshold <= 0 || errors.Is(outcome.Err, scraper.ErrSuspended) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[outcome.Source]
	if !ok {
		st = &breakerState{}
		b.states[outcome.Source] = st
	}

	switch {
	case !outcome.Failed():
		st.blocked = 0
	case errors.Is(outcome.Err, scraper.ErrSoftBlock):
		st.blocked++
		if st.blocked >= b.threshold {
			st.openUntil = b.now().Add(b.cooldown)
			st.blocked = 0
			utils.Logger().Warn("source suspended after repeated soft blocks",
				"source", outcome.Source, "threshold", b.threshold, "until", st.openUntil.Format(time.TimeOnly))
		}
	}
}
