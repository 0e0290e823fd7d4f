package services

import (
	"errors"
	"fmt"
	"shop-scraper/models"
	"shop-scraper/scraper"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func blocked(source string) models.SourceOutcome {
	return models.SourceOutcome{Source: source, Err: fmt.Errorf("%s: all pages failed: %w", source, scraper.ErrSoftBlock)}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(2, 10*time.Minute)
	b.now = func() time.Time { return now }

	b.Record(blocked("amazon"))
	assert.True(t, b.Allow("amazon"))
	b.Record(blocked("amazon"))
	assert.False(t, b.Allow("amazon"))
	assert.Equal(t, now.Add(10*time.Minute), b.SuspendedUntil("amazon"))
	assert.True(t, b.Allow("ebay"))

	now = now.Add(10 * time.Minute)
	assert.True(t, b.Allow("amazon"))
	assert.True(t, b.SuspendedUntil("amazon").IsZero())
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	t.Parallel()
	b := NewBreaker(2, time.Hour)

	b.Record(blocked("otto"))
	b.Record(models.SourceOutcome{Source: "otto", Items: []models.Item{{Title: "x", Link: "y"}}})
	b.Record(blocked("otto"))
	assert.True(t, b.Allow("otto"))
}

func TestBreakerIgnoresOtherFailures(t *testing.T) {
	t.Parallel()
	b := NewBreaker(1, time.Hour)

	b.Record(models.SourceOutcome{Source: "idealo", Err: scraper.ErrTimeout})
	b.Record(models.SourceOutcome{Source: "idealo", Err: errors.New("boom")})
	assert.True(t, b.Allow("idealo"))
}

func TestBreakerDisabled(t *testing.T) {
	t.Parallel()
	b := NewBreaker(0, time.Hour)
	for range 5 {
		b.Record(blocked("ebay"))
	}
	assert.True(t, b.Allow("ebay"))

	var nilBreaker *Breaker
	assert.True(t, nilBreaker.Allow("ebay"))
	nilBreaker.Record(blocked("ebay"))
}
