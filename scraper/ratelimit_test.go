package scraper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitTurnSpacesSameSource(t *testing.T) {
	t.Parallel()
	minDelay := 50 * time.Millisecond
	l := NewRateLimiterWithJitter(minDelay, time.Millisecond, 2*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.WaitTurn(ctx, "ebay"))
	first := time.Now()
	require.NoError(t, l.WaitTurn(ctx, "ebay"))

	assert.GreaterOrEqual(t, time.Since(first), minDelay)
}

func TestWaitTurnIsPerSource(t *testing.T) {
	t.Parallel()
	l := NewRateLimiterWithJitter(time.Second, 0, 0)
	ctx := context.Background()

	require.NoError(t, l.WaitTurn(ctx, "ebay"))
	start := time.Now()
	require.NoError(t, l.WaitTurn(ctx, "amazon"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitTurnQueuesConcurrentCallers(t *testing.T) {
	t.Parallel()
	minDelay := 30 * time.Millisecond
	l := NewRateLimiterWithJitter(minDelay, 0, 0)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.WaitTurn(ctx, "otto"))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, 4)
	earliest, latest := times[0], times[0]
	for _, ts := range times {
		if ts.Before(earliest) {
			earliest = ts
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	assert.GreaterOrEqual(t, latest.Sub(earliest), 3*minDelay)
}

func TestWaitTurnHonoursCancellation(t *testing.T) {
	t.Parallel()
	l := NewRateLimiterWithJitter(time.Hour, 0, 0)
	require.NoError(t, l.WaitTurn(context.Background(), "idealo"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitTurn(ctx, "idealo"), context.DeadlineExceeded)
}

func TestWaitTurnCancelledReleasesSlot(t *testing.T) {
	t.Parallel()
	l := NewRateLimiterWithJitter(time.Hour, 0, 0)
	require.NoError(t, l.WaitTurn(context.Background(), "idealo"))
	l.mu.Lock()
	first := l.last["idealo"]
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.WaitTurn(ctx, "idealo"), context.DeadlineExceeded)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.True(t, first.Equal(l.last["idealo"]), "cancelled wait kept its slot booked")
}

func TestWaitTurnCancelledFirstCallerForgetsSource(t *testing.T) {
	t.Parallel()
	l := NewRateLimiterWithJitter(time.Hour, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, l.WaitTurn(ctx, "otto"), context.Canceled)
	l.mu.Lock()
	_, booked := l.last["otto"]
	l.mu.Unlock()
	assert.False(t, booked)
}

func TestDefaultJitterRange(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(time.Second)
	assert.Equal(t, 100*time.Millisecond, l.jitterMin)
	assert.Equal(t, 500*time.Millisecond, l.jitterMax)
}
