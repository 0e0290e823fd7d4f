package utils

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to attempts times and stops at the first success.
//
// Only errors accepted by retryable consume another attempt; anything else is
// returned as is. A nil retryable retries every error. There is no wait before
// the first attempt, after that the wait doubles from backoff:
//
//	attempt 1 fails → wait backoff
//	attempt 2 fails → wait 2*backoff
//
// The wait is cut short when ctx ends, in which case ctx.Err() is returned.
// The final error wraps the last failure, so errors.Is and errors.As still
// see the cause:
//
//	err := utils.Retry(ctx, 3, time.Second, scraper.IsRetryable, func(int) error {
//	    return fetchOnce(ctx, url)
//	})
func Retry(ctx context.Context, attempts int, backoff time.Duration, retryable func(error) bool, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}

		if attempt < attempts {
			wait := backoff << uint(attempt-1)
			Warn("Attempt %d/%d failed: %v, retrying in %v", attempt, attempts, lastErr, wait)
			if err := Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
