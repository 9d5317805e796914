package retry

import (
	"context"
	"fmt"
	"time"
)

// Do calls fn up to attempts times, sleeping per b between calls, while
// retryable(err) holds. It returns the last error, or ctx.Err() if ctx ends
// during a wait. attempts below one is treated as one.
func Do(ctx context.Context, attempts int, b Backoff, retryable func(error) bool, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts-1 {
			break
		}
		t := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-t.C:
		}
	}
	return err
}
