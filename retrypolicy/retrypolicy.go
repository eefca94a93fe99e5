// Package retrypolicy wraps adapter calls with exponential backoff,
// retrying transient storage errors while never retrying errors that
// retrying cannot fix.
package retrypolicy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prn-tf/warden/adapter"
)

// Policy configures Do's backoff schedule.
type Policy struct {
	// Attempts is the total number of tries, including the first. 0 or
	// 1 means "no retry" — the call runs exactly once.
	Attempts int

	// BackoffBase is the delay before the second attempt; each
	// subsequent attempt doubles it, capped at BackoffMax.
	BackoffBase time.Duration

	// BackoffMax caps the computed backoff delay.
	BackoffMax time.Duration
}

// Default mirrors a conservative, three-attempt exponential backoff
// suitable for transient network/lock-contention errors.
func Default() Policy {
	return Policy{Attempts: 3, BackoffBase: 50 * time.Millisecond, BackoffMax: 2 * time.Second}
}

// nonRetryable are errors retrying can never resolve: the operation's
// outcome wouldn't change no matter how many times it's repeated.
func nonRetryable(err error) bool {
	return errors.Is(err, adapter.ErrTypeMismatch) ||
		errors.Is(err, adapter.ErrNotFound) ||
		errors.Is(err, adapter.ErrUnregisteredDriver) ||
		errors.Is(err, adapter.ErrDefaultDriverNotDefined)
}

// Do runs fn up to p.Attempts times, retrying on any error fn returns
// except the non-retryable classes above, and except when ctx is
// cancelled between attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if nonRetryable(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt < attempts-1 {
			delay := backoffFor(p, attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("retrypolicy: failed after %d attempts: %w", attempts, lastErr)
}

func backoffFor(p Policy, attempt int) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	delay := base * time.Duration(int64(1)<<uint(attempt))
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		delay = p.BackoffMax
	}
	return delay
}
