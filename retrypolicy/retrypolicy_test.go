package retrypolicy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/warden/adapter"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	ctx := context.Background()
	calls := 0

	err := Do(ctx, Policy{Attempts: 3, BackoffBase: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	calls := 0
	transient := errors.New("transient")

	err := Do(ctx, Policy{Attempts: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttemptsAndWrapsLastError(t *testing.T) {
	ctx := context.Background()
	calls := 0
	sentinel := errors.New("always fails")

	err := Do(ctx, Policy{Attempts: 2, BackoffBase: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 2, calls)
}

func TestDoDoesNotRetryNonRetryableErrors(t *testing.T) {
	for _, nonRetryableErr := range []error{
		adapter.ErrTypeMismatch,
		adapter.ErrNotFound,
		adapter.ErrUnregisteredDriver,
		adapter.ErrDefaultDriverNotDefined,
	} {
		ctx := context.Background()
		calls := 0

		err := Do(ctx, Policy{Attempts: 5, BackoffBase: time.Millisecond}, func(ctx context.Context) error {
			calls++
			return nonRetryableErr
		})

		require.ErrorIs(t, err, nonRetryableErr)
		require.Equal(t, 1, calls, "non-retryable error must short-circuit after the first attempt")
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	ctx := context.Background()
	calls := 0

	err := Do(ctx, Policy{}, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	transient := errors.New("transient")

	err := Do(ctx, Policy{Attempts: 5, BackoffBase: 50 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return transient
	})

	require.Error(t, err)
	require.Equal(t, 1, calls, "cancellation must be observed before scheduling another attempt")
}
