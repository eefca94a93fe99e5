package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/warden/adapter/memory"
	"github.com/prn-tf/warden/event"
	"github.com/prn-tf/warden/key"
)

func newTestLock(t *testing.T, ad *memory.LockAdapter, ttl time.Duration) *Lock {
	t.Helper()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("test").Key("resource")
	return New(k, ad, dispatcher, ttl, zerolog.Nop())
}

func TestLockAcquireReleaseCycle(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	l := newTestLock(t, ad, time.Minute)

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	held, err := l.IsHeld(ctx)
	require.NoError(t, err)
	require.True(t, held)

	ok, err = l.Release(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	held, err = l.IsHeld(ctx)
	require.NoError(t, err)
	require.False(t, held)
}

func TestLockCannotBeAcquiredByAnotherOwnerWhileHeld(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("test").Key("resource")

	a := NewWithOwner(k, "owner-a", ad, dispatcher, time.Minute, zerolog.Nop())
	b := NewWithOwner(k, "owner-b", ad, dispatcher, time.Minute, zerolog.Nop())

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = b.Release(ctx)
	require.NoError(t, err)
	require.False(t, ok, "release must fail when not the holder")
}

func TestLockOrFailSurface(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("test").Key("resource")

	a := NewWithOwner(k, "owner-a", ad, dispatcher, time.Minute, zerolog.Nop())
	b := NewWithOwner(k, "owner-b", ad, dispatcher, time.Minute, zerolog.Nop())

	require.NoError(t, a.AcquireOrFail(ctx))

	err := b.AcquireOrFail(ctx)
	require.True(t, errors.Is(err, ErrFailedAcquire))

	err = b.ReleaseOrFail(ctx)
	require.True(t, errors.Is(err, ErrFailedRelease))

	err = b.RefreshOrFail(ctx)
	require.True(t, errors.Is(err, ErrFailedRefresh))
}

func TestLockAcquireBlockingSucceedsOnceReleased(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("test").Key("resource")

	holder := NewWithOwner(k, "owner-a", ad, dispatcher, time.Minute, zerolog.Nop())
	waiter := NewWithOwner(k, "owner-b", ad, dispatcher, time.Minute, zerolog.Nop())

	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = holder.Release(ctx)
	}()

	ok, err = waiter.AcquireBlocking(ctx, BlockingOptions{
		Time:     500 * time.Millisecond,
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockAcquireBlockingTimesOut(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("test").Key("resource")

	holder := NewWithOwner(k, "owner-a", ad, dispatcher, time.Minute, zerolog.Nop())
	waiter := NewWithOwner(k, "owner-b", ad, dispatcher, time.Minute, zerolog.Nop())

	_, err := holder.Acquire(ctx)
	require.NoError(t, err)

	ok, err := waiter.AcquireBlocking(ctx, BlockingOptions{
		Time:     30 * time.Millisecond,
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.False(t, ok)

	err = waiter.AcquireBlockingOrFail(ctx, BlockingOptions{
		Time:     10 * time.Millisecond,
		Interval: 2 * time.Millisecond,
	})
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestLockForceReleaseIgnoresOwner(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	l := newTestLock(t, ad, time.Minute)

	_, err := l.Acquire(ctx)
	require.NoError(t, err)

	had, err := l.ForceRelease(ctx)
	require.NoError(t, err)
	require.True(t, had)

	held, err := l.IsHeld(ctx)
	require.NoError(t, err)
	require.False(t, held)
}

func TestLockRunReleasesEvenOnBodyError(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	l := newTestLock(t, ad, time.Minute)

	sentinel := errors.New("body failed")
	err := l.Run(ctx, func(ctx context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	held, err := l.IsHeld(ctx)
	require.NoError(t, err)
	require.False(t, held, "Run must release even when body errors")
}

func TestLockRunReleasesAfterSuccess(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewLockAdapter()
	l := newTestLock(t, ad, time.Minute)

	ran := false
	err := l.Run(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	held, err := l.IsHeld(ctx)
	require.NoError(t, err)
	require.False(t, held)
}
