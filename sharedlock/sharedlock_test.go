package sharedlock

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

func newHandles(t *testing.T) (a, b *SharedLock, ad *memory.SharedLockAdapter) {
	t.Helper()
	ad = memory.NewSharedLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("test").Key("doc")
	a = NewWithOwner(k, "owner-a", ad, dispatcher, zerolog.Nop())
	b = NewWithOwner(k, "owner-b", ad, dispatcher, zerolog.Nop())
	return a, b, ad
}

func TestSharedLockMultipleReadersAllowed(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newHandles(t)

	ok, err := a.AcquireReader(ctx, 0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.AcquireReader(ctx, 0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "unbounded reader limit allows a second reader")
}

func TestSharedLockWriterExcludesReaders(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newHandles(t)

	ok, err := a.AcquireWriter(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.AcquireReader(ctx, 0, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = b.AcquireWriter(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSharedLockReaderSlotLimitEnforced(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewSharedLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("test").Key("doc")

	r1 := NewWithOwner(k, "r1", ad, dispatcher, zerolog.Nop())
	r2 := NewWithOwner(k, "r2", ad, dispatcher, zerolog.Nop())
	r3 := NewWithOwner(k, "r3", ad, dispatcher, zerolog.Nop())

	ok, err := r1.AcquireReader(ctx, 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r2.AcquireReader(ctx, 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r3.AcquireReader(ctx, 2, time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "limit agreed on first acquisition must be enforced")
}

func TestSharedLockReleaseOrFail(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newHandles(t)

	err := b.ReleaseReaderOrFail(ctx)
	require.True(t, errors.Is(err, ErrFailedRelease))

	_, err2 := a.AcquireWriter(ctx, time.Minute)
	require.NoError(t, err2)

	err = b.ReleaseWriterOrFail(ctx)
	require.True(t, errors.Is(err, ErrFailedRelease))

	require.NoError(t, a.ReleaseWriterOrFail(ctx))
}

func TestSharedLockForceRelease(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newHandles(t)

	_, err := a.AcquireWriter(ctx, time.Minute)
	require.NoError(t, err)

	had, err := a.ForceRelease(ctx)
	require.NoError(t, err)
	require.True(t, had)

	state, err := a.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, Unheld, state.Kind)
}

func TestSharedLockGetStateKinds(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newHandles(t)

	state, err := a.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, Unheld, state.Kind)

	_, err = a.AcquireReader(ctx, 1, time.Minute)
	require.NoError(t, err)

	state, err = a.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, HeldByMeAsReader, state.Kind)

	state, err = b.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, ReaderSlotsFull, state.Kind)

	_, err = a.ReleaseReader(ctx)
	require.NoError(t, err)

	_, err = a.AcquireWriter(ctx, time.Minute)
	require.NoError(t, err)

	state, err = a.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, HeldByMeAsWriter, state.Kind)

	state, err = b.GetState(ctx)
	require.NoError(t, err)
	require.Equal(t, HeldByOthersAsWriter, state.Kind)
}
