package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/warden/adapter"
)

func TestCacheAdapterAddPutUpdate(t *testing.T) {
	ctx := context.Background()
	a := NewCacheAdapter()

	added, err := a.Add(ctx, "k", []byte("v1"), nil)
	require.NoError(t, err)
	require.True(t, added)

	added, err = a.Add(ctx, "k", []byte("v2"), nil)
	require.NoError(t, err)
	require.False(t, added, "Add must not replace a live entry")

	entry, found, err := a.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), entry.Value)

	replaced, err := a.Put(ctx, "k", []byte("v3"), nil)
	require.NoError(t, err)
	require.True(t, replaced)

	updated, err := a.Update(ctx, "k", []byte("v4"))
	require.NoError(t, err)
	require.True(t, updated)

	updated, err = a.Update(ctx, "missing", []byte("x"))
	require.NoError(t, err)
	require.False(t, updated)
}

func TestCacheAdapterExpiry(t *testing.T) {
	ctx := context.Background()
	a := NewCacheAdapter()

	ttl := time.Millisecond
	_, err := a.Add(ctx, "k", []byte("v"), &ttl)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, found, err := a.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found, "expired entry must read as absent")

	// A logically expired key may be re-added.
	added, err := a.Add(ctx, "k", []byte("v2"), nil)
	require.NoError(t, err)
	require.True(t, added)
}

func TestCacheAdapterIncrement(t *testing.T) {
	ctx := context.Background()
	a := NewCacheAdapter()

	existed, err := a.Increment(ctx, "counter", 5)
	require.NoError(t, err)
	require.False(t, existed)

	existed, err = a.Increment(ctx, "counter", 3)
	require.NoError(t, err)
	require.True(t, existed)

	entry, _, err := a.Get(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, "8", string(entry.Value))

	_, err = a.Put(ctx, "notanumber", []byte("abc"), nil)
	require.NoError(t, err)
	_, err = a.Increment(ctx, "notanumber", 1)
	require.ErrorIs(t, err, adapter.ErrTypeMismatch)
}

func TestCacheAdapterRemoveByKeyPrefix(t *testing.T) {
	ctx := context.Background()
	a := NewCacheAdapter()

	for _, k := range []string{"ns/a", "ns/b", "other/c"} {
		_, err := a.Put(ctx, k, []byte("v"), nil)
		require.NoError(t, err)
	}

	require.NoError(t, a.RemoveByKeyPrefix(ctx, "ns/"))

	_, found, _ := a.Get(ctx, "ns/a")
	require.False(t, found)
	_, found, _ = a.Get(ctx, "other/c")
	require.True(t, found)
}

func TestLockAdapterInsertRefreshRemove(t *testing.T) {
	ctx := context.Background()
	a := NewLockAdapter()

	ok, err := a.Insert(ctx, "lock1", "owner-a", nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Insert(ctx, "lock1", "owner-b", nil)
	require.NoError(t, err)
	require.False(t, ok, "a live lock cannot be stolen by Insert")

	refreshed, err := a.Refresh(ctx, "lock1", "owner-b", nil)
	require.NoError(t, err)
	require.False(t, refreshed, "refresh must fail for the wrong owner")

	refreshed, err = a.Refresh(ctx, "lock1", "owner-a", nil)
	require.NoError(t, err)
	require.True(t, refreshed)

	removed, err := a.Remove(ctx, "lock1", "owner-b")
	require.NoError(t, err)
	require.False(t, removed, "release must fail for the wrong owner")

	removed, err = a.Remove(ctx, "lock1", "owner-a")
	require.NoError(t, err)
	require.True(t, removed)
}

func TestLockAdapterForceReleaseSentinel(t *testing.T) {
	ctx := context.Background()
	a := NewLockAdapter()

	_, err := a.Insert(ctx, "lock1", "owner-a", nil)
	require.NoError(t, err)

	removed, err := a.Remove(ctx, "lock1", "")
	require.NoError(t, err)
	require.True(t, removed, "empty owner is the force-release sentinel")
}

func TestLockAdapterExpiredCanBeStolen(t *testing.T) {
	ctx := context.Background()
	a := NewLockAdapter()

	past := time.Now().Add(-time.Second)
	_, err := a.Insert(ctx, "lock1", "owner-a", &past)
	require.NoError(t, err)

	ok, err := a.Insert(ctx, "lock1", "owner-b", nil)
	require.NoError(t, err)
	require.True(t, ok, "an expired lock may be stolen via Insert")
}

func TestSharedLockAdapterReaderLimit(t *testing.T) {
	ctx := context.Background()
	a := NewSharedLockAdapter()

	ok, err := a.AcquireReader(ctx, "rw1", "r1", 2, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.AcquireReader(ctx, "rw1", "r2", 2, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.AcquireReader(ctx, "rw1", "r3", 2, nil)
	require.NoError(t, err)
	require.False(t, ok, "slot limit reached")

	// Re-entry by an existing holder must still succeed even at the limit.
	ok, err = a.AcquireReader(ctx, "rw1", "r1", 2, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSharedLockAdapterReaderWriterMutualExclusion(t *testing.T) {
	ctx := context.Background()
	a := NewSharedLockAdapter()

	ok, err := a.AcquireReader(ctx, "rw1", "r1", 0, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.AcquireWriter(ctx, "rw1", "w1", nil)
	require.NoError(t, err)
	require.False(t, ok, "a writer cannot acquire while readers hold the key")

	_, err = a.ReleaseReader(ctx, "rw1", "r1")
	require.NoError(t, err)

	ok, err = a.AcquireWriter(ctx, "rw1", "w1", nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.AcquireReader(ctx, "rw1", "r1", 0, nil)
	require.NoError(t, err)
	require.False(t, ok, "a reader cannot acquire while a writer holds the key")
}

func TestSharedLockAdapterGetState(t *testing.T) {
	ctx := context.Background()
	a := NewSharedLockAdapter()

	row, err := a.GetState(ctx, "rw1")
	require.NoError(t, err)
	require.Nil(t, row)

	_, err = a.AcquireReader(ctx, "rw1", "r1", 3, nil)
	require.NoError(t, err)

	row, err = a.GetState(ctx, "rw1")
	require.NoError(t, err)
	require.NotNil(t, row.Reader)
	require.Nil(t, row.Writer)
	require.Equal(t, 3, row.Reader.Limit)
	require.Len(t, row.Reader.Slots, 1)
}
