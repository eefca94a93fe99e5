package serde

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/adapter/memory"
	"github.com/prn-tf/warden/event"
	"github.com/prn-tf/warden/key"
	"github.com/prn-tf/warden/lock"
	"github.com/prn-tf/warden/sharedlock"
)

func TestTransformerEligible(t *testing.T) {
	ns := key.NewNamespace("jobs")
	a := New("jobs", ns, adapter.AdapterTag("memory"))
	b := New("jobs", ns, adapter.AdapterTag("memory"))
	c := New("sessions", ns, adapter.AdapterTag("memory"))
	d := New("jobs", key.NewNamespace("sessions"), adapter.AdapterTag("memory"))
	e := New("jobs", ns, adapter.AdapterTag("postgres"))

	require.True(t, a.Eligible(b))
	require.False(t, a.Eligible(c))
	require.False(t, a.Eligible(d))
	require.False(t, a.Eligible(e))
}

func TestTransformerLockRoundTrip(t *testing.T) {
	ad := memory.NewLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("jobs").Key("a")

	original := lock.NewWithOwner(k, "owner-1", ad, dispatcher, time.Minute, zerolog.Nop())
	tr := New("jobs", key.NewNamespace("jobs"), adapter.AdapterTag("memory"))

	rec := tr.SerializeLock(original)
	require.Equal(t, RecordVersion, rec.Version)
	require.Equal(t, "owner-1", rec.LockID)
	require.NotNil(t, rec.TTLInMs)
	require.Equal(t, int64(60000), *rec.TTLInMs)

	reconstructed, err := tr.DeserializeLock(rec, ad, dispatcher, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, original.OwnerID(), reconstructed.OwnerID())
	require.Equal(t, original.TTL(), reconstructed.TTL())
}

func TestTransformerSharedLockReaderRoundTrip(t *testing.T) {
	ad := memory.NewSharedLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("jobs").Key("rw")

	original := sharedlock.NewWithOwner(k, "owner-1", ad, dispatcher, zerolog.Nop())
	tr := New("jobs", key.NewNamespace("jobs"), adapter.AdapterTag("memory"))

	rec := tr.SerializeSharedLockReader(original, 5)
	require.NotNil(t, rec.Limit)
	require.Equal(t, 5, *rec.Limit)

	reconstructed, err := tr.DeserializeSharedLock(rec, ad, dispatcher, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, original.OwnerID(), reconstructed.OwnerID())
}

func TestTransformerSharedLockWriterRoundTrip(t *testing.T) {
	ad := memory.NewSharedLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	k := key.NewNamespace("jobs").Key("rw")

	original := sharedlock.NewWithOwner(k, "owner-2", ad, dispatcher, zerolog.Nop())
	tr := New("jobs", key.NewNamespace("jobs"), adapter.AdapterTag("memory"))

	rec := tr.SerializeSharedLockWriter(original)
	require.Nil(t, rec.Limit)

	reconstructed, err := tr.DeserializeSharedLock(rec, ad, dispatcher, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, original.OwnerID(), reconstructed.OwnerID())
}

func TestTransformerValidateRejectsBadRecords(t *testing.T) {
	ad := memory.NewLockAdapter()
	dispatcher := event.NewMemoryDispatcher(zerolog.Nop())
	tr := New("jobs", key.NewNamespace("jobs"), adapter.AdapterTag("memory"))

	_, err := tr.DeserializeLock(Record{Version: "999", Key: "x", LockID: "y"}, ad, dispatcher, zerolog.Nop())
	require.Error(t, err)

	_, err = tr.DeserializeLock(Record{Version: RecordVersion, Key: "", LockID: "y"}, ad, dispatcher, zerolog.Nop())
	require.Error(t, err)

	_, err = tr.DeserializeLock(Record{Version: RecordVersion, Key: "x", LockID: ""}, ad, dispatcher, zerolog.Nop())
	require.Error(t, err)
}
