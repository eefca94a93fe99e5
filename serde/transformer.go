// Package serde makes lock and shared-lock handles portable across
// process boundaries: a handle acquired in one process can be
// serialized, sent to another, and reconstructed there bound to the
// same key and owner so a remote release/refresh call succeeds.
package serde

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/event"
	"github.com/prn-tf/warden/key"
	"github.com/prn-tf/warden/lock"
	"github.com/prn-tf/warden/sharedlock"
)

// Record is the bounded wire shape a Transformer produces. Only the
// fields meaningful to the handle being serialized are populated;
// everything else is its zero value.
type Record struct {
	Version string `json:"version"`
	Key     string `json:"key"`
	LockID  string `json:"lockId"`
	Limit   *int   `json:"limit,omitempty"`
	TTLInMs *int64 `json:"ttlInMs,omitempty"`
}

// RecordVersion is the wire format version Transformer currently
// produces and accepts.
const RecordVersion = "1"

// Transformer reconstructs handles bound to a specific adapter type and
// namespace. A Transformer is eligible to deserialize a Record only if
// it was constructed with the same (name, namespace, adapterType)
// triple as the Transformer that produced it — this is an out-of-band
// agreement between the two processes (typically both configured from
// the same config.Config), since the triple is never embedded in the
// wire Record itself.
type Transformer struct {
	name        string
	namespace   key.Namespace
	adapterType adapter.AdapterTag
}

// New creates a Transformer scoped to name/namespace/adapterType. name
// is a caller-chosen label distinguishing transformers that share a
// namespace and adapter type but serve different purposes (e.g. "jobs"
// vs "sessions").
func New(name string, namespace key.Namespace, adapterType adapter.AdapterTag) Transformer {
	return Transformer{name: name, namespace: namespace, adapterType: adapterType}
}

// Eligible reports whether t and other share the same
// (name, namespace, adapterType) triple.
func (t Transformer) Eligible(other Transformer) bool {
	return t.name == other.name &&
		t.namespace.String() == other.namespace.String() &&
		t.adapterType == other.adapterType
}

// SerializeLock produces a portable Record for l.
func (t Transformer) SerializeLock(l *lock.Lock) Record {
	rec := Record{Version: RecordVersion, Key: l.Key().String(), LockID: l.OwnerID()}
	if ttl := l.TTL(); ttl > 0 {
		ms := ttl.Milliseconds()
		rec.TTLInMs = &ms
	}
	return rec
}

// DeserializeLock reconstructs a *lock.Lock from rec, bound to the same
// key and owner as the handle that produced it.
func (t Transformer) DeserializeLock(rec Record, ad adapter.LockAdapter, dispatcher event.Dispatcher, logger zerolog.Logger) (*lock.Lock, error) {
	if err := t.validate(rec); err != nil {
		return nil, err
	}
	k := keyFrom(rec.Key)
	ttl := ttlFrom(rec.TTLInMs)
	return lock.NewWithOwner(k, rec.LockID, ad, dispatcher, ttl, logger), nil
}

// SerializeSharedLockReader produces a portable Record for a reader
// handle, recording the slot limit that was agreed on first
// acquisition so the remote side's reconstruction doesn't need to know
// it out of band.
func (t Transformer) SerializeSharedLockReader(s *sharedlock.SharedLock, limit int) Record {
	rec := Record{Version: RecordVersion, Key: s.Key().String(), LockID: s.OwnerID()}
	rec.Limit = &limit
	return rec
}

// SerializeSharedLockWriter produces a portable Record for a writer
// handle.
func (t Transformer) SerializeSharedLockWriter(s *sharedlock.SharedLock) Record {
	return Record{Version: RecordVersion, Key: s.Key().String(), LockID: s.OwnerID()}
}

// DeserializeSharedLock reconstructs a *sharedlock.SharedLock from rec,
// bound to the same key and owner as the handle that produced it. The
// caller is responsible for calling AcquireReader/AcquireWriter again
// as appropriate — deserialization alone never touches storage.
func (t Transformer) DeserializeSharedLock(rec Record, ad adapter.SharedLockAdapter, dispatcher event.Dispatcher, logger zerolog.Logger) (*sharedlock.SharedLock, error) {
	if err := t.validate(rec); err != nil {
		return nil, err
	}
	k := keyFrom(rec.Key)
	return sharedlock.NewWithOwner(k, rec.LockID, ad, dispatcher, logger), nil
}

func (t Transformer) validate(rec Record) error {
	if rec.Version != RecordVersion {
		return fmt.Errorf("serde: unsupported record version %q (want %q)", rec.Version, RecordVersion)
	}
	if rec.Key == "" || rec.LockID == "" {
		return fmt.Errorf("serde: record missing key or lockId")
	}
	return nil
}

func keyFrom(s string) key.Key {
	return key.NewNamespace(s).Key()
}

func ttlFrom(ms *int64) time.Duration {
	if ms == nil {
		return 0
	}
	return time.Duration(*ms) * time.Millisecond
}
