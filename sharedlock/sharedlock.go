// Package sharedlock implements the shared reader/writer coordinator
// (C5): many concurrent readers xor one exclusive writer per key, over
// a pluggable adapter.SharedLockAdapter.
package sharedlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/event"
	"github.com/prn-tf/warden/key"
)

// SharedLock is a façade binding {key, ownerID} to an adapter. Unlike
// Lock, a single handle is used for both reader and writer operations —
// the shape is chosen at call time, not at construction.
type SharedLock struct {
	key        key.Key
	ownerID    string
	adapter    adapter.SharedLockAdapter
	dispatcher event.Dispatcher
	logger     zerolog.Logger
}

// New creates a SharedLock handle for k with a freshly generated owner
// ID.
func New(k key.Key, ad adapter.SharedLockAdapter, dispatcher event.Dispatcher, logger zerolog.Logger) *SharedLock {
	return NewWithOwner(k, uuid.NewString(), ad, dispatcher, logger)
}

// NewWithOwner creates a SharedLock handle with an explicit owner ID —
// used by the serde transformer to reconstruct a handle targeting the
// same key and owner in another process.
func NewWithOwner(k key.Key, ownerID string, ad adapter.SharedLockAdapter, dispatcher event.Dispatcher, logger zerolog.Logger) *SharedLock {
	return &SharedLock{
		key:     k,
		ownerID: ownerID,
		adapter: ad,
		logger:  logger.With().Str("component", "sharedlock").Str("key", k.String()).Str("owner", ownerID).Logger(),
		dispatcher: dispatcher,
	}
}

// Key returns the key this handle is bound to.
func (s *SharedLock) Key() key.Key { return s.key }

// OwnerID returns this handle's owner identifier.
func (s *SharedLock) OwnerID() string { return s.ownerID }

func (s *SharedLock) emit(ctx context.Context, kind event.Kind, payload any) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, event.Event{Kind: kind, Key: s.key.String(), Payload: payload})
}

func (s *SharedLock) unexpected(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	s.logger.Error().Err(err).Str("method", method).Msg("unexpected sharedlock adapter error")
	s.emit(ctx, event.UnexpectedError, map[string]any{"method": method, "error": err})
	return err
}

// AcquireReader attempts to take a reader slot. limit is the maximum
// number of concurrent readers permitted for this key; it is only
// consulted the first time anyone acquires the key as a reader — later
// callers' limit argument is ignored in favor of whatever was agreed
// on first acquisition. Fails if the key is currently held by a writer,
// or if the reader slot table is already at its limit and this owner
// doesn't already hold a slot. The emitted ReaderFailedAcquire event
// doesn't distinguish the two failure causes — the adapter reports a
// bare bool, not which case applied — so a listener wanting to tell
// "writer present" apart from "slots full" needs GetState.
func (s *SharedLock) AcquireReader(ctx context.Context, limit int, ttl time.Duration) (bool, error) {
	ok, err := s.adapter.AcquireReader(ctx, s.key.String(), s.ownerID, limit, durationPtr(ttl))
	if err != nil {
		return false, s.unexpected(ctx, "AcquireReader", err)
	}
	if ok {
		s.emit(ctx, event.ReaderAcquired, nil)
	} else {
		s.emit(ctx, event.ReaderFailedAcquire, nil)
	}
	return ok, nil
}

// AcquireReaderOrFail is AcquireReader, raising ErrFailedAcquireReader
// instead of returning false.
func (s *SharedLock) AcquireReaderOrFail(ctx context.Context, limit int, ttl time.Duration) error {
	ok, err := s.AcquireReader(ctx, limit, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedAcquireReader
	}
	return nil
}

// AcquireWriter attempts to take exclusive ownership. Fails if the key
// is currently held by a writer (any owner) or by any readers at all.
func (s *SharedLock) AcquireWriter(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.adapter.AcquireWriter(ctx, s.key.String(), s.ownerID, durationPtr(ttl))
	if err != nil {
		return false, s.unexpected(ctx, "AcquireWriter", err)
	}
	if ok {
		s.emit(ctx, event.WriterAcquired, nil)
	} else {
		s.emit(ctx, event.WriterFailedAcquire, nil)
	}
	return ok, nil
}

// AcquireWriterOrFail is AcquireWriter, raising ErrFailedAcquireWriter
// instead of returning false.
func (s *SharedLock) AcquireWriterOrFail(ctx context.Context, ttl time.Duration) error {
	ok, err := s.AcquireWriter(ctx, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedAcquireWriter
	}
	return nil
}

// ReleaseReader gives up this owner's reader slot, if held.
func (s *SharedLock) ReleaseReader(ctx context.Context) (bool, error) {
	ctx = detachCancel(ctx)
	ok, err := s.adapter.ReleaseReader(ctx, s.key.String(), s.ownerID)
	if err != nil {
		return false, s.unexpected(ctx, "ReleaseReader", err)
	}
	if ok {
		s.emit(ctx, event.ReaderReleased, nil)
	} else {
		s.emit(ctx, event.ReaderFailedRelease, nil)
	}
	return ok, nil
}

// ReleaseReaderOrFail is ReleaseReader, raising ErrFailedRelease instead
// of returning false.
func (s *SharedLock) ReleaseReaderOrFail(ctx context.Context) error {
	ok, err := s.ReleaseReader(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedRelease
	}
	return nil
}

// ReleaseWriter gives up writer ownership, if this owner holds it.
func (s *SharedLock) ReleaseWriter(ctx context.Context) (bool, error) {
	ctx = detachCancel(ctx)
	ok, err := s.adapter.ReleaseWriter(ctx, s.key.String(), s.ownerID)
	if err != nil {
		return false, s.unexpected(ctx, "ReleaseWriter", err)
	}
	if ok {
		s.emit(ctx, event.WriterReleased, nil)
	} else {
		s.emit(ctx, event.WriterFailedRelease, nil)
	}
	return ok, nil
}

// ReleaseWriterOrFail is ReleaseWriter, raising ErrFailedRelease instead
// of returning false.
func (s *SharedLock) ReleaseWriterOrFail(ctx context.Context) error {
	ok, err := s.ReleaseWriter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedRelease
	}
	return nil
}

// RefreshReader extends this owner's reader slot expiration.
func (s *SharedLock) RefreshReader(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.adapter.RefreshReader(ctx, s.key.String(), s.ownerID, durationPtr(ttl))
	if err != nil {
		return false, s.unexpected(ctx, "RefreshReader", err)
	}
	if ok {
		s.emit(ctx, event.ReaderRefreshed, nil)
	} else {
		s.emit(ctx, event.ReaderFailedRefresh, nil)
	}
	return ok, nil
}

// RefreshReaderOrFail is RefreshReader, raising ErrFailedRefresh instead
// of returning false.
func (s *SharedLock) RefreshReaderOrFail(ctx context.Context, ttl time.Duration) error {
	ok, err := s.RefreshReader(ctx, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedRefresh
	}
	return nil
}

// RefreshWriter extends this owner's writer expiration.
func (s *SharedLock) RefreshWriter(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.adapter.RefreshWriter(ctx, s.key.String(), s.ownerID, durationPtr(ttl))
	if err != nil {
		return false, s.unexpected(ctx, "RefreshWriter", err)
	}
	if ok {
		s.emit(ctx, event.WriterRefreshed, nil)
	} else {
		s.emit(ctx, event.WriterFailedRefresh, nil)
	}
	return ok, nil
}

// RefreshWriterOrFail is RefreshWriter, raising ErrFailedRefresh instead
// of returning false.
func (s *SharedLock) RefreshWriterOrFail(ctx context.Context, ttl time.Duration) error {
	ok, err := s.RefreshWriter(ctx, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedRefresh
	}
	return nil
}

// ForceReleaseAllReaders unconditionally clears every reader slot for
// this key, regardless of owner. had reports whether any were present.
func (s *SharedLock) ForceReleaseAllReaders(ctx context.Context) (had bool, err error) {
	ctx = detachCancel(ctx)
	had, err = s.adapter.ForceReleaseAllReaders(ctx, s.key.String())
	if err != nil {
		return false, s.unexpected(ctx, "ForceReleaseAllReaders", err)
	}
	s.emit(ctx, event.ReaderAllForceReleased, had)
	return had, nil
}

// ForceReleaseWriter unconditionally clears writer ownership for this
// key, regardless of owner. had reports whether a writer was present.
func (s *SharedLock) ForceReleaseWriter(ctx context.Context) (had bool, err error) {
	ctx = detachCancel(ctx)
	had, err = s.adapter.ForceReleaseWriter(ctx, s.key.String())
	if err != nil {
		return false, s.unexpected(ctx, "ForceReleaseWriter", err)
	}
	s.emit(ctx, event.WriterForceReleased, had)
	return had, nil
}

// ForceRelease unconditionally clears whatever shape (reader or
// writer) currently occupies this key. The adapter itself can't report
// which shape it removed, so the row is inspected via GetState first
// to decide which single event to emit — ForceRelease never fires
// both ReaderAllForceReleased and WriterForceReleased for one call.
func (s *SharedLock) ForceRelease(ctx context.Context) (had bool, err error) {
	ctx = detachCancel(ctx)

	row, err := s.adapter.GetState(ctx, s.key.String())
	if err != nil {
		return false, s.unexpected(ctx, "ForceRelease", err)
	}

	had, err = s.adapter.ForceRelease(ctx, s.key.String())
	if err != nil {
		return false, s.unexpected(ctx, "ForceRelease", err)
	}
	if had {
		if row != nil && row.Writer != nil {
			s.emit(ctx, event.WriterForceReleased, had)
		} else {
			s.emit(ctx, event.ReaderAllForceReleased, had)
		}
	}
	return had, nil
}

// durationPtr returns nil for a non-positive ttl (never expires), and a
// pointer to ttl otherwise. The adapter — not the core — is responsible
// for turning a relative ttl into an absolute expiration at the moment
// it actually stores the slot/writer row.
func durationPtr(ttl time.Duration) *time.Duration {
	if ttl <= 0 {
		return nil
	}
	return &ttl
}

// detachCancel mirrors lock.detachCancel: release-shaped operations run
// to completion even if the caller's context is cancelled mid-flight.
func detachCancel(ctx context.Context) context.Context {
	return detachedContext{ctx}
}

type detachedContext struct {
	parent context.Context
}

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}       { return nil }
func (detachedContext) Err() error                  { return nil }
func (d detachedContext) Value(k any) any           { return d.parent.Value(k) }
