// Package lock implements the owner-fenced distributed mutex state
// machine (C4): acquire, blocking acquire, release, refresh, and
// force-release, over a pluggable adapter.LockAdapter.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/event"
	"github.com/prn-tf/warden/key"
)

// Lock is a thin, copyable façade binding {key, ownerID, ttl} to an
// adapter. It owns no storage itself — the authoritative state lives in
// the adapter.
type Lock struct {
	key        key.Key
	ownerID    string
	ttl        time.Duration // 0 = never expires
	adapter    adapter.LockAdapter
	dispatcher event.Dispatcher
	logger     zerolog.Logger
}

// New creates a Lock handle for k with a freshly generated owner ID. The
// owner ID is never reused for the lifetime of this process.
func New(k key.Key, ad adapter.LockAdapter, dispatcher event.Dispatcher, ttl time.Duration, logger zerolog.Logger) *Lock {
	return NewWithOwner(k, uuid.NewString(), ad, dispatcher, ttl, logger)
}

// NewWithOwner creates a Lock handle with an explicit owner ID — used
// by the serde transformer to reconstruct a handle in another process
// that targets the same key and owner as the original.
func NewWithOwner(k key.Key, ownerID string, ad adapter.LockAdapter, dispatcher event.Dispatcher, ttl time.Duration, logger zerolog.Logger) *Lock {
	return &Lock{
		key:        k,
		ownerID:    ownerID,
		ttl:        ttl,
		adapter:    ad,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "lock").Str("key", k.String()).Str("owner", ownerID).Logger(),
	}
}

// Key returns the key this handle is bound to.
func (l *Lock) Key() key.Key { return l.key }

// OwnerID returns this handle's owner identifier.
func (l *Lock) OwnerID() string { return l.ownerID }

// TTL returns this handle's default TTL (0 meaning never expires).
func (l *Lock) TTL() time.Duration { return l.ttl }

func (l *Lock) expirationFor(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}

func (l *Lock) emit(ctx context.Context, kind event.Kind, payload any) {
	if l.dispatcher == nil {
		return
	}
	l.dispatcher.Dispatch(ctx, event.Event{Kind: kind, Key: l.key.String(), Payload: payload})
}

func (l *Lock) unexpected(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	l.logger.Error().Err(err).Str("method", method).Msg("unexpected lock adapter error")
	l.emit(ctx, event.UnexpectedError, map[string]any{"method": method, "error": err})
	return err
}

// Acquire attempts to acquire the lock using this handle's default TTL.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.AcquireTTL(ctx, l.ttl)
}

// AcquireTTL attempts to acquire the lock with an explicit TTL,
// overriding the handle's default for this call only.
func (l *Lock) AcquireTTL(ctx context.Context, ttl time.Duration) (bool, error) {
	exp := l.expirationFor(ttl)
	ok, err := l.adapter.Insert(ctx, l.key.String(), l.ownerID, exp)
	if err != nil {
		return false, l.unexpected(ctx, "Acquire", err)
	}
	if ok {
		l.emit(ctx, event.Acquired, nil)
	} else {
		l.emit(ctx, event.FailedAcquire, nil)
	}
	return ok, nil
}

// AcquireOrFail is Acquire, raising ErrFailedAcquire instead of
// returning false.
func (l *Lock) AcquireOrFail(ctx context.Context) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedAcquire
	}
	return nil
}

// BlockingOptions configures AcquireBlocking's poll loop.
type BlockingOptions struct {
	// Time is the maximum duration to keep polling. 0 is equivalent to
	// a single non-blocking Acquire.
	Time time.Duration

	// Interval is the fixed delay between poll attempts, used when
	// IntervalFunc is nil.
	Interval time.Duration

	// IntervalFunc, if set, computes the delay before attempt N
	// (0-indexed), letting callers opt into jittered/exponential
	// backoff without changing the core poll loop.
	IntervalFunc func(attempt int) time.Duration
}

func (o BlockingOptions) delay(attempt int) time.Duration {
	if o.IntervalFunc != nil {
		return o.IntervalFunc(attempt)
	}
	return o.Interval
}

// AcquireBlocking polls Acquire every opts.Interval (or opts.IntervalFunc
// result) until it succeeds or opts.Time elapses. It returns false
// (never an error) on timeout, and is cancellable via ctx — on
// cancellation it returns false promptly at the next suspension point.
func (l *Lock) AcquireBlocking(ctx context.Context, opts BlockingOptions) (bool, error) {
	if opts.Time <= 0 {
		return l.Acquire(ctx)
	}

	deadline := time.Now().Add(opts.Time)
	for attempt := 0; ; attempt++ {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.emit(ctx, event.Unavailable, nil)
			return false, nil
		}

		wait := opts.delay(attempt)
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, nil
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			l.emit(ctx, event.Unavailable, nil)
			return false, nil
		}
	}
}

// AcquireBlockingOrFail is AcquireBlocking, raising ErrUnavailable
// instead of returning false.
func (l *Lock) AcquireBlockingOrFail(ctx context.Context, opts BlockingOptions) error {
	ok, err := l.AcquireBlocking(ctx, opts)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnavailable
	}
	return nil
}

// Release releases the lock if and only if this handle's owner
// currently holds it. Cancelling ctx is not honored — release always
// runs to completion once started, per the core's side-effect-critical
// contract.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	ctx = detachCancel(ctx)
	ok, err := l.adapter.Remove(ctx, l.key.String(), l.ownerID)
	if err != nil {
		return false, l.unexpected(ctx, "Release", err)
	}
	if ok {
		l.emit(ctx, event.Released, nil)
	} else {
		l.emit(ctx, event.FailedRelease, nil)
	}
	return ok, nil
}

// ReleaseOrFail is Release, raising ErrFailedRelease instead of
// returning false.
func (l *Lock) ReleaseOrFail(ctx context.Context) error {
	ok, err := l.Release(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedRelease
	}
	return nil
}

// Refresh extends the lock's expiration using this handle's default
// TTL, but only if this handle's owner currently holds it.
func (l *Lock) Refresh(ctx context.Context) (bool, error) {
	return l.RefreshTTL(ctx, l.ttl)
}

// RefreshTTL extends the lock's expiration with an explicit TTL.
func (l *Lock) RefreshTTL(ctx context.Context, ttl time.Duration) (bool, error) {
	exp := l.expirationFor(ttl)
	ok, err := l.adapter.Refresh(ctx, l.key.String(), l.ownerID, exp)
	if err != nil {
		return false, l.unexpected(ctx, "Refresh", err)
	}
	if ok {
		l.emit(ctx, event.Refreshed, nil)
	} else {
		l.emit(ctx, event.FailedRefresh, nil)
	}
	return ok, nil
}

// RefreshOrFail is Refresh, raising ErrFailedRefresh instead of
// returning false.
func (l *Lock) RefreshOrFail(ctx context.Context) error {
	ok, err := l.Refresh(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedRefresh
	}
	return nil
}

// ForceRelease unconditionally deletes the lock regardless of owner.
// It always succeeds; had reports whether anything was actually held.
func (l *Lock) ForceRelease(ctx context.Context) (had bool, err error) {
	ctx = detachCancel(ctx)
	had, err = l.adapter.Remove(ctx, l.key.String(), "")
	if err != nil {
		return false, l.unexpected(ctx, "ForceRelease", err)
	}
	l.emit(ctx, event.ForceReleased, had)
	return had, nil
}

// IsHeld reports whether this handle's owner currently holds the lock.
func (l *Lock) IsHeld(ctx context.Context) (bool, error) {
	entry, found, err := l.adapter.Find(ctx, l.key.String())
	if err != nil {
		return false, l.unexpected(ctx, "IsHeld", err)
	}
	return found && entry.Owner == l.ownerID, nil
}

// Run acquires the lock, runs body, and unconditionally releases
// afterward. A body error always wins over a failing release; a
// release failure that doesn't mask a body error is surfaced only
// through an UnexpectedError event, never as Run's return value.
func (l *Lock) Run(ctx context.Context, body func(ctx context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFailedAcquire
	}

	defer func() {
		if _, relErr := l.Release(ctx); relErr != nil {
			l.logger.Error().Err(relErr).Msg("Run: release after body failed")
		}
	}()

	return body(ctx)
}

// detachCancel returns a context that carries ctx's values but is never
// cancelled by ctx's own cancellation — used by Release/ForceRelease,
// which must run to completion once started even if the caller's
// context is cancelled mid-flight.
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
