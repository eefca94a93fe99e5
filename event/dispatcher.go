// Package event defines the pub/sub surface the cache, lock, and
// sharedlock cores publish state transitions to, and an in-memory
// implementation. Cross-process delivery (event/redisbus) and metrics
// export (event/metrics) build on top of the same Dispatcher interface.
package event

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Kind identifies the type of a published event.
type Kind string

// Event kinds mirrored from the cache, lock, and sharedlock cores.
const (
	KeyFound       Kind = "KeyFound"
	KeyNotFound    Kind = "KeyNotFound"
	KeyAdded       Kind = "KeyAdded"
	KeyUpdated     Kind = "KeyUpdated"
	KeyRemoved     Kind = "KeyRemoved"
	KeyIncremented Kind = "KeyIncremented"
	KeyDecremented Kind = "KeyDecremented"
	KeysCleared    Kind = "KeysCleared"

	Acquired       Kind = "Acquired"
	FailedAcquire  Kind = "FailedAcquire"
	Released       Kind = "Released"
	FailedRelease  Kind = "FailedRelease"
	ForceReleased  Kind = "ForceReleased"
	Refreshed      Kind = "Refreshed"
	FailedRefresh  Kind = "FailedRefresh"
	Unavailable    Kind = "Unavailable"

	ReaderAcquired          Kind = "ReaderAcquired"
	ReaderFailedAcquire     Kind = "ReaderFailedAcquire"
	ReaderReleased          Kind = "ReaderReleased"
	ReaderFailedRelease     Kind = "ReaderFailedRelease"
	ReaderRefreshed         Kind = "ReaderRefreshed"
	ReaderFailedRefresh     Kind = "ReaderFailedRefresh"
	ReaderAllForceReleased  Kind = "ReaderAllForceReleased"
	WriterAcquired          Kind = "WriterAcquired"
	WriterFailedAcquire     Kind = "WriterFailedAcquire"
	WriterReleased          Kind = "WriterReleased"
	WriterFailedRelease     Kind = "WriterFailedRelease"
	WriterRefreshed         Kind = "WriterRefreshed"
	WriterFailedRefresh     Kind = "WriterFailedRefresh"
	WriterForceReleased     Kind = "WriterForceReleased"

	UnexpectedError Kind = "UnexpectedError"
)

// Event is one published occurrence. Payload carries kind-specific
// detail (e.g. the delta for KeyIncremented, the bool had — whether
// anything was held — for ForceReleased).
type Event struct {
	Kind    Kind
	Key     string
	Payload any
}

// Listener receives dispatched events. It must not block for long —
// Dispatch calls listeners synchronously and recovers panics, but a
// slow listener still delays the caller's Dispatch call.
type Listener func(Event)

// Dispatcher is the minimal pub/sub surface the core components publish
// to. Delivery is at-most-once within a single process and
// order-preserving per kind per subscriber; cross-process delivery is a
// concern of a specific Dispatcher implementation (event/redisbus), not
// of this interface.
type Dispatcher interface {
	// AddListener registers fn for every event of kind, returning a
	// func that unsubscribes it.
	AddListener(kind Kind, fn Listener) (unsubscribe func())

	// ListenOnce registers fn to fire at most once, for the next event
	// of kind.
	ListenOnce(kind Kind, fn Listener)

	// Dispatch delivers e to kind's subscribers; listener errors
	// (panics) never propagate to the caller. MemoryDispatcher (and
	// redisbus, which embeds it) calls listeners synchronously, so
	// Dispatch returns only after every local listener has run.
	Dispatch(ctx context.Context, e Event)
}

// MemoryDispatcher is an in-process Dispatcher backed by a
// mutex-guarded map of subscriber slices.
type MemoryDispatcher struct {
	mu        sync.Mutex
	listeners map[Kind][]*subscription
	logger    zerolog.Logger
}

type subscription struct {
	fn   Listener
	once bool
	live bool
}

// NewMemoryDispatcher creates an empty in-process dispatcher. A
// zero-value logger discards output; pass a configured zerolog.Logger to
// surface listener panics.
func NewMemoryDispatcher(logger zerolog.Logger) *MemoryDispatcher {
	return &MemoryDispatcher{
		listeners: make(map[Kind][]*subscription),
		logger:    logger.With().Str("component", "event.dispatcher").Logger(),
	}
}

// AddListener implements Dispatcher.
func (d *MemoryDispatcher) AddListener(kind Kind, fn Listener) func() {
	d.mu.Lock()
	sub := &subscription{fn: fn, live: true}
	d.listeners[kind] = append(d.listeners[kind], sub)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		sub.live = false
	}
}

// ListenOnce implements Dispatcher.
func (d *MemoryDispatcher) ListenOnce(kind Kind, fn Listener) {
	d.mu.Lock()
	d.listeners[kind] = append(d.listeners[kind], &subscription{fn: fn, once: true, live: true})
	d.mu.Unlock()
}

// Dispatch implements Dispatcher. It snapshots the subscriber list under
// lock, then invokes each live subscriber outside the lock so a listener
// registering/unsubscribing doesn't deadlock.
func (d *MemoryDispatcher) Dispatch(ctx context.Context, e Event) {
	d.mu.Lock()
	subs := append([]*subscription(nil), d.listeners[e.Kind]...)
	remaining := d.listeners[e.Kind][:0]
	for _, s := range d.listeners[e.Kind] {
		if s.live && !s.once {
			remaining = append(remaining, s)
		}
	}
	d.listeners[e.Kind] = remaining
	d.mu.Unlock()

	for _, s := range subs {
		if !s.live {
			continue
		}
		d.invoke(s.fn, e)
	}
}

func (d *MemoryDispatcher) invoke(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("kind", string(e.Kind)).
				Str("key", e.Key).
				Msg("event listener panicked, swallowed")
		}
	}()
	fn(e)
}

// Filter returns a Listener that only forwards to fn when the event's
// Kind equals kind — a convenience over registering on every kind
// individually with a switch inside the handler.
func Filter(kind Kind, fn Listener) Listener {
	return func(e Event) {
		if e.Kind == kind {
			fn(e)
		}
	}
}

var _ Dispatcher = (*MemoryDispatcher)(nil)
