// Package cache implements the cache semantics layer (C3): at-most-once
// add, expiration on read, atomic increment, and getOrAdd
// materialization, over a pluggable adapter.CacheAdapter.
package cache

import (
	"context"
	"errors"

	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/event"
	"github.com/prn-tf/warden/key"
)

// Cache is a handle bound to a namespace, an adapter, and an event
// dispatcher. It owns no storage itself; every operation is a thin
// façade translating a namespaced key into an adapter call and an event
// emission.
type Cache struct {
	ns         key.Namespace
	adapter    adapter.CacheAdapter
	dispatcher event.Dispatcher
	logger     zerolog.Logger
}

// New creates a Cache handle. dispatcher may be nil, in which case
// events are simply not emitted.
func New(ns key.Namespace, ad adapter.CacheAdapter, dispatcher event.Dispatcher, logger zerolog.Logger) *Cache {
	return &Cache{
		ns:         ns,
		adapter:    ad,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "cache").Str("namespace", ns.String()).Logger(),
	}
}

func (c *Cache) resolve(segments ...string) string {
	return c.ns.Key(segments...).String()
}

func (c *Cache) emit(ctx context.Context, kind event.Kind, storageKey string, payload any) {
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.Dispatch(ctx, event.Event{Kind: kind, Key: storageKey, Payload: payload})
}

// unexpected classifies err, logs it, and emits UnexpectedError. It
// always returns err unchanged so callers can propagate it.
func (c *Cache) unexpected(ctx context.Context, method, storageKey string, err error) error {
	if err == nil {
		return nil
	}
	c.logger.Error().Err(err).Str("method", method).Str("key", storageKey).Msg("unexpected cache adapter error")
	c.emit(ctx, event.UnexpectedError, storageKey, map[string]any{"method": method, "error": err})
	return err
}

// Get retrieves the value stored at segments. found is false on miss or
// logical expiry.
func (c *Cache) Get(ctx context.Context, segments ...string) (value []byte, found bool, err error) {
	k := c.resolve(segments...)
	entry, found, err := c.adapter.Get(ctx, k)
	if err != nil {
		return nil, false, c.unexpected(ctx, "Get", k, err)
	}
	if !found {
		c.emit(ctx, event.KeyNotFound, k, nil)
		return nil, false, nil
	}
	c.emit(ctx, event.KeyFound, k, nil)
	return entry.Value, true, nil
}

// GetOr retrieves the value at segments, or def if absent.
func (c *Cache) GetOr(ctx context.Context, def []byte, segments ...string) ([]byte, error) {
	v, found, err := c.Get(ctx, segments...)
	if err != nil {
		return nil, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// GetOrElse retrieves the value at segments, evaluating thunk lazily
// (only on miss) otherwise.
func (c *Cache) GetOrElse(ctx context.Context, thunk func() ([]byte, error), segments ...string) ([]byte, error) {
	v, found, err := c.Get(ctx, segments...)
	if err != nil {
		return nil, err
	}
	if found {
		return v, nil
	}
	return thunk()
}

// GetOrFail retrieves the value at segments, raising ErrKeyNotFound on
// miss or logical expiry.
func (c *Cache) GetOrFail(ctx context.Context, segments ...string) ([]byte, error) {
	v, found, err := c.Get(ctx, segments...)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

// Add inserts value at segments only if absent (or logically expired).
// A nil ttl means the entry never expires.
func (c *Cache) Add(ctx context.Context, value []byte, ttl *time.Duration, segments ...string) (added bool, err error) {
	k := c.resolve(segments...)
	added, err = c.adapter.Add(ctx, k, value, ttl)
	if err != nil {
		return false, c.unexpected(ctx, "Add", k, err)
	}
	if added {
		c.emit(ctx, event.KeyAdded, k, nil)
	}
	return added, nil
}

// Update replaces the value at segments only if already present. Never
// creates and never resets TTL.
func (c *Cache) Update(ctx context.Context, value []byte, segments ...string) (existed bool, err error) {
	k := c.resolve(segments...)
	existed, err = c.adapter.Update(ctx, k, value)
	if err != nil {
		return false, c.unexpected(ctx, "Update", k, err)
	}
	if existed {
		c.emit(ctx, event.KeyUpdated, k, nil)
	}
	return existed, nil
}

// Put upserts value at segments, always resetting TTL. replaced is
// false when the key was newly inserted.
func (c *Cache) Put(ctx context.Context, value []byte, ttl *time.Duration, segments ...string) (replaced bool, err error) {
	k := c.resolve(segments...)
	replaced, err = c.adapter.Put(ctx, k, value, ttl)
	if err != nil {
		return false, c.unexpected(ctx, "Put", k, err)
	}
	if replaced {
		c.emit(ctx, event.KeyUpdated, k, nil)
	} else {
		c.emit(ctx, event.KeyAdded, k, nil)
	}
	return replaced, nil
}

// Remove deletes the value at segments. existed reports whether it was
// present.
func (c *Cache) Remove(ctx context.Context, segments ...string) (existed bool, err error) {
	k := c.resolve(segments...)
	existed, err = c.adapter.Remove(ctx, k)
	if err != nil {
		return false, c.unexpected(ctx, "Remove", k, err)
	}
	if existed {
		c.emit(ctx, event.KeyRemoved, k, nil)
	}
	return existed, nil
}

// GetAndRemove atomically reads and deletes the value at segments.
func (c *Cache) GetAndRemove(ctx context.Context, segments ...string) (value []byte, found bool, err error) {
	k := c.resolve(segments...)
	entry, found, err := c.adapter.GetAndRemove(ctx, k)
	if err != nil {
		return nil, false, c.unexpected(ctx, "GetAndRemove", k, err)
	}
	if !found {
		c.emit(ctx, event.KeyNotFound, k, nil)
		return nil, false, nil
	}
	c.emit(ctx, event.KeyRemoved, k, nil)
	return entry.Value, true, nil
}

// GetOrAdd materializes value on miss: read, and on miss, Add the
// value and return it; on a losing race (another caller added first),
// re-read and return whatever is now stored.
//
// This is documented, not accidental: there is no cross-operation lock
// between the read and the Add, so concurrent callers can both see a
// miss and both Add. Add never overwrites a live entry, so the first
// Add wins and every later one loses silently; a caller whose Add lost
// re-reads and returns the winner's (not necessarily "its own") value —
// at-least-once materialization, first-writer-wins value. A future version may add single-flight deduplication; this one
// doesn't.
func (c *Cache) GetOrAdd(ctx context.Context, value []byte, ttl *time.Duration, segments ...string) ([]byte, error) {
	existing, found, err := c.Get(ctx, segments...)
	if err != nil {
		return nil, err
	}
	if found {
		return existing, nil
	}

	added, err := c.Add(ctx, value, ttl, segments...)
	if err != nil {
		return nil, err
	}
	if added {
		return value, nil
	}

	// Lost the race: someone else added between our Get and our Add.
	existing, found, err = c.Get(ctx, segments...)
	if err != nil {
		return nil, err
	}
	if !found {
		// Vanishingly unlikely (the winner's entry expired already),
		// but possible; fall back to the value we would have added.
		return value, nil
	}
	return existing, nil
}

// Increment atomically adds delta to the integer stored at segments.
// existed reports whether the key was present beforehand. Fails with
// ErrTypeMismatch if the stored value isn't a signed integer. No event
// fires when delta == 0, matching the source behavior this was ported
// from.
func (c *Cache) Increment(ctx context.Context, delta int64, segments ...string) (existed bool, err error) {
	k := c.resolve(segments...)
	existed, err = c.adapter.Increment(ctx, k, delta)
	if err != nil {
		if errors.Is(err, adapter.ErrTypeMismatch) {
			return false, ErrTypeMismatch
		}
		return false, c.unexpected(ctx, "Increment", k, err)
	}
	switch {
	case delta > 0:
		c.emit(ctx, event.KeyIncremented, k, delta)
	case delta < 0:
		c.emit(ctx, event.KeyDecremented, k, delta)
	}
	return existed, nil
}

// Decrement is Increment(ctx, -delta, segments...).
func (c *Cache) Decrement(ctx context.Context, delta int64, segments ...string) (existed bool, err error) {
	return c.Increment(ctx, -delta, segments...)
}

// Clear removes every key scoped to this cache's namespace prefix.
func (c *Cache) Clear(ctx context.Context) error {
	prefix := c.ns.Prefix()
	if err := c.adapter.RemoveByKeyPrefix(ctx, prefix); err != nil {
		return c.unexpected(ctx, "Clear", prefix, err)
	}
	c.emit(ctx, event.KeysCleared, prefix, nil)
	return nil
}

// Exists reports whether segments currently resolves to a live entry.
func (c *Cache) Exists(ctx context.Context, segments ...string) (bool, error) {
	_, found, err := c.Get(ctx, segments...)
	return found, err
}

// Missing is the negation of Exists.
func (c *Cache) Missing(ctx context.Context, segments ...string) (bool, error) {
	found, err := c.Exists(ctx, segments...)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// GetMany retrieves several keys at once. Each entry in keys is a
// single already-relative key (joined segments, if more than one, are
// the caller's responsibility). The result map only contains keys that
// were found.
func (c *Cache) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, rel := range keys {
		v, found, err := c.Get(ctx, rel)
		if err != nil {
			return nil, err
		}
		if found {
			result[rel] = v
		}
	}
	return result, nil
}

// PutMany upserts several key/value pairs, all sharing ttl.
func (c *Cache) PutMany(ctx context.Context, items map[string][]byte, ttl *time.Duration) (map[string]bool, error) {
	result := make(map[string]bool, len(items))
	for rel, v := range items {
		replaced, err := c.Put(ctx, v, ttl, rel)
		if err != nil {
			return nil, err
		}
		result[rel] = replaced
	}
	return result, nil
}

// RemoveMany deletes several keys, reporting which ones existed.
func (c *Cache) RemoveMany(ctx context.Context, keys ...string) (map[string]bool, error) {
	result := make(map[string]bool, len(keys))
	for _, rel := range keys {
		existed, err := c.Remove(ctx, rel)
		if err != nil {
			return nil, err
		}
		result[rel] = existed
	}
	return result, nil
}
