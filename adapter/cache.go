package adapter

import (
	"context"
	"time"
)

// CacheEntry is the value an adapter stores per key: an opaque blob plus
// an absolute UTC expiration instant, or a nil Expiration meaning the
// entry never expires.
type CacheEntry struct {
	Value      []byte
	Expiration *time.Time
}

// Expired reports whether the entry is logically absent as of now.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.Expiration != nil && !e.Expiration.After(now)
}

// CacheAdapter is the storage contract the cache core relies on. Every
// method is expected to apply its effect atomically with respect to
// concurrent callers of the same method on the same key; TTL is
// interpreted server-side where the backend allows it.
//
// Adapters that cannot atomically expire rows (SQL-backed ones) still
// satisfy this contract: Get/GetAndRemove must treat a past-expiry row
// as absent, and RemoveAllExpired is called periodically by the cache
// core's sweeper.
type CacheAdapter interface {
	// Get retrieves an entry by key. Returns (nil, false, nil) on miss
	// or logical expiry.
	Get(ctx context.Context, key string) (*CacheEntry, bool, error)

	// GetAndRemove atomically reads and deletes an entry.
	GetAndRemove(ctx context.Context, key string) (*CacheEntry, bool, error)

	// Add inserts a value only if the key is absent (or logically
	// expired). Returns true if the value was added.
	Add(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error)

	// Put upserts a value, always resetting its TTL. Returns true if a
	// live entry was replaced, false if the key was newly inserted.
	Put(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error)

	// Update replaces a value only if the key is already present.
	// Returns true if it existed. Never creates and never changes TTL.
	Update(ctx context.Context, key string, value []byte) (bool, error)

	// Increment atomically adds delta to the integer stored at key.
	// Returns (existed, error); fails with ErrTypeMismatch if the
	// stored value does not parse as a signed integer.
	Increment(ctx context.Context, key string, delta int64) (bool, error)

	// Remove deletes a key. Returns true if it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// RemoveMany deletes several keys, returning which ones existed.
	RemoveMany(ctx context.Context, keys []string) (map[string]bool, error)

	// RemoveByKeyPrefix deletes every key with the given prefix, scoped
	// to a namespace's Clear() call.
	RemoveByKeyPrefix(ctx context.Context, prefix string) error

	// RemoveAllExpired deletes rows whose expiration has passed. No-op
	// for adapters that expire entries natively (Redis).
	RemoveAllExpired(ctx context.Context) (int64, error)
}
