package adapter

import (
	"context"
	"time"
)

// LockEntry is the value a LockAdapter stores per key: a non-empty
// opaque owner identifier plus an absolute expiration, or a nil
// expiration meaning the lock never auto-expires.
type LockEntry struct {
	Owner      string
	Expiration *time.Time
}

// Expired reports whether the entry is logically absent as of now.
func (e LockEntry) Expired(now time.Time) bool {
	return e.Expiration != nil && !e.Expiration.After(now)
}

// LockAdapter is the storage contract the mutex lock core relies on.
// Every method must apply its effect as a single atomic step — insert,
// conditional update, or unconditional delete — with respect to
// concurrent callers on the same key.
type LockAdapter interface {
	// Find returns the current entry for key, or (nil, false, nil) if
	// absent or logically expired.
	Find(ctx context.Context, key string) (*LockEntry, bool, error)

	// Insert creates a new entry for key if none exists or the
	// existing one is logically expired. Returns true on success.
	Insert(ctx context.Context, key, owner string, expiration *time.Time) (bool, error)

	// Refresh updates only the expiration of an entry already owned by
	// owner. Returns false if the key isn't held by owner.
	Refresh(ctx context.Context, key, owner string, expiration *time.Time) (bool, error)

	// Remove deletes the entry for key if owned by owner. An empty
	// owner means unconditional delete (force-release).
	Remove(ctx context.Context, key, owner string) (bool, error)
}
