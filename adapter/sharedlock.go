package adapter

import (
	"context"
	"time"
)

// ReaderShape is the reader-side shape of a shared-lock row: the fixed
// slot limit agreed on first acquisition, and the set of currently
// acquired slots keyed by owner ID.
type ReaderShape struct {
	Limit int
	Slots map[string]*time.Time // ownerID -> expiration, nil = never
}

// SharedLockRow is the full state an adapter holds for one shared-lock
// key. Exactly one of Writer / Reader is non-nil; both nil means the key
// is absent (or everything in it has logically expired).
type SharedLockRow struct {
	Writer *LockEntry
	Reader *ReaderShape
}

// SharedLockAdapter is the storage contract the reader/writer
// coordinator relies on. Every method runs as one atomic transaction
// against the row for key (spec: "one atomic state row per key").
type SharedLockAdapter interface {
	// AcquireReader grants (or re-enters) a reader slot for ownerID,
	// per the algorithm in sharedlock's Acquire. limit is only
	// consulted on first acquisition of a key; later callers' limit is
	// ignored in favor of whatever was stored.
	AcquireReader(ctx context.Context, key, ownerID string, limit int, ttl *time.Duration) (bool, error)

	// AcquireWriter grants exclusive writer ownership for ownerID.
	AcquireWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error)

	// ReleaseReader removes ownerID's slot. Returns whether a slot was
	// actually removed; deletes the row if the slot map becomes empty.
	ReleaseReader(ctx context.Context, key, ownerID string) (bool, error)

	// ReleaseWriter deletes the row iff it is currently owned by
	// ownerID.
	ReleaseWriter(ctx context.Context, key, ownerID string) (bool, error)

	// RefreshReader extends ownerID's slot expiration. Only the owning
	// slot may be refreshed.
	RefreshReader(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error)

	// RefreshWriter extends the writer's expiration. Only the owning
	// writer may refresh.
	RefreshWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error)

	// ForceReleaseAllReaders unconditionally deletes the reader shape
	// for key. Returns whether any readers were present.
	ForceReleaseAllReaders(ctx context.Context, key string) (bool, error)

	// ForceReleaseWriter unconditionally deletes the writer shape for
	// key. Returns whether a writer was present.
	ForceReleaseWriter(ctx context.Context, key string) (bool, error)

	// ForceRelease unconditionally deletes whatever shape is present
	// for key. Returns whether anything was present.
	ForceRelease(ctx context.Context, key string) (bool, error)

	// GetState returns the current row for key, or (nil, nil) if
	// absent/fully expired. Expired slots/shapes must already be
	// filtered out of the returned row.
	GetState(ctx context.Context, key string) (*SharedLockRow, error)
}
