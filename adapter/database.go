package adapter

import (
	"context"
	"time"
)

// Record is the row shape a Tx persists: it is general enough to back
// cache entries, lock entries, and shared-lock rows — the concrete
// Database*Adapter built on top of Transactor interprets the fields it
// needs.
type Record struct {
	Value      []byte // cache value, or nil for lock/sharedlock rows
	Owner      string // lock owner / writer owner, or "" for cache rows
	Limit      int    // shared-lock reader limit, 0 if not a reader row
	Slots      map[string]*time.Time
	Expiration *time.Time
}

// Tx is the set of primitive operations available inside one
// Transactor.Transaction call. Every higher-level Database*Adapter
// operation in this module is implemented as exactly one Transaction
// call composed from these primitives — never raw backend-specific SQL
// leaking into the cache/lock/sharedlock core.
type Tx interface {
	// Find returns the row for key within the transaction's snapshot.
	Find(ctx context.Context, key string) (*Record, bool, error)

	// Upsert writes (or overwrites) the row for key.
	Upsert(ctx context.Context, key string, rec Record) error

	// Delete removes the row for key. No-op if absent.
	Delete(ctx context.Context, key string) error

	// DeleteByKeyPrefix removes every row whose key has the given
	// prefix.
	DeleteByKeyPrefix(ctx context.Context, prefix string) error
}

// Transactor runs fn under a serializable transaction: reads inside fn
// see a consistent snapshot, and the net effect of fn's writes is
// atomic with respect to every other Transaction call on the same
// table. Between two separate Transaction calls no ordering guarantee
// is made.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// RemoveAllExpired deletes rows whose expiration has passed,
	// outside of any particular logical operation — driven by the
	// cache core's background sweeper.
	RemoveAllExpired(ctx context.Context) (int64, error)

	// Init prepares backend-specific schema (idempotent, double-init
	// is a no-op). DeInit tears it down; also idempotent.
	Init(ctx context.Context) error
	DeInit(ctx context.Context) error
}

// AdapterTag identifies a concrete adapter implementation for the serde
// transformer's (transformerName, namespace, adapterType) eligibility
// triple. It must be stable across releases — never a reflect type name.
type AdapterTag string
