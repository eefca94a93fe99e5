// Package memory provides in-process, mutex-guarded implementations of
// adapter.CacheAdapter, adapter.LockAdapter, and
// adapter.SharedLockAdapter. It is suitable for single-node deployments
// or tests; state is never shared across process boundaries and is
// lost on restart.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prn-tf/warden/adapter"
)

// AdapterTag is the stable string tag this package exports for serde
// eligibility checks.
const AdapterTag adapter.AdapterTag = "memory"

// CacheAdapter implements adapter.CacheAdapter over a mutex-guarded
// map.
type CacheAdapter struct {
	mu      sync.Mutex
	entries map[string]*adapter.CacheEntry
}

// NewCacheAdapter creates an empty CacheAdapter.
func NewCacheAdapter() *CacheAdapter {
	return &CacheAdapter{entries: make(map[string]*adapter.CacheEntry)}
}

func (a *CacheAdapter) Get(ctx context.Context, key string) (*adapter.CacheEntry, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.Expired(time.Now()) {
		delete(a.entries, key)
		return nil, false, nil
	}
	return &adapter.CacheEntry{Value: e.Value, Expiration: e.Expiration}, true, nil
}

func (a *CacheAdapter) GetAndRemove(ctx context.Context, key string) (*adapter.CacheEntry, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok {
		return nil, false, nil
	}
	delete(a.entries, key)
	if e.Expired(time.Now()) {
		return nil, false, nil
	}
	return &adapter.CacheEntry{Value: e.Value, Expiration: e.Expiration}, true, nil
}

func (a *CacheAdapter) Add(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.entries[key]; ok && !e.Expired(time.Now()) {
		return false, nil
	}
	a.entries[key] = newEntry(value, ttl)
	return true, nil
}

func (a *CacheAdapter) Put(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, existed := a.entries[key]
	replaced := existed && !e.Expired(time.Now())
	a.entries[key] = newEntry(value, ttl)
	return replaced, nil
}

func (a *CacheAdapter) Update(ctx context.Context, key string, value []byte) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok || e.Expired(time.Now()) {
		delete(a.entries, key)
		return false, nil
	}
	a.entries[key] = &adapter.CacheEntry{Value: value, Expiration: e.Expiration}
	return true, nil
}

func (a *CacheAdapter) Increment(ctx context.Context, key string, delta int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok || e.Expired(time.Now()) {
		a.entries[key] = newEntry([]byte(strconv.FormatInt(delta, 10)), nil)
		return false, nil
	}

	n, err := strconv.ParseInt(string(e.Value), 10, 64)
	if err != nil {
		return false, adapter.ErrTypeMismatch
	}
	e.Value = []byte(strconv.FormatInt(n+delta, 10))
	return true, nil
}

func (a *CacheAdapter) Remove(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	delete(a.entries, key)
	return ok && !e.Expired(time.Now()), nil
}

func (a *CacheAdapter) RemoveMany(ctx context.Context, keys []string) (map[string]bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := make(map[string]bool, len(keys))
	now := time.Now()
	for _, k := range keys {
		e, ok := a.entries[k]
		delete(a.entries, k)
		result[k] = ok && !e.Expired(now)
	}
	return result, nil
}

func (a *CacheAdapter) RemoveByKeyPrefix(ctx context.Context, prefix string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k := range a.entries {
		if strings.HasPrefix(k, prefix) {
			delete(a.entries, k)
		}
	}
	return nil
}

func (a *CacheAdapter) RemoveAllExpired(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	var n int64
	for k, e := range a.entries {
		if e.Expired(now) {
			delete(a.entries, k)
			n++
		}
	}
	return n, nil
}

func newEntry(value []byte, ttl *time.Duration) *adapter.CacheEntry {
	e := &adapter.CacheEntry{Value: value}
	if ttl != nil && *ttl > 0 {
		t := time.Now().Add(*ttl)
		e.Expiration = &t
	}
	return e
}

// LockAdapter implements adapter.LockAdapter over a mutex-guarded map.
type LockAdapter struct {
	mu    sync.Mutex
	locks map[string]*adapter.LockEntry
}

// NewLockAdapter creates an empty LockAdapter.
func NewLockAdapter() *LockAdapter {
	return &LockAdapter{locks: make(map[string]*adapter.LockEntry)}
}

func (a *LockAdapter) Find(ctx context.Context, key string) (*adapter.LockEntry, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.locks[key]
	if !ok {
		return nil, false, nil
	}
	if e.Expired(time.Now()) {
		delete(a.locks, key)
		return nil, false, nil
	}
	return &adapter.LockEntry{Owner: e.Owner, Expiration: e.Expiration}, true, nil
}

func (a *LockAdapter) Insert(ctx context.Context, key, owner string, expiration *time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.locks[key]; ok && !e.Expired(time.Now()) {
		return false, nil
	}
	a.locks[key] = &adapter.LockEntry{Owner: owner, Expiration: expiration}
	return true, nil
}

func (a *LockAdapter) Refresh(ctx context.Context, key, owner string, expiration *time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.locks[key]
	if !ok || e.Expired(time.Now()) || e.Owner != owner {
		return false, nil
	}
	a.locks[key] = &adapter.LockEntry{Owner: owner, Expiration: expiration}
	return true, nil
}

func (a *LockAdapter) Remove(ctx context.Context, key, owner string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.locks[key]
	if !ok {
		return false, nil
	}
	// owner == "" is the force-release sentinel used by Lock.ForceRelease.
	if owner != "" && e.Owner != owner {
		return false, nil
	}
	delete(a.locks, key)
	return true, nil
}

// SharedLockAdapter implements adapter.SharedLockAdapter over a
// mutex-guarded map, one row per key.
type SharedLockAdapter struct {
	mu   sync.Mutex
	rows map[string]*adapter.SharedLockRow
}

// NewSharedLockAdapter creates an empty SharedLockAdapter.
func NewSharedLockAdapter() *SharedLockAdapter {
	return &SharedLockAdapter{rows: make(map[string]*adapter.SharedLockRow)}
}

func (a *SharedLockAdapter) AcquireReader(ctx context.Context, key, ownerID string, limit int, ttl *time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	now := time.Now()

	if ok && row.Writer != nil && !row.Writer.Expired(now) {
		return false, nil
	}
	if ok && row.Writer != nil && row.Writer.Expired(now) {
		row, ok = nil, false
	}

	if !ok || row.Reader == nil {
		row = &adapter.SharedLockRow{Reader: &adapter.ReaderShape{Limit: limit, Slots: map[string]*time.Time{}}}
		a.rows[key] = row
	}

	pruneExpiredSlots(row.Reader, now)

	if _, already := row.Reader.Slots[ownerID]; !already && row.Reader.Limit > 0 && len(row.Reader.Slots) >= row.Reader.Limit {
		return false, nil
	}

	row.Reader.Slots[ownerID] = expirationFrom(ttl, now)
	return true, nil
}

func (a *SharedLockAdapter) AcquireWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	now := time.Now()

	if ok {
		if row.Writer != nil && !row.Writer.Expired(now) {
			return false, nil
		}
		if row.Reader != nil {
			pruneExpiredSlots(row.Reader, now)
			if len(row.Reader.Slots) > 0 {
				return false, nil
			}
		}
	}

	a.rows[key] = &adapter.SharedLockRow{Writer: &adapter.LockEntry{Owner: ownerID, Expiration: expirationFrom(ttl, now)}}
	return true, nil
}

// expirationFrom converts a relative ttl into an absolute expiration
// anchored at now. A nil ttl means never expires.
func expirationFrom(ttl *time.Duration, now time.Time) *time.Time {
	if ttl == nil || *ttl <= 0 {
		return nil
	}
	t := now.Add(*ttl)
	return &t
}

func (a *SharedLockAdapter) ReleaseReader(ctx context.Context, key, ownerID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	if !ok || row.Reader == nil {
		return false, nil
	}
	if _, present := row.Reader.Slots[ownerID]; !present {
		return false, nil
	}
	delete(row.Reader.Slots, ownerID)
	if len(row.Reader.Slots) == 0 {
		delete(a.rows, key)
	}
	return true, nil
}

func (a *SharedLockAdapter) ReleaseWriter(ctx context.Context, key, ownerID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	if !ok || row.Writer == nil || row.Writer.Owner != ownerID {
		return false, nil
	}
	delete(a.rows, key)
	return true, nil
}

func (a *SharedLockAdapter) RefreshReader(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	if !ok || row.Reader == nil {
		return false, nil
	}
	if _, present := row.Reader.Slots[ownerID]; !present {
		return false, nil
	}
	row.Reader.Slots[ownerID] = expirationFrom(ttl, time.Now())
	return true, nil
}

func (a *SharedLockAdapter) RefreshWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	if !ok || row.Writer == nil || row.Writer.Owner != ownerID {
		return false, nil
	}
	row.Writer.Expiration = expirationFrom(ttl, time.Now())
	return true, nil
}

func (a *SharedLockAdapter) ForceReleaseAllReaders(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	if !ok || row.Reader == nil || len(row.Reader.Slots) == 0 {
		return false, nil
	}
	delete(a.rows, key)
	return true, nil
}

func (a *SharedLockAdapter) ForceReleaseWriter(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	if !ok || row.Writer == nil {
		return false, nil
	}
	delete(a.rows, key)
	return true, nil
}

func (a *SharedLockAdapter) ForceRelease(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.rows[key]
	delete(a.rows, key)
	return ok, nil
}

func (a *SharedLockAdapter) GetState(ctx context.Context, key string) (*adapter.SharedLockRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.rows[key]
	if !ok {
		return nil, nil
	}

	now := time.Now()
	if row.Writer != nil {
		if row.Writer.Expired(now) {
			delete(a.rows, key)
			return nil, nil
		}
		return &adapter.SharedLockRow{Writer: &adapter.LockEntry{Owner: row.Writer.Owner, Expiration: row.Writer.Expiration}}, nil
	}
	if row.Reader != nil {
		pruneExpiredSlots(row.Reader, now)
		if len(row.Reader.Slots) == 0 {
			delete(a.rows, key)
			return nil, nil
		}
		slots := make(map[string]*time.Time, len(row.Reader.Slots))
		for k, v := range row.Reader.Slots {
			slots[k] = v
		}
		return &adapter.SharedLockRow{Reader: &adapter.ReaderShape{Limit: row.Reader.Limit, Slots: slots}}, nil
	}
	return nil, nil
}

func pruneExpiredSlots(r *adapter.ReaderShape, now time.Time) {
	for owner, exp := range r.Slots {
		if exp != nil && now.After(*exp) {
			delete(r.Slots, owner)
		}
	}
}

var (
	_ adapter.CacheAdapter      = (*CacheAdapter)(nil)
	_ adapter.LockAdapter       = (*LockAdapter)(nil)
	_ adapter.SharedLockAdapter = (*SharedLockAdapter)(nil)
)
