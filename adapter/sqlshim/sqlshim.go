// Package sqlshim implements adapter.CacheAdapter, adapter.LockAdapter,
// and adapter.SharedLockAdapter once, generically, on top of any
// adapter.Transactor. Concrete SQL backends (postgres, sqlite) only
// need to implement Transactor/Tx against their own table/SQL dialect;
// every cache/lock/sharedlock translation rule lives here, exactly
// once, so the two backends can never drift in behavior.
//
// Cache/Lock/SharedLock each get their own shim type rather than one
// combined type: CacheAdapter.Remove and LockAdapter.Remove share a
// name but not a signature, and Go has no method overloading. All
// three shims are cheap value wrappers over the same Transactor, so
// constructing all three for one DB is free.
//
// Every exported method here except CacheShim.RemoveAllExpired (which
// calls the Transactor's own RemoveAllExpired) compiles to exactly one
// Transaction call, matching the serializable-isolation contract the concrete backends
// promise.
package sqlshim

import (
	"context"
	"strconv"
	"time"

	"github.com/prn-tf/warden/adapter"
)

// CacheShim answers every CacheAdapter method against a Transactor.
type CacheShim struct {
	tx adapter.Transactor
}

// NewCache wraps tx. Callers still own tx's lifecycle (Init/DeInit).
func NewCache(tx adapter.Transactor) *CacheShim {
	return &CacheShim{tx: tx}
}

func (s *CacheShim) Get(ctx context.Context, key string) (*adapter.CacheEntry, bool, error) {
	var result *adapter.CacheEntry
	var found bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil || !ok {
			return err
		}
		if expired(rec.Expiration) {
			return tx.Delete(ctx, key)
		}
		found = true
		result = &adapter.CacheEntry{Value: rec.Value, Expiration: rec.Expiration}
		return nil
	})
	return result, found, err
}

func (s *CacheShim) GetAndRemove(ctx context.Context, key string) (*adapter.CacheEntry, bool, error) {
	var result *adapter.CacheEntry
	var found bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil || !ok {
			return err
		}
		if err := tx.Delete(ctx, key); err != nil {
			return err
		}
		if expired(rec.Expiration) {
			return nil
		}
		found = true
		result = &adapter.CacheEntry{Value: rec.Value, Expiration: rec.Expiration}
		return nil
	})
	return result, found, err
}

func (s *CacheShim) Add(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error) {
	var added bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if ok && !expired(rec.Expiration) {
			return nil
		}
		if err := tx.Upsert(ctx, key, adapter.Record{Value: value, Expiration: expirationFrom(ttl)}); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func (s *CacheShim) Put(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error) {
	var replaced bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		replaced = ok && !expired(rec.Expiration)
		return tx.Upsert(ctx, key, adapter.Record{Value: value, Expiration: expirationFrom(ttl)})
	})
	return replaced, err
}

func (s *CacheShim) Update(ctx context.Context, key string, value []byte) (bool, error) {
	var existed bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if !ok || expired(rec.Expiration) {
			return nil
		}
		existed = true
		return tx.Upsert(ctx, key, adapter.Record{Value: value, Expiration: rec.Expiration})
	})
	return existed, err
}

func (s *CacheShim) Increment(ctx context.Context, key string, delta int64) (bool, error) {
	var existed bool
	var typeMismatch bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if !ok || expired(rec.Expiration) {
			return tx.Upsert(ctx, key, adapter.Record{Value: []byte(strconv.FormatInt(delta, 10))})
		}
		n, perr := strconv.ParseInt(string(rec.Value), 10, 64)
		if perr != nil {
			typeMismatch = true
			return nil
		}
		existed = true
		return tx.Upsert(ctx, key, adapter.Record{Value: []byte(strconv.FormatInt(n+delta, 10)), Expiration: rec.Expiration})
	})
	if err != nil {
		return false, err
	}
	if typeMismatch {
		return false, adapter.ErrTypeMismatch
	}
	return existed, nil
}

func (s *CacheShim) Remove(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		existed = !expired(rec.Expiration)
		return tx.Delete(ctx, key)
	})
	return existed, err
}

func (s *CacheShim) RemoveMany(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool, len(keys))
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		for _, key := range keys {
			rec, ok, err := tx.Find(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				result[key] = false
				continue
			}
			result[key] = !expired(rec.Expiration)
			if err := tx.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
	return result, err
}

func (s *CacheShim) RemoveByKeyPrefix(ctx context.Context, prefix string) error {
	return s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		return tx.DeleteByKeyPrefix(ctx, prefix)
	})
}

func (s *CacheShim) RemoveAllExpired(ctx context.Context) (int64, error) {
	return s.tx.RemoveAllExpired(ctx)
}

// LockShim answers every LockAdapter method against a Transactor.
type LockShim struct {
	tx adapter.Transactor
}

// NewLock wraps tx.
func NewLock(tx adapter.Transactor) *LockShim {
	return &LockShim{tx: tx}
}

func (s *LockShim) Find(ctx context.Context, key string) (*adapter.LockEntry, bool, error) {
	var result *adapter.LockEntry
	var found bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, ok, err := tx.Find(ctx, key)
		if err != nil || !ok {
			return err
		}
		if expired(rec.Expiration) {
			return tx.Delete(ctx, key)
		}
		found = true
		result = &adapter.LockEntry{Owner: rec.Owner, Expiration: rec.Expiration}
		return nil
	})
	return result, found, err
}

func (s *LockShim) Insert(ctx context.Context, key, owner string, expiration *time.Time) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if found && !expired(rec.Expiration) {
			return nil
		}
		ok = true
		return tx.Upsert(ctx, key, adapter.Record{Owner: owner, Expiration: expiration})
	})
	return ok, err
}

func (s *LockShim) Refresh(ctx context.Context, key, owner string, expiration *time.Time) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if !found || expired(rec.Expiration) || rec.Owner != owner {
			return nil
		}
		ok = true
		return tx.Upsert(ctx, key, adapter.Record{Owner: owner, Expiration: expiration})
	})
	return ok, err
}

func (s *LockShim) Remove(ctx context.Context, key, owner string) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found {
			return err
		}
		if owner != "" && rec.Owner != owner {
			return nil
		}
		ok = true
		return tx.Delete(ctx, key)
	})
	return ok, err
}

// SharedLockShim answers every SharedLockAdapter method against a
// Transactor.
type SharedLockShim struct {
	tx adapter.Transactor
}

// NewSharedLock wraps tx.
func NewSharedLock(tx adapter.Transactor) *SharedLockShim {
	return &SharedLockShim{tx: tx}
}

func (s *SharedLockShim) AcquireReader(ctx context.Context, key, ownerID string, limit int, ttl *time.Duration) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if found && isWriterRow(rec) && !expired(rec.Expiration) {
			return nil
		}
		if !found || isWriterRow(rec) {
			rec = &adapter.Record{Limit: limit, Slots: map[string]*time.Time{}}
		}
		pruneSlots(rec)
		if _, already := rec.Slots[ownerID]; !already && rec.Limit > 0 && len(rec.Slots) >= rec.Limit {
			return nil
		}
		rec.Slots[ownerID] = expirationFrom(ttl)
		ok = true
		return tx.Upsert(ctx, key, *rec)
	})
	return ok, err
}

func (s *SharedLockShim) AcquireWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		if found {
			if isWriterRow(rec) && !expired(rec.Expiration) {
				return nil
			}
			if !isWriterRow(rec) {
				pruneSlots(rec)
				if len(rec.Slots) > 0 {
					return nil
				}
			}
		}
		ok = true
		return tx.Upsert(ctx, key, adapter.Record{Owner: ownerID, Expiration: expirationFrom(ttl)})
	})
	return ok, err
}

func (s *SharedLockShim) ReleaseReader(ctx context.Context, key, ownerID string) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found || isWriterRow(rec) {
			return err
		}
		if _, present := rec.Slots[ownerID]; !present {
			return nil
		}
		ok = true
		delete(rec.Slots, ownerID)
		if len(rec.Slots) == 0 {
			return tx.Delete(ctx, key)
		}
		return tx.Upsert(ctx, key, *rec)
	})
	return ok, err
}

func (s *SharedLockShim) ReleaseWriter(ctx context.Context, key, ownerID string) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found || !isWriterRow(rec) || rec.Owner != ownerID {
			return err
		}
		ok = true
		return tx.Delete(ctx, key)
	})
	return ok, err
}

func (s *SharedLockShim) RefreshReader(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found || isWriterRow(rec) {
			return err
		}
		if _, present := rec.Slots[ownerID]; !present {
			return nil
		}
		ok = true
		rec.Slots[ownerID] = expirationFrom(ttl)
		return tx.Upsert(ctx, key, *rec)
	})
	return ok, err
}

func (s *SharedLockShim) RefreshWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (bool, error) {
	var ok bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found || !isWriterRow(rec) || rec.Owner != ownerID {
			return err
		}
		ok = true
		rec.Expiration = expirationFrom(ttl)
		return tx.Upsert(ctx, key, *rec)
	})
	return ok, err
}

func (s *SharedLockShim) ForceReleaseAllReaders(ctx context.Context, key string) (bool, error) {
	var had bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found || isWriterRow(rec) || len(rec.Slots) == 0 {
			return err
		}
		had = true
		return tx.Delete(ctx, key)
	})
	return had, err
}

func (s *SharedLockShim) ForceReleaseWriter(ctx context.Context, key string) (bool, error) {
	var had bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found || !isWriterRow(rec) {
			return err
		}
		had = true
		return tx.Delete(ctx, key)
	})
	return had, err
}

func (s *SharedLockShim) ForceRelease(ctx context.Context, key string) (bool, error) {
	var had bool
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		_, found, err := tx.Find(ctx, key)
		if err != nil || !found {
			return err
		}
		had = true
		return tx.Delete(ctx, key)
	})
	return had, err
}

func (s *SharedLockShim) GetState(ctx context.Context, key string) (*adapter.SharedLockRow, error) {
	var result *adapter.SharedLockRow
	err := s.tx.Transaction(ctx, func(ctx context.Context, tx adapter.Tx) error {
		rec, found, err := tx.Find(ctx, key)
		if err != nil || !found {
			return err
		}
		if isWriterRow(rec) {
			if expired(rec.Expiration) {
				return tx.Delete(ctx, key)
			}
			result = &adapter.SharedLockRow{Writer: &adapter.LockEntry{Owner: rec.Owner, Expiration: rec.Expiration}}
			return nil
		}
		pruneSlots(rec)
		if len(rec.Slots) == 0 {
			return tx.Delete(ctx, key)
		}
		slots := make(map[string]*time.Time, len(rec.Slots))
		for k, v := range rec.Slots {
			slots[k] = v
		}
		result = &adapter.SharedLockRow{Reader: &adapter.ReaderShape{Limit: rec.Limit, Slots: slots}}
		return nil
	})
	return result, err
}

// isWriterRow distinguishes a writer row (Owner set, no Slots) from a
// reader row (Slots set, possibly empty) in the single shared Record
// shape every adapter-backed row is stored as.
func isWriterRow(rec *adapter.Record) bool {
	return rec.Slots == nil
}

func pruneSlots(rec *adapter.Record) {
	now := time.Now()
	for owner, exp := range rec.Slots {
		if exp != nil && now.After(*exp) {
			delete(rec.Slots, owner)
		}
	}
}

func expired(exp *time.Time) bool {
	return exp != nil && time.Now().After(*exp)
}

func expirationFrom(ttl *time.Duration) *time.Time {
	if ttl == nil || *ttl <= 0 {
		return nil
	}
	t := time.Now().Add(*ttl)
	return &t
}

var (
	_ adapter.CacheAdapter      = (*CacheShim)(nil)
	_ adapter.LockAdapter       = (*LockShim)(nil)
	_ adapter.SharedLockAdapter = (*SharedLockShim)(nil)
)
