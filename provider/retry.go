package provider

import (
	"context"
	"time"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/retrypolicy"
)

// retryingCache wraps a CacheAdapter, retrying every call per policy.
type retryingCache struct {
	inner  adapter.CacheAdapter
	policy retrypolicy.Policy
}

func (r retryingCache) Get(ctx context.Context, key string) (out *adapter.CacheEntry, found bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		out, found, err = r.inner.Get(ctx, key)
		return err
	})
	return
}

func (r retryingCache) GetAndRemove(ctx context.Context, key string) (out *adapter.CacheEntry, found bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		out, found, err = r.inner.GetAndRemove(ctx, key)
		return err
	})
	return
}

func (r retryingCache) Add(ctx context.Context, key string, value []byte, ttl *time.Duration) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Add(ctx, key, value, ttl)
		return err
	})
	return
}

func (r retryingCache) Put(ctx context.Context, key string, value []byte, ttl *time.Duration) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Put(ctx, key, value, ttl)
		return err
	})
	return
}

func (r retryingCache) Update(ctx context.Context, key string, value []byte) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Update(ctx, key, value)
		return err
	})
	return
}

func (r retryingCache) Increment(ctx context.Context, key string, delta int64) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Increment(ctx, key, delta)
		return err
	})
	return
}

func (r retryingCache) Remove(ctx context.Context, key string) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Remove(ctx, key)
		return err
	})
	return
}

func (r retryingCache) RemoveMany(ctx context.Context, keys []string) (out map[string]bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		out, err = r.inner.RemoveMany(ctx, keys)
		return err
	})
	return
}

func (r retryingCache) RemoveByKeyPrefix(ctx context.Context, prefix string) error {
	return retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		return r.inner.RemoveByKeyPrefix(ctx, prefix)
	})
}

func (r retryingCache) RemoveAllExpired(ctx context.Context) (n int64, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		n, err = r.inner.RemoveAllExpired(ctx)
		return err
	})
	return
}

// retryingLock wraps a LockAdapter, retrying every call per policy.
type retryingLock struct {
	inner  adapter.LockAdapter
	policy retrypolicy.Policy
}

func (r retryingLock) Find(ctx context.Context, key string) (out *adapter.LockEntry, found bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		out, found, err = r.inner.Find(ctx, key)
		return err
	})
	return
}

func (r retryingLock) Insert(ctx context.Context, key, owner string, expiration *time.Time) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Insert(ctx, key, owner, expiration)
		return err
	})
	return
}

func (r retryingLock) Refresh(ctx context.Context, key, owner string, expiration *time.Time) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Refresh(ctx, key, owner, expiration)
		return err
	})
	return
}

func (r retryingLock) Remove(ctx context.Context, key, owner string) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.Remove(ctx, key, owner)
		return err
	})
	return
}

// retryingSharedLock wraps a SharedLockAdapter, retrying every call per
// policy.
type retryingSharedLock struct {
	inner  adapter.SharedLockAdapter
	policy retrypolicy.Policy
}

func (r retryingSharedLock) AcquireReader(ctx context.Context, key, ownerID string, limit int, ttl *time.Duration) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.AcquireReader(ctx, key, ownerID, limit, ttl)
		return err
	})
	return
}

func (r retryingSharedLock) AcquireWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.AcquireWriter(ctx, key, ownerID, ttl)
		return err
	})
	return
}

func (r retryingSharedLock) ReleaseReader(ctx context.Context, key, ownerID string) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.ReleaseReader(ctx, key, ownerID)
		return err
	})
	return
}

func (r retryingSharedLock) ReleaseWriter(ctx context.Context, key, ownerID string) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.ReleaseWriter(ctx, key, ownerID)
		return err
	})
	return
}

func (r retryingSharedLock) RefreshReader(ctx context.Context, key, ownerID string, ttl *time.Duration) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.RefreshReader(ctx, key, ownerID, ttl)
		return err
	})
	return
}

func (r retryingSharedLock) RefreshWriter(ctx context.Context, key, ownerID string, ttl *time.Duration) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.RefreshWriter(ctx, key, ownerID, ttl)
		return err
	})
	return
}

func (r retryingSharedLock) ForceReleaseAllReaders(ctx context.Context, key string) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.ForceReleaseAllReaders(ctx, key)
		return err
	})
	return
}

func (r retryingSharedLock) ForceReleaseWriter(ctx context.Context, key string) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.ForceReleaseWriter(ctx, key)
		return err
	})
	return
}

func (r retryingSharedLock) ForceRelease(ctx context.Context, key string) (ok bool, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		ok, err = r.inner.ForceRelease(ctx, key)
		return err
	})
	return
}

func (r retryingSharedLock) GetState(ctx context.Context, key string) (out *adapter.SharedLockRow, err error) {
	err = retrypolicy.Do(ctx, r.policy, func(ctx context.Context) error {
		out, err = r.inner.GetState(ctx, key)
		return err
	})
	return
}

var (
	_ adapter.CacheAdapter      = retryingCache{}
	_ adapter.LockAdapter       = retryingLock{}
	_ adapter.SharedLockAdapter = retryingSharedLock{}
)
