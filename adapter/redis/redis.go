// Package redis implements adapter.CacheAdapter and adapter.LockAdapter
// over go-redis, using SET NX PX for atomic insert-or-fail and Lua CAS
// scripts for every operation that must check the current owner before
// mutating — release and refresh can't be expressed as a single Redis
// command. It does not implement adapter.SharedLockAdapter: reader-slot
// accounting needs a read-modify-write step with no atomic single-command
// equivalent, and doing it safely would mean WATCH/MULTI optimistic
// locking per operation — not worth it next to the memory/postgres/sqlite
// adapters that already cover the interface.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/config"
)

// AdapterTag is the stable string tag this package exports for serde
// eligibility checks.
const AdapterTag adapter.AdapterTag = "redis"

// NewClient builds a go-redis client from cfg.
func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
}

// releaseIfOwnerScript deletes KEYS[1] only if its current value equals
// ARGV[1], preventing a release from destroying a newer acquisition
// made by another owner after this one's lease expired.
const releaseIfOwnerScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// refreshIfOwnerScript extends KEYS[1]'s TTL only if its current value
// equals ARGV[1]. ARGV[2] <= 0 means "never expires": PERSIST rather
// than PEXPIRE, since PEXPIRE with a non-positive timeout deletes the
// key immediately instead of leaving it alone.
const refreshIfOwnerScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	if tonumber(ARGV[2]) > 0 then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		redis.call("persist", KEYS[1])
		return 1
	end
else
	return 0
end
`

// CacheAdapter implements adapter.CacheAdapter over a redis.Client,
// storing each entry as a plain string value with Redis's own TTL.
type CacheAdapter struct {
	client *goredis.Client
	prefix string
}

// NewCacheAdapter wraps client. prefix namespaces every key this
// adapter touches, so multiple toolkit concerns can share one Redis
// database without colliding.
func NewCacheAdapter(client *goredis.Client, prefix string) *CacheAdapter {
	return &CacheAdapter{client: client, prefix: prefix}
}

func (a *CacheAdapter) k(key string) string { return a.prefix + "cache:" + key }

func (a *CacheAdapter) Get(ctx context.Context, key string) (*adapter.CacheEntry, bool, error) {
	v, err := a.client.Get(ctx, a.k(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get: %w", err)
	}
	return &adapter.CacheEntry{Value: v}, true, nil
}

func (a *CacheAdapter) GetAndRemove(ctx context.Context, key string) (*adapter.CacheEntry, bool, error) {
	v, err := a.client.GetDel(ctx, a.k(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: getdel: %w", err)
	}
	return &adapter.CacheEntry{Value: v}, true, nil
}

func (a *CacheAdapter) Add(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error) {
	ok, err := a.client.SetNX(ctx, a.k(key), value, durationOrZero(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx: %w", err)
	}
	return ok, nil
}

func (a *CacheAdapter) Put(ctx context.Context, key string, value []byte, ttl *time.Duration) (bool, error) {
	existed, err := a.client.Exists(ctx, a.k(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: exists: %w", err)
	}
	if err := a.client.Set(ctx, a.k(key), value, durationOrZero(ttl)).Err(); err != nil {
		return false, fmt.Errorf("redis: set: %w", err)
	}
	return existed > 0, nil
}

func (a *CacheAdapter) Update(ctx context.Context, key string, value []byte) (bool, error) {
	ttl, err := a.client.TTL(ctx, a.k(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: ttl: %w", err)
	}
	if ttl == -2 {
		return false, nil
	}
	if err := a.client.Set(ctx, a.k(key), value, goredis.KeepTTL).Err(); err != nil {
		return false, fmt.Errorf("redis: set: %w", err)
	}
	return true, nil
}

func (a *CacheAdapter) Increment(ctx context.Context, key string, delta int64) (bool, error) {
	existed, err := a.client.Exists(ctx, a.k(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: exists: %w", err)
	}

	_, err = a.client.IncrBy(ctx, a.k(key), delta).Result()
	if err != nil {
		if isNotAnIntegerErr(err) {
			return false, adapter.ErrTypeMismatch
		}
		return false, fmt.Errorf("redis: incrby: %w", err)
	}
	return existed > 0, nil
}

func (a *CacheAdapter) Remove(ctx context.Context, key string) (bool, error) {
	n, err := a.client.Del(ctx, a.k(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: del: %w", err)
	}
	return n > 0, nil
}

func (a *CacheAdapter) RemoveMany(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool, len(keys))
	for _, key := range keys {
		existed, err := a.Remove(ctx, key)
		if err != nil {
			return nil, err
		}
		result[key] = existed
	}
	return result, nil
}

func (a *CacheAdapter) RemoveByKeyPrefix(ctx context.Context, prefix string) error {
	return scanDelete(ctx, a.client, a.k(prefix)+"*")
}

// RemoveAllExpired is a no-op: Redis expires keys server-side, so
// there is never anything left to sweep.
func (a *CacheAdapter) RemoveAllExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

// LockAdapter implements adapter.LockAdapter over a redis.Client using
// SET NX PX for Insert and Lua CAS scripts for Release/Refresh so a
// lock is never stolen out from under its rightful owner.
type LockAdapter struct {
	client  *goredis.Client
	prefix  string
	release *goredis.Script
	refresh *goredis.Script
}

// NewLockAdapter wraps client.
func NewLockAdapter(client *goredis.Client, prefix string) *LockAdapter {
	return &LockAdapter{
		client:  client,
		prefix:  prefix,
		release: goredis.NewScript(releaseIfOwnerScript),
		refresh: goredis.NewScript(refreshIfOwnerScript),
	}
}

func (a *LockAdapter) k(key string) string { return a.prefix + "lock:" + key }

func (a *LockAdapter) Find(ctx context.Context, key string) (*adapter.LockEntry, bool, error) {
	owner, err := a.client.Get(ctx, a.k(key)).Result()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get: %w", err)
	}

	ttl, err := a.client.TTL(ctx, a.k(key)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: ttl: %w", err)
	}
	entry := &adapter.LockEntry{Owner: owner}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		entry.Expiration = &exp
	}
	return entry, true, nil
}

func (a *LockAdapter) Insert(ctx context.Context, key, owner string, expiration *time.Time) (bool, error) {
	ok, err := a.client.SetNX(ctx, a.k(key), owner, ttlFromExpiration(expiration)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx: %w", err)
	}
	return ok, nil
}

func (a *LockAdapter) Refresh(ctx context.Context, key, owner string, expiration *time.Time) (bool, error) {
	res, err := a.refresh.Run(ctx, a.client, []string{a.k(key)}, owner, ttlFromExpiration(expiration).Milliseconds()).Int()
	if err != nil && err != goredis.Nil {
		return false, fmt.Errorf("redis: refresh script: %w", err)
	}
	return res == 1, nil
}

func (a *LockAdapter) Remove(ctx context.Context, key, owner string) (bool, error) {
	if owner == "" {
		// Force-release sentinel: unconditional delete, no CAS needed.
		n, err := a.client.Del(ctx, a.k(key)).Result()
		if err != nil {
			return false, fmt.Errorf("redis: del: %w", err)
		}
		return n > 0, nil
	}

	res, err := a.release.Run(ctx, a.client, []string{a.k(key)}, owner).Int()
	if err != nil && err != goredis.Nil {
		return false, fmt.Errorf("redis: release script: %w", err)
	}
	return res == 1, nil
}

func durationOrZero(ttl *time.Duration) time.Duration {
	if ttl == nil {
		return 0
	}
	return *ttl
}

func ttlFromExpiration(expiration *time.Time) time.Duration {
	if expiration == nil {
		return 0
	}
	d := time.Until(*expiration)
	if d < 0 {
		d = 0
	}
	return d
}

func isNotAnIntegerErr(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "ERR value is not an integer or out of range"
}

func scanDelete(ctx context.Context, client *goredis.Client, pattern string) error {
	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 500 {
			if err := client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis: del batch: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan: %w", err)
	}
	if len(batch) > 0 {
		if err := client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis: del batch: %w", err)
		}
	}
	return nil
}

var (
	_ adapter.CacheAdapter = (*CacheAdapter)(nil)
	_ adapter.LockAdapter  = (*LockAdapter)(nil)
)
