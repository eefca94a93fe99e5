// Package provider is the wiring root: it turns a config.Config into
// ready-to-use cache.Cache, lock.Lock, and sharedlock.SharedLock
// handles, selecting the storage driver (memory/postgres/sqlite/redis),
// wrapping adapter calls in retrypolicy, and starting the background
// TTL sweeper, in the construction order the teacher's server command
// follows: load config, open storage, build the dispatcher, build
// services.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/adapter/memory"
	"github.com/prn-tf/warden/adapter/postgres"
	"github.com/prn-tf/warden/adapter/redis"
	"github.com/prn-tf/warden/adapter/sqlite"
	"github.com/prn-tf/warden/cache"
	"github.com/prn-tf/warden/config"
	"github.com/prn-tf/warden/event"
	"github.com/prn-tf/warden/key"
	"github.com/prn-tf/warden/lock"
	"github.com/prn-tf/warden/retrypolicy"
	"github.com/prn-tf/warden/sharedlock"
)

// Provider owns the adapters, dispatcher, and sweeper it constructs for
// a single config.Config, and closes all of them on Close.
type Provider struct {
	cfg        *config.Config
	logger     zerolog.Logger
	dispatcher event.Dispatcher

	cacheAdapter      adapter.CacheAdapter
	lockAdapter       adapter.LockAdapter
	sharedLockAdapter adapter.SharedLockAdapter
	retryPolicy       retrypolicy.Policy

	sweepers []*cache.Sweeper
	closers  []func(context.Context) error
}

// New builds a Provider from cfg. dispatcher may be nil, in which case
// an in-process event.NewMemoryDispatcher is created. The driver named
// by cfg.Adapter.Driver is opened and Init'd; sharedlock is unsupported
// on the "redis" driver (see adapter/redis's package doc): New succeeds
// for that driver, and Provider.SharedLock returns an error whenever it
// is called.
func New(ctx context.Context, cfg *config.Config, dispatcher event.Dispatcher, logger zerolog.Logger) (*Provider, error) {
	if dispatcher == nil {
		dispatcher = event.NewMemoryDispatcher(logger)
	}

	p := &Provider{
		cfg:        cfg,
		logger:     logger.With().Str("component", "provider").Logger(),
		dispatcher: dispatcher,
		retryPolicy: retrypolicy.Policy{
			Attempts:    cfg.Retry.Attempts,
			BackoffBase: cfg.Retry.BackoffBase,
			BackoffMax:  cfg.Retry.BackoffMax,
		},
	}

	if err := p.openAdapter(ctx, cfg.Adapter); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) openAdapter(ctx context.Context, cfg config.AdapterConfig) error {
	switch cfg.Driver {
	case "", "memory":
		p.cacheAdapter = memory.NewCacheAdapter()
		p.lockAdapter = memory.NewLockAdapter()
		p.sharedLockAdapter = memory.NewSharedLockAdapter()
		return nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.Postgres, p.logger)
		if err != nil {
			return err
		}
		if err := db.Init(ctx); err != nil {
			return err
		}
		p.cacheAdapter = postgres.NewCacheAdapter(db)
		p.lockAdapter = postgres.NewLockAdapter(db)
		p.sharedLockAdapter = postgres.NewSharedLockAdapter(db)
		p.closers = append(p.closers, db.DeInit)
		return nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLite, p.logger)
		if err != nil {
			return err
		}
		if err := db.Init(ctx); err != nil {
			return err
		}
		p.cacheAdapter = sqlite.NewCacheAdapter(db)
		p.lockAdapter = sqlite.NewLockAdapter(db)
		p.sharedLockAdapter = sqlite.NewSharedLockAdapter(db)
		p.closers = append(p.closers, db.DeInit)
		return nil

	case "redis":
		client := redis.NewClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("provider: redis ping: %w", err)
		}
		p.cacheAdapter = redis.NewCacheAdapter(client, "warden:")
		p.lockAdapter = redis.NewLockAdapter(client, "warden:")
		p.sharedLockAdapter = nil // unsupported; see package doc
		p.closers = append(p.closers, func(context.Context) error { return client.Close() })
		return nil

	default:
		return fmt.Errorf("%w: %q", adapter.ErrUnregisteredDriver, cfg.Driver)
	}
}

// Cache builds a Cache handle rooted at ns, wrapping the configured
// adapter in retrypolicy, and starts a background sweeper per
// cfg.TTL.ExpiredKeysRemovalInterval if cfg.TTL.ShouldRemoveExpiredKeys
// is set. Callers should call Close (via Provider.Close) exactly once
// per process, not per Cache handle — the sweeper outlives the handle
// reference.
func (p *Provider) Cache(ns key.Namespace) *cache.Cache {
	c := cache.New(ns, retryingCache{inner: p.cacheAdapter, policy: p.retryPolicy}, p.dispatcher, p.logger)

	if p.cfg.TTL.ShouldRemoveExpiredKeys {
		sweeper := cache.NewSweeper(c, p.cfg.TTL.ExpiredKeysRemovalInterval)
		sweeper.Start()
		p.sweepers = append(p.sweepers, sweeper)
	}
	return c
}

// Lock builds a Lock handle for k with a freshly generated owner ID,
// defaulting ttl to cfg.TTL.Default when ttl <= 0.
func (p *Provider) Lock(k key.Key, ttl time.Duration) *lock.Lock {
	if ttl <= 0 {
		ttl = p.cfg.TTL.Default
	}
	return lock.New(k, retryingLock{inner: p.lockAdapter, policy: p.retryPolicy}, p.dispatcher, ttl, p.logger)
}

// SharedLock builds a SharedLock handle for k with a freshly generated
// owner ID. Returns an error if the configured driver has no
// SharedLockAdapter (currently: "redis").
func (p *Provider) SharedLock(k key.Key) (*sharedlock.SharedLock, error) {
	if p.sharedLockAdapter == nil {
		return nil, fmt.Errorf("provider: driver %q does not support shared locks", p.cfg.Adapter.Driver)
	}
	return sharedlock.New(k, retryingSharedLock{inner: p.sharedLockAdapter, policy: p.retryPolicy}, p.dispatcher, p.logger), nil
}

// Close stops every sweeper this Provider started and closes the
// underlying storage connection, if any.
func (p *Provider) Close(ctx context.Context) error {
	for _, s := range p.sweepers {
		s.Stop()
	}
	p.sweepers = nil

	var firstErr error
	for _, closeFn := range p.closers {
		if err := closeFn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
