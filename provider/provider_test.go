package provider

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/warden/config"
	"github.com/prn-tf/warden/key"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Adapter: config.AdapterConfig{Driver: "memory"},
		Retry:   config.RetryConfig{Attempts: 3, BackoffBase: time.Millisecond, BackoffMax: 10 * time.Millisecond},
		TTL: config.TTLConfig{
			Default:                    time.Minute,
			ExpiredKeysRemovalInterval: 10 * time.Millisecond,
			ShouldRemoveExpiredKeys:    true,
		},
	}
}

func TestNewWithMemoryDriver(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, memoryConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Close(ctx)

	require.NotNil(t, p.cacheAdapter)
	require.NotNil(t, p.lockAdapter)
	require.NotNil(t, p.sharedLockAdapter)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Adapter.Driver = "mongo"

	_, err := New(ctx, cfg, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestProviderCacheHandleWorks(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, memoryConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close(ctx)

	c := p.Cache(key.NewNamespace("test"))
	added, err := c.Add(ctx, []byte("v"), nil, "k")
	require.NoError(t, err)
	require.True(t, added)
}

func TestProviderLockHandleDefaultsTTL(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, memoryConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close(ctx)

	k := key.NewNamespace("test").Key("resource")
	l := p.Lock(k, 0)
	require.Equal(t, time.Minute, l.TTL())

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProviderSharedLockHandleWorks(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, memoryConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close(ctx)

	k := key.NewNamespace("test").Key("rw")
	sl, err := p.SharedLock(k)
	require.NoError(t, err)

	ok, err := sl.AcquireWriter(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProviderSharedLockErrorsWithoutAdapter(t *testing.T) {
	p := &Provider{cfg: memoryConfig()}
	_, err := p.SharedLock(key.NewNamespace("test").Key("rw"))
	require.Error(t, err)
}

func TestProviderCloseStopsSweepers(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, memoryConfig(), nil, zerolog.Nop())
	require.NoError(t, err)

	_ = p.Cache(key.NewNamespace("test"))
	require.Len(t, p.sweepers, 1)

	require.NoError(t, p.Close(ctx))
	require.Nil(t, p.sweepers)
}
