package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/warden/adapter/memory"
	"github.com/prn-tf/warden/key"
)

func TestSweeperRemovesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewCacheAdapter()
	c := New(key.NewNamespace("test"), ad, nil, zerolog.Nop())

	ttl := time.Millisecond
	_, err := c.Add(ctx, []byte("v"), &ttl, "k")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	sweeper := NewSweeper(c, 5*time.Millisecond)
	sweeper.Start()
	defer sweeper.Stop()

	// Give the sweeper several ticks, then check it left nothing behind.
	// RemoveAllExpired deletes what it finds, so it is called only once.
	time.Sleep(50 * time.Millisecond)
	n, err := ad.RemoveAllExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "sweeper should have already removed the expired entry")
}

func TestSweeperDisabledByNonPositiveInterval(t *testing.T) {
	ctx := context.Background()
	ad := memory.NewCacheAdapter()
	c := New(key.NewNamespace("test"), ad, nil, zerolog.Nop())

	sweeper := NewSweeper(c, 0)
	sweeper.Start()
	defer sweeper.Stop()

	ttl := time.Millisecond
	_, err := c.Add(ctx, []byte("v"), &ttl, "k")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	n, err := ad.RemoveAllExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "a disabled sweeper must never have swept")
}

func TestSweeperDoubleStartStopIsNoOp(t *testing.T) {
	ad := memory.NewCacheAdapter()
	c := New(key.NewNamespace("test"), ad, nil, zerolog.Nop())

	sweeper := NewSweeper(c, 10*time.Millisecond)
	sweeper.Start()
	sweeper.Start()
	sweeper.Stop()
	sweeper.Stop()
}
