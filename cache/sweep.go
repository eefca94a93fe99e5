package cache

import (
	"context"
	"time"
)

// DefaultSweepInterval is the default period between RemoveAllExpired
// sweeps, per spec.md's TTL policy.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically calls the adapter's RemoveAllExpired so that
// adapters which cannot atomically expire rows (SQL-backed ones) still
// bound memory growth for keys nobody ever reads again. The Redis
// adapter expires entries natively, so its RemoveAllExpired is a no-op;
// the memory adapter drops expired entries only when they are accessed,
// and its RemoveAllExpired deletes the ones nobody has touched since.
//
// Double-Start is a no-op; double-Stop is a no-op — mirrors the
// lifecycle contract spec.md §5 requires of the one process-wide timer
// per adapter instance.
type Sweeper struct {
	cache    *Cache
	interval time.Duration
	stopCh   chan struct{}
	started  bool
	stopped  bool
}

// NewSweeper creates a sweeper for c with the given interval. An
// interval <= 0 disables sweeping entirely (the cache then relies
// solely on lazy expiration at read time).
func NewSweeper(c *Cache, interval time.Duration) *Sweeper {
	return &Sweeper{
		cache:    c,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background sweep goroutine. No-op if interval <= 0
// or Start was already called.
func (s *Sweeper) Start() {
	if s.interval <= 0 || s.started {
		return
	}
	s.started = true

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	n, err := s.cache.adapter.RemoveAllExpired(ctx)
	if err != nil {
		s.cache.logger.Warn().Err(err).Msg("sweep: RemoveAllExpired failed")
		return
	}
	if n > 0 {
		s.cache.logger.Debug().Int64("removed", n).Msg("sweep: removed expired entries")
	}
}

// Stop terminates the sweep goroutine. Safe to call even if Start was
// never called, and safe to call more than once.
func (s *Sweeper) Stop() {
	if s.stopped || !s.started {
		s.stopped = true
		return
	}
	s.stopped = true
	close(s.stopCh)
}
