package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/avatarsync/internal/logger"
)

// SweeperConfig contains configuration for the stale transaction sweeper.
type SweeperConfig struct {
	// Enabled controls whether the background sweep runs (default: false)
	Enabled bool

	// Interval is how often to sweep (default: 1m)
	Interval time.Duration
}

// Sweeper periodically removes stale transactions from a Store.
//
// Stale transactions belong to uploads that never reached commit or
// rollback. Sweeping only drops the bookkeeping; objects they uploaded are
// left in storage and are reported in the log.
//
// Thread Safety: Safe for concurrent use.
type Sweeper struct {
	store  *Store
	config SweeperConfig

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSweeper creates a sweeper for store. Call Start to begin sweeping.
func NewSweeper(store *Store, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}

	return &Sweeper{
		store:  store,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the background worker. Subsequent calls are no-ops.
func (s *Sweeper) Start() {
	if !s.config.Enabled {
		logger.Debug("Transaction sweeper disabled")
		return
	}

	s.startOnce.Do(func() {
		s.started.Store(true)
		logger.Info("Starting transaction sweeper: interval=%s threshold=%s",
			s.config.Interval, s.store.Threshold())
		go s.worker()
	})
}

// Stop signals the worker and waits for it to exit or for ctx to expire.
// Safe to call multiple times.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.config.Enabled || !s.started.Load() {
		return nil
	}

	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
		logger.Debug("Transaction sweeper stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Transaction sweeper shutdown timeout")
		return ctx.Err()
	}
}

// RunNow sweeps immediately and returns the number of removed transactions.
func (s *Sweeper) RunNow() int {
	return s.sweep()
}

func (s *Sweeper) worker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweep() int {
	removed := s.store.SweepStale(s.store.Now())
	if removed > 0 {
		logger.Info("Transaction sweep removed %d stale transactions (%d still active)",
			removed, s.store.Count())
	}
	return removed
}
