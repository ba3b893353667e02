package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LockSweeper periodically deletes expired inventory locks. Availability
// queries already ignore expired locks, so the sweep only keeps the table small.
type LockSweeper struct {
	inventory InventoryService
	interval  time.Duration
	logger    *zap.Logger
}

func NewLockSweeper(inventory InventoryService, interval time.Duration, logger *zap.Logger) *LockSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LockSweeper{inventory: inventory, interval: interval, logger: logger}
}

// Run sweeps on every tick until ctx is done.
func (s *LockSweeper) Run(ctx context.Context) {
	s.logger.Info("lock sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lock sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *LockSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if _, svcErr := s.inventory.CleanupExpiredLocks(sweepCtx); svcErr != nil {
		s.logger.Warn("lock sweep failed", zap.String("code", svcErr.Code), zap.Error(svcErr.Err))
	}
}
