package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/readyup/internal/config"
)

// Scheduler drives the time-based transitions: a single ticker loop that
// sweeps expirations and cleans up inactive sessions. Ticks run to
// completion before the next fires, so a tick never overlaps itself; it
// coexists with interactive handlers through the store's record locks.
// Expiry latency is bounded by the tick interval, a deliberate trade
// against one timer per ETA.
type Scheduler struct {
	cfg     *config.Config
	manager *Manager
}

func NewScheduler(cfg *config.Config, manager *Manager) *Scheduler {
	return &Scheduler{cfg: cfg, manager: manager}
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.cfg.SweepInterval()
	slog.Info("lifecycle scheduler started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle scheduler stopped")
			return
		case <-ticker.C:
			start := time.Now()
			s.manager.SweepAll(ctx)
			elapsed := time.Since(start)
			if elapsed > interval {
				slog.Warn("sweep tick ran longer than the interval", "elapsed", elapsed.String(), "interval", interval.String())
			}
		}
	}
}
