package jobs

import (
	"context"
	"log"
	"time"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
)

// StartSessionSweep periodically purges expired sessions and their ledger
// partitions. Correctness never depends on the sweep running; it only bounds
// memory, so it is safe to disable.
func StartSessionSweep(ctx context.Context, cfg config.Config, service *attendance.Service) {
	if !cfg.SweepEnabled {
		return
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if purged := service.PurgeExpired(time.Now().UTC()); purged > 0 {
					log.Printf("session sweep purged %d expired sessions", purged)
				}
			}
		}
	}()
}
