package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/application"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
)

var log = logger.GetLogger()

// Expirer sweeps the ledger on a fixed interval: expired ACTIVE listings get
// settled, settled listings get paid out. Runs on its own goroutine, never on
// the authoritative loop; each listing is handled independently, so one
// failure is logged and retried next sweep without blocking the rest.
type Expirer struct {
	coordinator *application.Coordinator
	interval    time.Duration
}

func New(coordinator *application.Coordinator, interval time.Duration) *Expirer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Expirer{coordinator: coordinator, interval: interval}
}

func (e *Expirer) Run(ctx context.Context) {
	log.Info("expiry scheduler started", zap.Duration("interval", e.interval))
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("expiry scheduler stopped")
			return
		case now := <-ticker.C:
			e.Sweep(now)
		}
	}
}

// Sweep performs one full pass. Exported so callers (and tests) can force a
// sweep without waiting for the ticker.
func (e *Expirer) Sweep(now time.Time) {
	for _, id := range e.coordinator.DueForSettlement(now) {
		if res := <-e.coordinator.SettleExpired(id); res.Err != nil {
			log.Warn("settlement failed, will retry next sweep",
				zap.String("listingID", id.String()),
				zap.Error(res.Err),
			)
		}
	}
	for _, id := range e.coordinator.AwaitingPayout() {
		if res := <-e.coordinator.Payout(id); res.Err != nil {
			log.Warn("payout failed, will retry next sweep",
				zap.String("listingID", id.String()),
				zap.Error(res.Err),
			)
		}
	}
}
