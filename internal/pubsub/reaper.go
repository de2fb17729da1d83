package pubsub

import (
	"time"

	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/MerrukTechnology/DocStream/internal/metrics"
)

// reaperLoop runs in a background thread and cleans up subscriptions that
// have not been polled for a full interval. Entries in an active poll stay
// alive because checkout and checkin keep polledRecently set.
func (p *Plane) reaperLoop() {
	defer logging.RecoverPanic("pubsub-reaper", nil)

	for {
		select {
		case <-p.done:
			return
		case <-time.After(p.maxPollWindow):
		}

		reaped := p.registry.sweep()
		if reaped > 0 {
			metrics.SubscriptionsReaped.Add(float64(reaped))
			logging.Debug("Reaped abandoned subscriptions", "count", reaped)
		}
		metrics.SubscriptionsActive.Set(float64(p.registry.size()))
	}
}
