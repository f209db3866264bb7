package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Extender periodically re-materializes every rotation so the shift horizon
// never runs out while the service is up. Extension only appends future
// shifts, so it is safe to run concurrently with schedule reads.
type Extender struct {
	svc      *Service
	logger   *logrus.Logger
	interval time.Duration
}

func NewExtender(svc *Service, logger *logrus.Logger, interval time.Duration) *Extender {
	return &Extender{svc: svc, logger: logger, interval: interval}
}

// Start launches the extension loop. It runs one pass immediately, then one
// per interval, until ctx is cancelled.
func (e *Extender) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.logger.Info("Schedule extender started")
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		e.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("Schedule extender stopped")
				return
			case <-ticker.C:
				e.runOnce(ctx)
			}
		}
	}()
}

func (e *Extender) runOnce(ctx context.Context) {
	policies, err := e.svc.store.ListRotationPolicies(ctx)
	if err != nil {
		e.logger.Errorf("Failed to list rotation policies: %v", err)
		return
	}
	for _, policy := range policies {
		if err := e.svc.Materialize(ctx, policy); err != nil {
			// One broken rotation must not block extension of the rest.
			e.logger.Errorf("Failed to extend rotation %s: %v", policy.ID, err)
		}
	}
}
