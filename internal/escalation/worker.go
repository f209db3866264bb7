package escalation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"oncall-service/internal/db"
	"oncall-service/internal/events"
	"oncall-service/internal/models"
)

// Store is the durable incident state the worker scans and advances.
type Store interface {
	ListOpenIncidents(ctx context.Context) ([]models.Incident, error)
	GetEscalationPolicy(ctx context.Context, id string) (models.EscalationPolicy, error)
	AdvanceIncident(ctx context.Context, inc models.Incident, nextStep, nextCycle int, firedAt time.Time, req *models.NotificationRequest) error
}

// OnCallResolver resolves "whoever is currently on call" targets at step
// fire time.
type OnCallResolver interface {
	OnCall(ctx context.Context, rotationID string, at time.Time) (string, error)
}

// EventSink receives operator-visible events.
type EventSink interface {
	Publish(e events.Event)
}

// Worker is the long-lived escalation scanner. Each cycle it fetches all
// open incidents and applies the transition rule to each one independently:
// a failure on one incident never aborts the scan of the rest, and two
// workers scanning concurrently are safe because every advance is an
// optimistic compare-and-set in the store.
type Worker struct {
	store    Store
	resolver OnCallResolver
	sink     EventSink
	logger   *logrus.Logger
	interval time.Duration
	now      func() time.Time
}

func NewWorker(store Store, resolver OnCallResolver, sink EventSink, logger *logrus.Logger, interval time.Duration) *Worker {
	return &Worker{
		store:    store,
		resolver: resolver,
		sink:     sink,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the scan loop. Shutdown is cooperative: cancellation is
// observed between cycles, so the in-flight scan always finishes.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.logger.Info("Escalation worker started")
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Escalation worker stopped")
				return
			case <-ticker.C:
				w.Scan(ctx)
			}
		}
	}()
}

// Scan runs one full pass over the open incidents.
func (w *Worker) Scan(ctx context.Context) {
	incidents, err := w.store.ListOpenIncidents(ctx)
	if err != nil {
		w.logger.Errorf("Failed to list open incidents: %v", err)
		return
	}
	for _, inc := range incidents {
		if err := w.scanIncident(ctx, inc); err != nil {
			// Partial-failure isolation: log and keep scanning. The
			// incident is retried on the next cycle.
			w.logger.Errorf("Failed to escalate incident %s: %v", inc.ID, err)
		}
	}
}

func (w *Worker) scanIncident(ctx context.Context, inc models.Incident) error {
	policy, err := w.store.GetEscalationPolicy(ctx, inc.EscalationPolicyID)
	if err != nil {
		return err
	}

	now := w.now()
	adv, due, err := Evaluate(inc, policy, now)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	req, err := w.buildRequest(ctx, inc, adv, now)
	if err != nil {
		return err
	}

	if err := w.store.AdvanceIncident(ctx, inc, adv.NextStep, adv.NextCycle, now, req); err != nil {
		if errors.Is(err, db.ErrConflict) {
			// A concurrent scan already advanced this timeout; its update
			// achieved the intended effect, so this one is dropped.
			w.logger.Debugf("Incident %s step %d already advanced elsewhere", inc.ID, inc.StepIndex)
			return nil
		}
		return err
	}

	target := ""
	if req != nil {
		target = req.TargetMember
	}
	w.logger.Infof("Incident %s escalated: step %d fired (cycle %d), target %q",
		inc.ID, adv.StepIndex, inc.EscalationCycle, target)
	w.sink.Publish(events.Event{
		Type: events.TypeIncidentEscalated,
		At:   now,
		Payload: map[string]interface{}{
			"incident_id": inc.ID,
			"step_index":  adv.StepIndex,
			"cycle":       inc.EscalationCycle,
			"target":      target,
		},
	})

	if adv.Exhausted(policy) {
		w.logger.Warnf("Incident %s: escalation exhausted after step %d, incident remains open",
			inc.ID, adv.StepIndex)
		w.sink.Publish(events.Event{
			Type:    events.TypeEscalationExhausted,
			At:      now,
			Payload: map[string]interface{}{"incident_id": inc.ID},
		})
	}
	return nil
}

// buildRequest resolves the fired step's target at fire time and builds the
// notification request. A coverage gap is reported and yields no request:
// the step still advances so escalation keeps moving toward tiers that can
// be paged. A store error aborts the advance so the incident is retried on
// the next cycle.
func (w *Worker) buildRequest(ctx context.Context, inc models.Incident, adv Advance, now time.Time) (*models.NotificationRequest, error) {
	target := adv.Step.Target
	member := target.Member
	if target.Kind == models.TargetOnCall {
		var err error
		member, err = w.resolver.OnCall(ctx, target.RotationID, now)
		if err != nil {
			if errors.Is(err, db.ErrNoCoverage) {
				w.logger.Warnf("Incident %s step %d: no on-call coverage for rotation %s",
					inc.ID, adv.StepIndex, target.RotationID)
				w.sink.Publish(events.Event{
					Type: events.TypeCoverageGap,
					At:   now,
					Payload: map[string]interface{}{
						"incident_id": inc.ID,
						"rotation_id": target.RotationID,
						"step_index":  adv.StepIndex,
					},
				})
				return nil, nil
			}
			return nil, err
		}
	}
	return &models.NotificationRequest{
		ID:           uuid.New().String(),
		IncidentID:   inc.ID,
		TargetMember: member,
		ChannelHints: adv.Step.Channels,
		StepIndex:    adv.StepIndex,
		Status:       models.NotificationPending,
		CreatedAt:    now,
	}, nil
}
