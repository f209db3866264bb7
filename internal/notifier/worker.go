// Package notifier consumes persisted notification requests and hands them
// to channel-specific senders. It shares nothing in memory with the
// escalation worker: the two loops communicate only through the store, so
// either can be restarted without losing work.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"oncall-service/internal/db"
	"oncall-service/internal/events"
	"oncall-service/internal/models"
	"oncall-service/internal/utils"
)

// Message is the channel-agnostic payload handed to a sender. The sender
// owns everything channel-specific: templates, formatting, addressing.
type Message struct {
	IncidentID string
	Subject    string
	Body       string
}

// Sender delivers a message through one channel type.
type Sender interface {
	Type() string
	Send(ctx context.Context, msg Message, cp models.ContactPoint) error
}

// Store is the durable request queue and its lookups.
type Store interface {
	ClaimNextNotification(ctx context.Context) (models.NotificationRequest, error)
	MarkNotification(ctx context.Context, id string, status models.NotificationStatus, attempts int, lastError string) error
	GetContactPointsByMember(ctx context.Context, memberID string) ([]models.ContactPoint, error)
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	ResetInFlightNotifications(ctx context.Context) (int64, error)
}

// EventSink receives operator-visible events.
type EventSink interface {
	Publish(e events.Event)
}

// Options configure the delivery pool.
type Options struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	Backoff      time.Duration
}

// Worker runs a pool of goroutines that claim and deliver requests. On
// sender failure delivery is retried with exponential backoff up to a
// bounded attempt count; exhausting retries marks the request failed and
// surfaces it, but never rolls back or re-triggers escalation.
type Worker struct {
	store   Store
	senders map[string]Sender
	sink    EventSink
	logger  *logrus.Logger
	opts    Options
}

func NewWorker(store Store, senders []Sender, sink EventSink, logger *logrus.Logger, opts Options) *Worker {
	byType := make(map[string]Sender, len(senders))
	for _, s := range senders {
		byType[s.Type()] = s
	}
	return &Worker{store: store, senders: byType, sink: sink, logger: logger, opts: opts}
}

// Start requeues requests a previous run left in flight, then launches the
// worker pool.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup) {
	if n, err := w.store.ResetInFlightNotifications(ctx); err != nil {
		w.logger.Errorf("Failed to requeue in-flight notifications: %v", err)
	} else if n > 0 {
		w.logger.Infof("Requeued %d in-flight notifications", n)
	}
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go w.run(ctx, wg, i)
	}
}

func (w *Worker) run(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	w.logger.Infof("Notification worker %d started", id)
	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("Notification worker %d stopped", id)
			return
		default:
		}

		req, err := w.store.ClaimNextNotification(ctx)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				w.logger.Errorf("Failed to claim notification: %v", err)
			}
			w.idle(ctx)
			continue
		}
		w.Deliver(ctx, req)
	}
}

func (w *Worker) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.opts.PollInterval):
	}
}

// Deliver dispatches one claimed request to the target member's contact
// points and records the terminal outcome.
func (w *Worker) Deliver(ctx context.Context, req models.NotificationRequest) {
	inc, err := w.store.GetIncident(ctx, req.IncidentID)
	if err != nil {
		// Transient store failure: requeue so the next claim retries it.
		w.logger.Errorf("Failed to load incident %s for notification %s: %v", req.IncidentID, req.ID, err)
		w.requeue(ctx, req)
		return
	}

	cps, err := w.store.GetContactPointsByMember(ctx, req.TargetMember)
	if err != nil {
		w.logger.Errorf("Failed to load contact points for %s: %v", req.TargetMember, err)
		w.requeue(ctx, req)
		return
	}
	cps = w.usable(cps, req.ChannelHints)
	if len(cps) == 0 {
		w.fail(ctx, req, 0, fmt.Sprintf("no usable contact points for member %s", req.TargetMember))
		return
	}

	msg := Message{
		IncidentID: inc.ID,
		Subject:    fmt.Sprintf("[incident] %s", inc.Title),
		Body:       fmt.Sprintf("%s\nSeverity: %d\nEscalation step: %d", inc.Body, inc.Severity, req.StepIndex+1),
	}

	attempts := 0
	delivered := false
	var lastErr error
	for _, cp := range cps {
		sender := w.senders[cp.Type]
		cp := cp
		err := utils.Retry(ctx, w.logger, w.opts.MaxAttempts, w.opts.Backoff, func() error {
			attempts++
			return sender.Send(ctx, msg, cp)
		})
		if err != nil {
			lastErr = err
			w.logger.Errorf("Dispatch via %s failed for notification %s: %v", cp.Type, req.ID, err)
			continue
		}
		delivered = true
		w.logger.Infof("Notification %s delivered to %s via %s", req.ID, req.TargetMember, cp.Type)
	}

	if delivered {
		if err := w.store.MarkNotification(ctx, req.ID, models.NotificationDelivered, attempts, ""); err != nil {
			w.logger.Errorf("Failed to mark notification %s delivered: %v", req.ID, err)
		}
		return
	}
	w.fail(ctx, req, attempts, fmt.Sprintf("%v", lastErr))
}

// usable filters contact points to those matching the request's channel
// hints (no hints means any channel) and having a registered sender.
func (w *Worker) usable(cps []models.ContactPoint, hints []string) []models.ContactPoint {
	hinted := func(t string) bool {
		if len(hints) == 0 {
			return true
		}
		for _, h := range hints {
			if h == t {
				return true
			}
		}
		return false
	}
	var out []models.ContactPoint
	for _, cp := range cps {
		if _, ok := w.senders[cp.Type]; ok && hinted(cp.Type) {
			out = append(out, cp)
		}
	}
	return out
}

func (w *Worker) requeue(ctx context.Context, req models.NotificationRequest) {
	if err := w.store.MarkNotification(ctx, req.ID, models.NotificationPending, req.AttemptCount, ""); err != nil {
		w.logger.Errorf("Failed to requeue notification %s: %v", req.ID, err)
	}
	w.idle(ctx)
}

func (w *Worker) fail(ctx context.Context, req models.NotificationRequest, attempts int, reason string) {
	w.logger.Errorf("Notification %s failed permanently: %s", req.ID, reason)
	if err := w.store.MarkNotification(ctx, req.ID, models.NotificationFailed, attempts, reason); err != nil {
		w.logger.Errorf("Failed to mark notification %s failed: %v", req.ID, err)
	}
	w.sink.Publish(events.Event{
		Type: events.TypeNotificationFailed,
		Payload: map[string]interface{}{
			"notification_id": req.ID,
			"incident_id":     req.IncidentID,
			"target_member":   req.TargetMember,
			"error":           reason,
		},
	})
}
