// Package kafka is the incident intake path: monitoring tools publish
// incident lifecycle events to a topic, and the consumer turns them into
// open incidents (or auto-resolves them) in the store.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"oncall-service/internal/models"
)

// Store is the incident store the intake writes to.
type Store interface {
	CreateIncident(ctx context.Context, inc models.Incident) (bool, error)
	ResolveIncidentByKey(ctx context.Context, key string, at time.Time) error
}

// incidentEvent is the wire format monitoring tools publish.
type incidentEvent struct {
	Event              string `json:"event"` // "triggered" or "resolved"
	IncidentKey        string `json:"incident_key"`
	Title              string `json:"title"`
	Body               string `json:"body"`
	Severity           int    `json:"severity"`
	EscalationPolicyID string `json:"escalation_policy_id"`
}

type Consumer struct {
	reader *kafka.Reader
	store  Store
	logger *logrus.Logger
}

func NewConsumer(brokers []string, topic, groupID string, store Store, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, store: store, logger: logger}
}

// Start launches the consume loop. Malformed or invalid messages are logged
// and skipped; the loop exits when ctx is cancelled or the reader is closed.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					c.logger.Info("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}
			c.handle(ctx, msg.Value)
		}
	}()
}

func (c *Consumer) handle(ctx context.Context, value []byte) {
	var event incidentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		c.logger.Errorf("Unmarshal message failed: %v", err)
		return
	}
	if event.IncidentKey == "" {
		c.logger.Error("Invalid message: missing incident_key")
		return
	}

	switch event.Event {
	case "triggered":
		if event.EscalationPolicyID == "" || event.Title == "" {
			c.logger.Errorf("Invalid triggered event for key %s: missing escalation_policy_id or title", event.IncidentKey)
			return
		}
		now := time.Now()
		inc := models.Incident{
			ID:                 uuid.New().String(),
			Key:                event.IncidentKey,
			Title:              event.Title,
			Body:               event.Body,
			Severity:           event.Severity,
			EscalationPolicyID: event.EscalationPolicyID,
			Status:             models.IncidentOpen,
			StepIndex:          0,
			EscalationCycle:    0,
			StepEnteredAt:      now,
			CreatedAt:          now,
		}
		created, err := c.store.CreateIncident(ctx, inc)
		if err != nil {
			c.logger.Errorf("Create incident for key %s failed: %v", event.IncidentKey, err)
			return
		}
		if !created {
			c.logger.Infof("Incident for key %s already active, trigger ignored", event.IncidentKey)
			return
		}
		c.logger.Infof("Opened incident %s for key %s", inc.ID, event.IncidentKey)
	case "resolved":
		if err := c.store.ResolveIncidentByKey(ctx, event.IncidentKey, time.Now()); err != nil {
			c.logger.Errorf("Resolve incident for key %s failed: %v", event.IncidentKey, err)
			return
		}
		c.logger.Infof("Resolved incidents for key %s", event.IncidentKey)
	default:
		c.logger.Errorf("Invalid message: unknown event %q for key %s", event.Event, event.IncidentKey)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
