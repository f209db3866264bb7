// Package events broadcasts operational events (escalations, delivery
// failures, coverage gaps) to connected operator WebSocket clients.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	TypeIncidentEscalated    = "incident_escalated"
	TypeEscalationExhausted  = "escalation_exhausted"
	TypeCoverageGap          = "coverage_gap"
	TypeNotificationFailed   = "notification_failed"
	TypeIncidentAcknowledged = "incident_acknowledged"
	TypeIncidentResolved     = "incident_resolved"
)

// Event is one operator-visible occurrence.
type Event struct {
	Type    string      `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub fan-outs events to all connected operator clients. Delivery is best
// effort: a connection that fails a write is dropped.
type Hub struct {
	mutex  sync.Mutex
	conns  map[*websocket.Conn]bool
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
	}
}

// AddConnection registers an operator connection.
func (h *Hub) AddConnection(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.conns[conn] = true
	h.logger.Infof("Added operator connection (total: %d)", len(h.conns))
}

// RemoveConnection unregisters an operator connection.
func (h *Hub) RemoveConnection(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.conns, conn)
	h.logger.Infof("Removed operator connection (remaining: %d)", len(h.conns))
}

// Publish sends the event to every connected client.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Errorf("Failed to marshal event %s: %v", e.Type, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Errorf("Failed to send event to operator: %v", err)
			delete(h.conns, conn)
		}
	}
}
