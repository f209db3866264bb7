package kafka

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncall-service/internal/models"
)

type mockStore struct {
	created  []models.Incident
	resolved []string
	existing map[string]bool
}

func (m *mockStore) CreateIncident(_ context.Context, inc models.Incident) (bool, error) {
	if m.existing[inc.Key] {
		return false, nil
	}
	m.created = append(m.created, inc)
	return true, nil
}

func (m *mockStore) ResolveIncidentByKey(_ context.Context, key string, _ time.Time) error {
	m.resolved = append(m.resolved, key)
	return nil
}

func testConsumer(store *mockStore) *Consumer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Consumer{store: store, logger: logger}
}

func TestHandleTriggeredOpensIncident(t *testing.T) {
	store := &mockStore{}
	c := testConsumer(store)

	c.handle(context.Background(), []byte(`{
		"event": "triggered",
		"incident_key": "disk-full-db1",
		"title": "Disk usage above 95%",
		"severity": 2,
		"escalation_policy_id": "pol-1"
	}`))

	require.Len(t, store.created, 1)
	inc := store.created[0]
	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, "disk-full-db1", inc.Key)
	assert.Equal(t, "pol-1", inc.EscalationPolicyID)
	assert.Equal(t, models.IncidentOpen, inc.Status)
	assert.Equal(t, 0, inc.StepIndex)
	assert.Equal(t, 0, inc.EscalationCycle)
	assert.False(t, inc.StepEnteredAt.IsZero())
}

func TestHandleTriggeredDuplicateKeyIgnored(t *testing.T) {
	store := &mockStore{existing: map[string]bool{"disk-full-db1": true}}
	c := testConsumer(store)

	c.handle(context.Background(), []byte(`{
		"event": "triggered",
		"incident_key": "disk-full-db1",
		"title": "Disk usage above 95%",
		"escalation_policy_id": "pol-1"
	}`))

	assert.Empty(t, store.created)
}

func TestHandleResolvedResolvesByKey(t *testing.T) {
	store := &mockStore{}
	c := testConsumer(store)

	c.handle(context.Background(), []byte(`{"event": "resolved", "incident_key": "disk-full-db1"}`))

	assert.Equal(t, []string{"disk-full-db1"}, store.resolved)
}

func TestHandleInvalidMessagesSkipped(t *testing.T) {
	cases := map[string]string{
		"malformed json":    `{not json`,
		"missing key":       `{"event": "triggered", "title": "x", "escalation_policy_id": "pol-1"}`,
		"missing policy":    `{"event": "triggered", "incident_key": "k", "title": "x"}`,
		"missing title":     `{"event": "triggered", "incident_key": "k", "escalation_policy_id": "pol-1"}`,
		"unknown event":     `{"event": "escalate", "incident_key": "k"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			store := &mockStore{}
			c := testConsumer(store)
			c.handle(context.Background(), []byte(payload))
			assert.Empty(t, store.created)
			assert.Empty(t, store.resolved)
		})
	}
}
