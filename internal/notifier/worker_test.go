package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncall-service/internal/db"
	"oncall-service/internal/events"
	"oncall-service/internal/models"
)

type mockStore struct {
	mu            sync.Mutex
	pending       []models.NotificationRequest
	marks         map[string]models.NotificationRequest
	contactPoints map[string][]models.ContactPoint
	incidents     map[string]models.Incident
}

func newMockStore() *mockStore {
	return &mockStore{
		marks:         make(map[string]models.NotificationRequest),
		contactPoints: make(map[string][]models.ContactPoint),
		incidents:     make(map[string]models.Incident),
	}
}

func (m *mockStore) ClaimNextNotification(_ context.Context) (models.NotificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return models.NotificationRequest{}, db.ErrNotFound
	}
	req := m.pending[0]
	m.pending = m.pending[1:]
	req.Status = models.NotificationSending
	return req, nil
}

func (m *mockStore) MarkNotification(_ context.Context, id string, status models.NotificationStatus, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[id] = models.NotificationRequest{
		ID: id, Status: status, AttemptCount: attempts, LastError: lastError,
	}
	return nil
}

func (m *mockStore) GetContactPointsByMember(_ context.Context, memberID string) ([]models.ContactPoint, error) {
	return m.contactPoints[memberID], nil
}

func (m *mockStore) GetIncident(_ context.Context, id string) (models.Incident, error) {
	inc, ok := m.incidents[id]
	if !ok {
		return models.Incident{}, db.ErrNotFound
	}
	return inc, nil
}

func (m *mockStore) ResetInFlightNotifications(_ context.Context) (int64, error) {
	return 0, nil
}

func (m *mockStore) mark(id string) models.NotificationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[id]
}

// fakeSender fails failures times before succeeding, recording each call.
type fakeSender struct {
	mu       sync.Mutex
	kind     string
	failures int
	calls    int
}

func (f *fakeSender) Type() string { return f.kind }

func (f *fakeSender) Send(_ context.Context, _ Message, _ models.ContactPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("provider unavailable")
	}
	return nil
}

type mockSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockSink) Publish(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func emailContactPoint(member string) models.ContactPoint {
	return models.ContactPoint{
		ID: "cp-" + member, MemberID: member, Type: "email",
		Configuration: map[string]interface{}{"address": member + "@example.com"},
		Status:        "active",
	}
}

func testRequest() models.NotificationRequest {
	return models.NotificationRequest{
		ID: "req-1", IncidentID: "inc-1", TargetMember: "alice",
		Status: models.NotificationPending,
	}
}

func testWorker(store *mockStore, sink *mockSink, senders ...Sender) *Worker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewWorker(store, senders, sink, logger, Options{
		Workers:      1,
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  3,
		Backoff:      time.Millisecond,
	})
}

func seed(store *mockStore) {
	store.incidents["inc-1"] = models.Incident{ID: "inc-1", Title: "db down", Body: "primary db down", Severity: 2}
	store.contactPoints["alice"] = []models.ContactPoint{emailContactPoint("alice")}
}

func TestDeliver_Success(t *testing.T) {
	store := newMockStore()
	seed(store)
	sender := &fakeSender{kind: "email"}
	worker := testWorker(store, &mockSink{}, sender)

	worker.Deliver(context.Background(), testRequest())

	mark := store.mark("req-1")
	assert.Equal(t, models.NotificationDelivered, mark.Status)
	assert.Equal(t, 1, mark.AttemptCount)
	assert.Equal(t, 1, sender.calls)
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	store := newMockStore()
	seed(store)
	sender := &fakeSender{kind: "email", failures: 2}
	worker := testWorker(store, &mockSink{}, sender)

	worker.Deliver(context.Background(), testRequest())

	mark := store.mark("req-1")
	assert.Equal(t, models.NotificationDelivered, mark.Status)
	assert.Equal(t, 3, mark.AttemptCount)
}

func TestDeliver_ExhaustedRetriesMarksFailed(t *testing.T) {
	store := newMockStore()
	seed(store)
	sender := &fakeSender{kind: "email", failures: 100}
	sink := &mockSink{}
	worker := testWorker(store, sink, sender)

	worker.Deliver(context.Background(), testRequest())

	mark := store.mark("req-1")
	assert.Equal(t, models.NotificationFailed, mark.Status)
	assert.Equal(t, 3, mark.AttemptCount, "attempts are bounded")
	assert.Contains(t, mark.LastError, "provider unavailable")
	require.Len(t, sink.events, 1)
	assert.Equal(t, events.TypeNotificationFailed, sink.events[0].Type)
}

func TestDeliver_ChannelHintsFilterContactPoints(t *testing.T) {
	store := newMockStore()
	seed(store)
	store.contactPoints["alice"] = append(store.contactPoints["alice"], models.ContactPoint{
		ID: "cp-sms", MemberID: "alice", Type: "sms",
		Configuration: map[string]interface{}{"phone_number": "+15550100"},
		Status:        "active",
	})
	email := &fakeSender{kind: "email"}
	sms := &fakeSender{kind: "sms"}
	worker := testWorker(store, &mockSink{}, email, sms)

	req := testRequest()
	req.ChannelHints = []string{"sms"}
	worker.Deliver(context.Background(), req)

	assert.Equal(t, 0, email.calls)
	assert.Equal(t, 1, sms.calls)
	assert.Equal(t, models.NotificationDelivered, store.mark("req-1").Status)
}

func TestDeliver_NoContactPointsFails(t *testing.T) {
	store := newMockStore()
	store.incidents["inc-1"] = models.Incident{ID: "inc-1", Title: "db down"}
	sink := &mockSink{}
	worker := testWorker(store, sink, &fakeSender{kind: "email"})

	worker.Deliver(context.Background(), testRequest())

	mark := store.mark("req-1")
	assert.Equal(t, models.NotificationFailed, mark.Status)
	assert.Contains(t, mark.LastError, "no usable contact points")
	require.Len(t, sink.events, 1)
}

func TestWorkerPool_ClaimsAndStops(t *testing.T) {
	store := newMockStore()
	seed(store)
	store.pending = []models.NotificationRequest{testRequest()}
	worker := testWorker(store, &mockSink{}, &fakeSender{kind: "email"})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	worker.Start(ctx, &wg)

	require.Eventually(t, func() bool {
		return store.mark("req-1").Status == models.NotificationDelivered
	}, time.Second, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notification workers did not stop after cancellation")
	}
}
