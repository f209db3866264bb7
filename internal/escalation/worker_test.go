package escalation

import (
	"context"
	"errors"
	"fmt"
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

// mockStore is an in-memory incident store with the same compare-and-set
// semantics as the real one.
type mockStore struct {
	mu         sync.Mutex
	incidents  map[string]models.Incident
	policies   map[string]models.EscalationPolicy
	requests   []models.NotificationRequest
	advanceErr map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		incidents:  make(map[string]models.Incident),
		policies:   make(map[string]models.EscalationPolicy),
		advanceErr: make(map[string]error),
	}
}

func (m *mockStore) ListOpenIncidents(_ context.Context) ([]models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []models.Incident
	for _, inc := range m.incidents {
		if inc.Status == models.IncidentOpen {
			open = append(open, inc)
		}
	}
	return open, nil
}

func (m *mockStore) GetEscalationPolicy(_ context.Context, id string) (models.EscalationPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return models.EscalationPolicy{}, fmt.Errorf("escalation policy %s: %w", id, db.ErrNotFound)
	}
	return p, nil
}

func (m *mockStore) AdvanceIncident(_ context.Context, inc models.Incident, nextStep, nextCycle int, firedAt time.Time, req *models.NotificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.advanceErr[inc.ID]; err != nil {
		return err
	}
	cur, ok := m.incidents[inc.ID]
	if !ok {
		return fmt.Errorf("incident %s: %w", inc.ID, db.ErrNotFound)
	}
	if cur.Status != models.IncidentOpen || cur.StepIndex != inc.StepIndex || cur.EscalationCycle != inc.EscalationCycle {
		return fmt.Errorf("incident %s: %w", inc.ID, db.ErrConflict)
	}
	cur.StepIndex = nextStep
	cur.EscalationCycle = nextCycle
	cur.StepEnteredAt = firedAt
	m.incidents[inc.ID] = cur
	if req != nil {
		m.requests = append(m.requests, *req)
	}
	return nil
}

type mockResolver struct {
	oncall map[string]string
}

func (m *mockResolver) OnCall(_ context.Context, rotationID string, _ time.Time) (string, error) {
	member, ok := m.oncall[rotationID]
	if !ok {
		return "", fmt.Errorf("rotation %s: %w", rotationID, db.ErrNoCoverage)
	}
	return member, nil
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

func (m *mockSink) byType(eventType string) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testWorker(store *mockStore, resolver *mockResolver, sink *mockSink, now time.Time) *Worker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	w := NewWorker(store, resolver, sink, logger, 10*time.Millisecond)
	w.now = func() time.Time { return now }
	return w
}

func TestWorker_AdvancesDueIncident(t *testing.T) {
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	store.incidents["inc-1"] = openIncident(0, 0, t0)
	sink := &mockSink{}
	worker := testWorker(store, &mockResolver{oncall: map[string]string{"rot-1": "alice"}}, sink, t0.Add(10*time.Minute))

	worker.Scan(context.Background())

	inc := store.incidents["inc-1"]
	assert.Equal(t, 1, inc.StepIndex)
	assert.Equal(t, t0.Add(10*time.Minute), inc.StepEnteredAt)
	require.Len(t, store.requests, 1)
	assert.Equal(t, "alice", store.requests[0].TargetMember)
	assert.Equal(t, "inc-1", store.requests[0].IncidentID)
	assert.Equal(t, 0, store.requests[0].StepIndex)
	assert.Len(t, sink.byType(events.TypeIncidentEscalated), 1)
}

func TestWorker_NotDueLeavesIncidentAlone(t *testing.T) {
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	store.incidents["inc-1"] = openIncident(0, 0, t0)
	worker := testWorker(store, &mockResolver{oncall: map[string]string{"rot-1": "alice"}}, &mockSink{}, t0.Add(time.Minute))

	worker.Scan(context.Background())

	assert.Equal(t, 0, store.incidents["inc-1"].StepIndex)
	assert.Empty(t, store.requests)
}

func TestWorker_ConcurrentScansAdvanceOnce(t *testing.T) {
	// Several scanners observing the same elapsed timeout must advance the
	// incident exactly one step: the compare-and-set lets one win and the
	// rest drop their conflict silently.
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	store.incidents["inc-1"] = openIncident(0, 0, t0)
	sink := &mockSink{}
	now := t0.Add(10 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		worker := testWorker(store, &mockResolver{oncall: map[string]string{"rot-1": "alice"}}, sink, now)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Scan(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.incidents["inc-1"].StepIndex)
	assert.Len(t, store.requests, 1, "exactly one notification for one elapsed timeout")
}

func TestWorker_PartialFailureIsolation(t *testing.T) {
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	bad := openIncident(0, 0, t0)
	bad.ID = "inc-bad"
	good := openIncident(0, 0, t0)
	good.ID = "inc-good"
	store.incidents["inc-bad"] = bad
	store.incidents["inc-good"] = good
	store.advanceErr["inc-bad"] = errors.New("connection reset")
	worker := testWorker(store, &mockResolver{oncall: map[string]string{"rot-1": "alice"}}, &mockSink{}, t0.Add(10*time.Minute))

	worker.Scan(context.Background())

	// The healthy incident advanced even though the other one failed.
	assert.Equal(t, 1, store.incidents["inc-good"].StepIndex)
}

func TestWorker_CoverageGapReportedStepStillAdvances(t *testing.T) {
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	store.incidents["inc-1"] = openIncident(0, 0, t0)
	sink := &mockSink{}
	// No on-call coverage for rot-1.
	worker := testWorker(store, &mockResolver{oncall: map[string]string{}}, sink, t0.Add(10*time.Minute))

	worker.Scan(context.Background())

	assert.Equal(t, 1, store.incidents["inc-1"].StepIndex, "gap does not stall escalation")
	assert.Empty(t, store.requests, "nobody is silently picked as a default")
	assert.Len(t, sink.byType(events.TypeCoverageGap), 1)
}

func TestWorker_FixedMemberTargetSkipsResolver(t *testing.T) {
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	inc := openIncident(1, 0, t0) // step 1 targets the fixed member "manager"
	store.incidents["inc-1"] = inc
	worker := testWorker(store, &mockResolver{oncall: map[string]string{}}, &mockSink{}, t0.Add(time.Hour))

	worker.Scan(context.Background())

	require.Len(t, store.requests, 1)
	assert.Equal(t, "manager", store.requests[0].TargetMember)
}

func TestWorker_ExhaustionReportedOnce(t *testing.T) {
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	store.incidents["inc-1"] = openIncident(1, 0, t0)
	sink := &mockSink{}
	worker := testWorker(store, &mockResolver{oncall: map[string]string{"rot-1": "alice"}}, sink, t0.Add(time.Hour))

	worker.Scan(context.Background())
	worker.Scan(context.Background())
	worker.Scan(context.Background())

	assert.Equal(t, 2, store.incidents["inc-1"].StepIndex, "parked at len(steps)")
	assert.Len(t, sink.byType(events.TypeEscalationExhausted), 1)
	assert.Len(t, store.requests, 1, "no further notifications after exhaustion")
}

func TestWorker_GracefulShutdown(t *testing.T) {
	store := newMockStore()
	store.policies["esc-1"] = twoStepPolicy(0)
	store.incidents["inc-1"] = openIncident(0, 0, t0)
	worker := testWorker(store, &mockResolver{oncall: map[string]string{"rot-1": "alice"}}, &mockSink{}, t0.Add(10*time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	worker.Start(ctx, &wg)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.incidents["inc-1"].StepIndex == 1
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
		t.Fatal("worker did not stop after cancellation")
	}
}
