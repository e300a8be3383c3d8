package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/bus"
	"github.com/anotherai-dev/anotherai/pkg/config"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

type fakeCompletionStore struct {
	mu     sync.Mutex
	stored []*models.AgentCompletion
	err    error
}

func (s *fakeCompletionStore) StoreCompletion(ctx context.Context, c *models.AgentCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, c)
	return nil
}

type fakeLedger struct {
	mu     sync.Mutex
	debits map[uuid.UUID]float64
}

func (l *fakeLedger) DebitForCompletion(ctx context.Context, tenantUID int64, completionID uuid.UUID, amountUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debits == nil {
		l.debits = map[uuid.UUID]float64{}
	}
	l.debits[completionID] = amountUSD
	return nil
}

type fakeTracker struct {
	mu        sync.Mutex
	active    []string
	refreshed []int64
}

func (f *fakeTracker) MarkUserActive(ctx context.Context, tenantUID int64, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = append(f.active, userID)
	return nil
}

func (f *fakeTracker) RefreshPaymentState(ctx context.Context, tenantUID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, tenantUID)
	return nil
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHandleStoreCompletion(t *testing.T) {
	store := &fakeCompletionStore{}
	ledger := &fakeLedger{}
	r := NewRegistry(store, ledger, nil, nil)

	completion := &models.AgentCompletion{
		ID:        models.NewCompletionID(),
		TenantUID: 7,
		AgentID:   "summarizer",
		CostUSD:   0.0025,
	}
	payload := marshal(t, StoreCompletionPayload{Completion: completion})
	require.NoError(t, r.handleStoreCompletion(context.Background(), payload))

	require.Len(t, store.stored, 1)
	assert.Equal(t, completion.ID, store.stored[0].ID)
	assert.Equal(t, 0.0025, ledger.debits[completion.ID])
}

func TestHandleStoreCompletion_FreeCompletionNotDebited(t *testing.T) {
	store := &fakeCompletionStore{}
	ledger := &fakeLedger{}
	r := NewRegistry(store, ledger, nil, nil)

	completion := &models.AgentCompletion{ID: models.NewCompletionID(), CostUSD: 0}
	require.NoError(t, r.handleStoreCompletion(context.Background(),
		marshal(t, StoreCompletionPayload{Completion: completion})))

	require.Len(t, store.stored, 1)
	assert.Empty(t, ledger.debits)
}

func TestHandleStoreCompletion_StoreFailureBeforeDebit(t *testing.T) {
	store := &fakeCompletionStore{err: apperr.Internal(nil, "clickhouse unavailable")}
	ledger := &fakeLedger{}
	r := NewRegistry(store, ledger, nil, nil)

	completion := &models.AgentCompletion{ID: models.NewCompletionID(), CostUSD: 1}
	err := r.handleStoreCompletion(context.Background(),
		marshal(t, StoreCompletionPayload{Completion: completion}))
	require.Error(t, err)
	assert.Empty(t, ledger.debits, "credits must not be debited when the store fails")
}

func TestHandleStoreCompletion_BadPayloadIsFatal(t *testing.T) {
	r := NewRegistry(&fakeCompletionStore{}, nil, nil, nil)
	err := r.handleStoreCompletion(context.Background(), []byte("not json"))
	require.Error(t, err)
	assert.True(t, apperr.IsFatal(err), "undecodable payloads must not be retried")
}

func TestHandleUserConnectedAndPaymentUpdated(t *testing.T) {
	tracker := &fakeTracker{}
	r := NewRegistry(nil, nil, nil, tracker)

	require.NoError(t, r.handleUserConnected(context.Background(),
		marshal(t, UserConnectedPayload{TenantUID: 3, UserID: "u_1"})))
	require.NoError(t, r.handlePaymentUpdated(context.Background(),
		marshal(t, PaymentUpdatedPayload{TenantUID: 3})))

	assert.Equal(t, []string{"u_1"}, tracker.active)
	assert.Equal(t, []int64{3}, tracker.refreshed)
}

func TestEmitterRoundTrip(t *testing.T) {
	b, err := bus.New(config.BrokerConfig{
		URL:         "memory://",
		Concurrency: 1,
		TaskTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(b.Stop)

	store := &fakeCompletionStore{}
	NewRegistry(store, nil, nil, nil).Register(b)
	b.Start(context.Background())

	completion := &models.AgentCompletion{ID: models.NewCompletionID(), AgentID: "summarizer"}
	NewEmitter(b).EmitCompletion(completion)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.stored)
		store.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("completion was not stored through the bus")
}
