package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/models"
)

type fakeTenantStore struct {
	tenant  *models.Tenant
	active  []string
	setCode string
	set     int
	cleared int
}

func (s *fakeTenantStore) TenantByUID(ctx context.Context, uid int64) (*models.Tenant, error) {
	return s.tenant, nil
}

func (s *fakeTenantStore) MarkUserActive(ctx context.Context, tenantUID int64, userID string) error {
	s.active = append(s.active, userID)
	return nil
}

func (s *fakeTenantStore) SetPaymentFailure(ctx context.Context, tenantUID int64, code string) error {
	s.set++
	s.setCode = code
	return nil
}

func (s *fakeTenantStore) ClearPaymentFailure(ctx context.Context, tenantUID int64) error {
	s.cleared++
	return nil
}

type fakePayments struct {
	state PaymentState
}

func (p *fakePayments) CustomerPaymentState(ctx context.Context, customerID string) (PaymentState, error) {
	return p.state, nil
}

func TestMarkUserActive(t *testing.T) {
	store := &fakeTenantStore{}
	svc := NewService(store, nil)

	require.NoError(t, svc.MarkUserActive(context.Background(), 1, "user_9"))
	assert.Equal(t, []string{"user_9"}, store.active)
}

func TestRefreshPaymentState_FailureRecorded(t *testing.T) {
	store := &fakeTenantStore{tenant: &models.Tenant{UID: 1, CustomerID: "cus_123"}}
	svc := NewService(store, &fakePayments{state: PaymentState{Failed: true, FailureCode: "card_declined"}})

	require.NoError(t, svc.RefreshPaymentState(context.Background(), 1))
	assert.Equal(t, 1, store.set)
	assert.Equal(t, "card_declined", store.setCode)
	assert.Zero(t, store.cleared)
}

func TestRefreshPaymentState_FailureCleared(t *testing.T) {
	store := &fakeTenantStore{tenant: &models.Tenant{UID: 1, CustomerID: "cus_123"}}
	svc := NewService(store, &fakePayments{})

	require.NoError(t, svc.RefreshPaymentState(context.Background(), 1))
	assert.Zero(t, store.set)
	assert.Equal(t, 1, store.cleared)
}

func TestRefreshPaymentState_NoCustomer(t *testing.T) {
	store := &fakeTenantStore{tenant: &models.Tenant{UID: 1}}
	svc := NewService(store, &fakePayments{state: PaymentState{Failed: true}})

	require.NoError(t, svc.RefreshPaymentState(context.Background(), 1))
	assert.Zero(t, store.set, "a tenant without a billing customer never fails")
	assert.Equal(t, 1, store.cleared)
}
