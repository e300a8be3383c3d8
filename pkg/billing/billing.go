// Package billing tracks tenant activity and payment state. It backs the
// user_connected and payment_updated background tasks: activity is stamped
// on the tenant row, and payment state is refreshed from Stripe so the
// credit gate can block tenants whose last charge failed.
package billing

import (
	"context"
	"log/slog"

	"github.com/anotherai-dev/anotherai/pkg/models"
)

// TenantStore is the slice of the relational store billing needs.
type TenantStore interface {
	TenantByUID(ctx context.Context, uid int64) (*models.Tenant, error)
	MarkUserActive(ctx context.Context, tenantUID int64, userID string) error
	SetPaymentFailure(ctx context.Context, tenantUID int64, code string) error
	ClearPaymentFailure(ctx context.Context, tenantUID int64) error
}

// Service implements the tenant tracking side of the task registry.
type Service struct {
	store    TenantStore
	payments PaymentProvider
	logger   *slog.Logger
}

// NewService builds a Service. payments may be nil when no billing backend
// is configured; payment refreshes then clear any recorded failure.
func NewService(store TenantStore, payments PaymentProvider) *Service {
	return &Service{store: store, payments: payments, logger: slog.Default()}
}

// MarkUserActive stamps the tenant's last activity.
func (s *Service) MarkUserActive(ctx context.Context, tenantUID int64, userID string) error {
	return s.store.MarkUserActive(ctx, tenantUID, userID)
}

// RefreshPaymentState re-reads the tenant's payment status from the billing
// backend and records or clears the failure marker accordingly.
func (s *Service) RefreshPaymentState(ctx context.Context, tenantUID int64) error {
	tenant, err := s.store.TenantByUID(ctx, tenantUID)
	if err != nil {
		return err
	}
	if s.payments == nil || tenant.CustomerID == "" {
		return s.store.ClearPaymentFailure(ctx, tenantUID)
	}

	state, err := s.payments.CustomerPaymentState(ctx, tenant.CustomerID)
	if err != nil {
		return err
	}
	if state.Failed {
		s.logger.Warn("Recording payment failure", "tenant_uid", tenantUID, "code", state.FailureCode)
		return s.store.SetPaymentFailure(ctx, tenantUID, state.FailureCode)
	}
	return s.store.ClearPaymentFailure(ctx, tenantUID)
}
