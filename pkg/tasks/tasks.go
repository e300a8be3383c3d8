// Package tasks wires the background task handlers onto the bus. Handlers
// hold narrow interfaces onto the stores so the package stays independent
// of the concrete Postgres/ClickHouse layers.
package tasks

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/bus"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// CompletionStore persists finished completions. StoreCompletion must be
// idempotent per completion id: retried tasks re-store the same record.
type CompletionStore interface {
	StoreCompletion(ctx context.Context, completion *models.AgentCompletion) error
}

// CreditLedger debits tenant credits. DebitForCompletion must be
// idempotent per completion id so a retried task never double-charges.
type CreditLedger interface {
	DebitForCompletion(ctx context.Context, tenantUID int64, completionID uuid.UUID, amountUSD float64) error
}

// ExperimentExecutor runs one reserved experiment completion end to end.
type ExperimentExecutor interface {
	ExecuteExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error
}

// TenantTracker records user activity and refreshes payment state.
type TenantTracker interface {
	MarkUserActive(ctx context.Context, tenantUID int64, userID string) error
	RefreshPaymentState(ctx context.Context, tenantUID int64) error
}

// Registry binds the task handlers to their dependencies.
type Registry struct {
	completions CompletionStore
	ledger      CreditLedger
	experiments ExperimentExecutor
	tenants     TenantTracker
	logger      *slog.Logger
}

// NewRegistry builds the handler registry. Any dependency may be nil; the
// corresponding task then logs and drops its payloads (used by dbctl and
// partial test setups).
func NewRegistry(completions CompletionStore, ledger CreditLedger, experiments ExperimentExecutor, tenants TenantTracker) *Registry {
	return &Registry{
		completions: completions,
		ledger:      ledger,
		experiments: experiments,
		tenants:     tenants,
		logger:      slog.Default(),
	}
}

// Register attaches every task handler to the bus.
func (r *Registry) Register(b *bus.Bus) {
	b.Register(TaskStoreCompletion, r.handleStoreCompletion)
	b.Register(TaskStartExperimentCompletion, r.handleStartExperimentCompletion)
	b.Register(TaskUserConnected, r.handleUserConnected)
	b.Register(TaskPaymentUpdated, r.handlePaymentUpdated)
}

// handleStoreCompletion persists the completion, then debits its cost.
// Persistence is the retry-sensitive half: a duplicate store is an upsert,
// and the ledger dedupes on completion id, so the whole handler is safe to
// re-run.
func (r *Registry) handleStoreCompletion(ctx context.Context, payload []byte) error {
	var p StoreCompletionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperr.Internal(err, "decoding store_completion payload").AsFatal()
	}
	if p.Completion == nil {
		return apperr.Internal(nil, "store_completion payload has no completion").AsFatal()
	}
	if r.completions == nil {
		r.logger.Warn("No completion store configured, dropping completion", "completion_id", p.Completion.ID)
		return nil
	}

	if err := r.completions.StoreCompletion(ctx, p.Completion); err != nil {
		return err
	}

	if r.ledger != nil && p.Completion.CostUSD > 0 {
		if err := r.ledger.DebitForCompletion(ctx, p.Completion.TenantUID, p.Completion.ID, p.Completion.CostUSD); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) handleStartExperimentCompletion(ctx context.Context, payload []byte) error {
	var p StartExperimentCompletionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperr.Internal(err, "decoding start_experiment_completion payload").AsFatal()
	}
	if r.experiments == nil {
		r.logger.Warn("No experiment executor configured, dropping task", "experiment_id", p.ExperimentID)
		return nil
	}
	return r.experiments.ExecuteExperimentCompletion(ctx, p.TenantUID, p.ExperimentID, p.CompletionID)
}

func (r *Registry) handleUserConnected(ctx context.Context, payload []byte) error {
	var p UserConnectedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperr.Internal(err, "decoding user_connected payload").AsFatal()
	}
	if r.tenants == nil {
		return nil
	}
	return r.tenants.MarkUserActive(ctx, p.TenantUID, p.UserID)
}

func (r *Registry) handlePaymentUpdated(ctx context.Context, payload []byte) error {
	var p PaymentUpdatedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperr.Internal(err, "decoding payment_updated payload").AsFatal()
	}
	if r.tenants == nil {
		return nil
	}
	return r.tenants.RefreshPaymentState(ctx, p.TenantUID)
}
