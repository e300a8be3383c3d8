package tasks

import (
	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/models"
)

// Task names, shared by publishers and the handler registry.
const (
	TaskStoreCompletion           = "store_completion"
	TaskStartExperimentCompletion = "start_experiment_completion"
	TaskUserConnected             = "user_connected"
	// TaskPaymentUpdated is published by the billing dashboard's Stripe
	// webhook relay onto the shared Redis broker; this process only
	// consumes it.
	TaskPaymentUpdated = "payment_updated"
)

// StoreCompletionPayload carries a finished completion to the persistence
// handler. The full record travels in the payload so the handler does not
// depend on request-scoped state.
type StoreCompletionPayload struct {
	Completion *models.AgentCompletion `json:"completion"`
}

// StartExperimentCompletionPayload identifies one reserved (version, input)
// cell of an experiment to run.
type StartExperimentCompletionPayload struct {
	TenantUID    int64     `json:"tenant_uid"`
	ExperimentID string    `json:"experiment_id"`
	CompletionID uuid.UUID `json:"completion_id"`
	VersionID    string    `json:"version_id"`
	InputID      string    `json:"input_id"`
}

// UserConnectedPayload records a user sighting for activity tracking.
type UserConnectedPayload struct {
	TenantUID int64  `json:"tenant_uid"`
	UserID    string `json:"user_id,omitempty"`
}

// PaymentUpdatedPayload triggers a refresh of a tenant's payment state.
type PaymentUpdatedPayload struct {
	TenantUID int64 `json:"tenant_uid"`
}
