package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// CompletionRecordStore persists and fetches durable completion records.
type CompletionRecordStore interface {
	StoreCompletion(ctx context.Context, c *models.AgentCompletion) error
	CompletionByID(ctx context.Context, tenantUID int64, id uuid.UUID) (*models.AgentCompletion, error)
}

// CompletionService imports and fetches durable completion records.
type CompletionService struct {
	analytics CompletionRecordStore
}

// NewCompletionService builds a CompletionService.
func NewCompletionService(analytics CompletionRecordStore) *CompletionService {
	return &CompletionService{analytics: analytics}
}

// Import persists an already-computed completion record (shadow testing).
// The id must be a fresh UUIDv7; content hashes are recomputed server-side
// so imported records join the same cache and dedup space as live runs.
// The declared cost is stored for display; imports bypass the debit path
// and are never billed.
func (s *CompletionService) Import(ctx context.Context, tenantUID int64, c *models.AgentCompletion) (*models.AgentCompletion, error) {
	if c.ID == uuid.Nil {
		c.ID = models.NewCompletionID()
	} else if c.ID.Version() != 7 {
		return nil, apperr.BadRequest("completion id %q is not a UUIDv7", c.ID)
	}
	if c.AgentID == "" {
		return nil, apperr.BadRequest("completion requires an agent_id")
	}
	c.TenantUID = tenantUID
	c.Input.ComputeID()
	c.Input.ComputePreview()
	c.VersionID = c.Version.ID()
	if c.Status == "" {
		c.Status = models.CompletionSuccess
		if c.Output.Error != nil {
			c.Status = models.CompletionFailure
		}
	}
	if c.Source == "" {
		c.Source = models.SourceAPI
	}
	if err := s.analytics.StoreCompletion(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get fetches one completion by UUIDv7. The external prefixed form is
// accepted.
func (s *CompletionService) Get(ctx context.Context, tenantUID int64, id string) (*models.AgentCompletion, error) {
	parsed, err := models.ParseCompletionID(id)
	if err != nil {
		return nil, apperr.BadRequest("%v", err)
	}
	return s.analytics.CompletionByID(ctx, tenantUID, parsed)
}
