package services

import (
	"context"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// DeploymentStore is the slice of the relational store deployments need.
type DeploymentStore interface {
	UpsertDeployment(ctx context.Context, tenantUID int64, d *models.Deployment) error
	DeploymentByID(ctx context.Context, tenantUID int64, id string) (*models.Deployment, error)
	ListDeployments(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Deployment, string, error)
	ArchiveDeployment(ctx context.Context, tenantUID int64, id string) error
}

// DeploymentService manages stable alias → version bindings.
type DeploymentService struct {
	store DeploymentStore
}

// NewDeploymentService builds a DeploymentService.
func NewDeploymentService(store DeploymentStore) *DeploymentService {
	return &DeploymentService{store: store}
}

// Upsert creates the deployment or rotates the version an existing alias
// points to. The version id is always recomputed from the payload.
func (s *DeploymentService) Upsert(ctx context.Context, tenantUID int64, d *models.Deployment) (*models.Deployment, error) {
	d.ID = models.ParseExternalID(models.KindDeployment, d.ID)
	if d.ID == "" {
		return nil, apperr.BadRequest("deployment requires an id")
	}
	if d.AgentID == "" {
		return nil, apperr.BadRequest("deployment requires an agent_id")
	}
	if d.Version.Model == "" {
		return nil, apperr.InvalidRunOptions("deployment version requires a model")
	}
	d.VersionID = d.Version.ID()
	if err := s.store.UpsertDeployment(ctx, tenantUID, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get fetches one deployment by alias.
func (s *DeploymentService) Get(ctx context.Context, tenantUID int64, id string) (*models.Deployment, error) {
	return s.store.DeploymentByID(ctx, tenantUID, models.ParseExternalID(models.KindDeployment, id))
}

// List pages deployments, newest first, optionally filtered by agent.
func (s *DeploymentService) List(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Deployment, string, error) {
	return s.store.ListDeployments(ctx, tenantUID, agentID, cursor, limit)
}

// Archive retires a deployment. Archived deployments stay resolvable by id
// but disappear from listings; archiving twice is a no-op.
func (s *DeploymentService) Archive(ctx context.Context, tenantUID int64, id string) error {
	return s.store.ArchiveDeployment(ctx, tenantUID, models.ParseExternalID(models.KindDeployment, id))
}
