package services

import (
	"context"
	"strings"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// AgentStore is the slice of the relational store agents need.
type AgentStore interface {
	UpsertAgent(ctx context.Context, tenantUID int64, agent *models.Agent) error
	ListAgents(ctx context.Context, tenantUID int64) ([]models.Agent, error)
}

// AgentService manages the named prompt roles of a tenant.
type AgentService struct {
	store AgentStore
}

// NewAgentService builds an AgentService.
func NewAgentService(store AgentStore) *AgentService {
	return &AgentService{store: store}
}

// Create registers an agent, upserting by slug so re-creation is a no-op.
func (s *AgentService) Create(ctx context.Context, tenantUID int64, agent *models.Agent) (*models.Agent, error) {
	agent.Slug = agentSlug(models.ParseExternalID(models.KindAgent, agent.Slug))
	if agent.Slug == "" {
		return nil, apperr.BadRequest("agent requires an id")
	}
	if agent.Name == "" {
		agent.Name = agent.Slug
	}
	if err := s.store.UpsertAgent(ctx, tenantUID, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// List returns every agent of the tenant.
func (s *AgentService) List(ctx context.Context, tenantUID int64) ([]models.Agent, error) {
	return s.store.ListAgents(ctx, tenantUID)
}

// agentSlug normalizes a user-supplied agent id to lowercase kebab case.
func agentSlug(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, slug)
	return strings.Trim(slug, "-")
}
