package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anotherai-dev/anotherai/pkg/models"
)

// UpsertAgent creates the agent on first use and fills in the assigned
// uid. Re-upserting an existing slug is a no-op read.
func (s *Store) UpsertAgent(ctx context.Context, tenantUID int64, agent *models.Agent) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`INSERT INTO agents (slug, name) VALUES ($1, $2)
			 ON CONFLICT (tenant_uid, slug) DO UPDATE SET slug = EXCLUDED.slug
			 RETURNING uid, created_at`,
			agent.Slug, agent.Name).Scan(&agent.UID, &agent.CreatedAt)
		if err != nil {
			return fmt.Errorf("upserting agent %q: %w", agent.Slug, err)
		}
		agent.TenantUID = tenantUID
		return nil
	})
}

// ListAgents returns the tenant's agents ordered by creation time.
func (s *Store) ListAgents(ctx context.Context, tenantUID int64) ([]models.Agent, error) {
	var agents []models.Agent
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT uid, slug, name, created_at FROM agents ORDER BY created_at DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a models.Agent
			if err := rows.Scan(&a.UID, &a.Slug, &a.Name, &a.CreatedAt); err != nil {
				return err
			}
			a.TenantUID = tenantUID
			agents = append(agents, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	return agents, nil
}
