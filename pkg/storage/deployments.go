package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// UpsertDeployment atomically creates or rotates a deployment alias.
// Upserting an archived deployment revives it.
func (s *Store) UpsertDeployment(ctx context.Context, tenantUID int64, d *models.Deployment) error {
	version, err := json.Marshal(d.Version)
	if err != nil {
		return fmt.Errorf("encoding deployment version: %w", err)
	}
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("encoding deployment metadata: %w", err)
	}
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`INSERT INTO deployments (id, agent_id, version, version_id, metadata, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (tenant_uid, id) DO UPDATE SET
			     agent_id = EXCLUDED.agent_id,
			     version = EXCLUDED.version,
			     version_id = EXCLUDED.version_id,
			     metadata = EXCLUDED.metadata,
			     updated_at = now(),
			     archived_at = NULL
			 RETURNING created_at, updated_at`,
			d.ID, d.AgentID, version, d.VersionID, metadata, d.CreatedBy).
			Scan(&d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upserting deployment %q: %w", d.ID, err)
		}
		d.TenantUID = tenantUID
		d.ArchivedAt = nil
		return nil
	})
}

const deploymentColumns = `id, agent_id, version, version_id, metadata,
	created_by, created_at, updated_at, archived_at`

func scanDeployment(row pgx.Row, tenantUID int64) (*models.Deployment, error) {
	var d models.Deployment
	var version, metadata []byte
	err := row.Scan(&d.ID, &d.AgentID, &version, &d.VersionID, &metadata,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.ArchivedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(version, &d.Version); err != nil {
		return nil, fmt.Errorf("decoding deployment version: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decoding deployment metadata: %w", err)
		}
	}
	d.TenantUID = tenantUID
	return &d, nil
}

// DeploymentByID fetches one deployment, archived or not.
func (s *Store) DeploymentByID(ctx context.Context, tenantUID int64, id string) (*models.Deployment, error) {
	var d *models.Deployment
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		var err error
		d, err = scanDeployment(conn.QueryRow(ctx,
			`SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id), tenantUID)
		return err
	})
	if err != nil {
		return nil, mapPgError(err, "deployment", id)
	}
	return d, nil
}

// ListDeployments pages through non-archived deployments, newest first.
// It returns the next cursor, empty when the page was the last.
func (s *Store) ListDeployments(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Deployment, string, error) {
	before, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE archived_at IS NULL`
	args := []any{}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if !before.IsZero() {
		args = append(args, before)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var deployments []models.Deployment
	err = s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDeployment(rows, tenantUID)
			if err != nil {
				return err
			}
			deployments = append(deployments, *d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, "", fmt.Errorf("listing deployments: %w", err)
	}

	var next string
	if len(deployments) > limit {
		deployments = deployments[:limit]
		next = encodeCursor(deployments[limit-1].CreatedAt)
	}
	return deployments, next, nil
}

// ArchiveDeployment soft-deletes a deployment. Archiving an already
// archived deployment is a no-op.
func (s *Store) ArchiveDeployment(ctx context.Context, tenantUID int64, id string) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE deployments SET archived_at = now(), updated_at = now()
			 WHERE id = $1 AND archived_at IS NULL`, id)
		if err != nil {
			return fmt.Errorf("archiving deployment %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			// Distinguish missing from already archived.
			var exists bool
			if err := conn.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM deployments WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperr.NotFound("deployment", "deployment %q not found", id)
			}
		}
		return nil
	})
}
