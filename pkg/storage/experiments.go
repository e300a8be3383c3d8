package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// CreateExperiment inserts the experiment shell. Inputs, versions, and
// completions are attached afterwards through the Add* operations.
func (s *Store) CreateExperiment(ctx context.Context, tenantUID int64, e *models.Experiment) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding experiment metadata: %w", err)
	}
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`INSERT INTO experiments (id, agent_id, title, description, author, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at, updated_at`,
			e.ID, e.AgentID, e.Title, e.Description, e.Author, metadata).
			Scan(&e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return mapPgError(err, "experiment", e.ID)
		}
		e.TenantUID = tenantUID
		return nil
	})
}

// ExperimentByID loads the experiment with its input, version, and output
// sets.
func (s *Store) ExperimentByID(ctx context.Context, tenantUID int64, id string) (*models.Experiment, error) {
	var e models.Experiment
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		var metadata []byte
		err := conn.QueryRow(ctx,
			`SELECT id, agent_id, title, description, author, metadata, created_at, updated_at
			 FROM experiments WHERE id = $1 AND deleted_at IS NULL`, id).
			Scan(&e.ID, &e.AgentID, &e.Title, &e.Description, &e.Author,
				&metadata, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return fmt.Errorf("decoding experiment metadata: %w", err)
			}
		}
		e.TenantUID = tenantUID

		rows, err := conn.Query(ctx,
			`SELECT input_id, alias FROM experiment_inputs
			 WHERE experiment_id = $1 ORDER BY created_at, input_id`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var in models.ExperimentInput
			if err := rows.Scan(&in.InputID, &in.Alias); err != nil {
				rows.Close()
				return err
			}
			e.Inputs = append(e.Inputs, in)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = conn.Query(ctx,
			`SELECT version_id, alias FROM experiment_versions
			 WHERE experiment_id = $1 ORDER BY created_at, version_id`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var v models.ExperimentVersion
			if err := rows.Scan(&v.VersionID, &v.Alias); err != nil {
				rows.Close()
				return err
			}
			e.Versions = append(e.Versions, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = conn.Query(ctx,
			`SELECT input_id, version_id, completion_id, started_at, completed_at
			 FROM experiment_outputs WHERE experiment_id = $1 ORDER BY created_at, completion_id`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var o models.ExperimentOutput
			if err := rows.Scan(&o.InputID, &o.VersionID, &o.CompletionID, &o.StartedAt, &o.CompletedAt); err != nil {
				return err
			}
			e.Outputs = append(e.Outputs, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapPgError(err, "experiment", id)
	}
	return &e, nil
}

// ListExperiments pages through the tenant's experiments, newest first.
func (s *Store) ListExperiments(ctx context.Context, tenantUID int64, agentID, cursor string, limit int) ([]models.Experiment, string, error) {
	before, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, agent_id, title, description, author, created_at, updated_at
		FROM experiments WHERE deleted_at IS NULL`
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

	var experiments []models.Experiment
	err = s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e models.Experiment
			if err := rows.Scan(&e.ID, &e.AgentID, &e.Title, &e.Description,
				&e.Author, &e.CreatedAt, &e.UpdatedAt); err != nil {
				return err
			}
			e.TenantUID = tenantUID
			experiments = append(experiments, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, "", fmt.Errorf("listing experiments: %w", err)
	}

	var next string
	if len(experiments) > limit {
		experiments = experiments[:limit]
		next = encodeCursor(experiments[limit-1].CreatedAt)
	}
	return experiments, next, nil
}

// DeleteExperiment soft-deletes an experiment.
func (s *Store) DeleteExperiment(ctx context.Context, tenantUID int64, id string) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE experiments SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("experiment", "experiment %q not found", id)
		}
		return nil
	})
}

// AddExperimentInputs attaches inputs and returns the ids that were newly
// inserted. Already-attached ids are silently ignored, which makes
// experiment composition idempotent.
func (s *Store) AddExperimentInputs(ctx context.Context, tenantUID int64, experimentID string, inputs []models.ExperimentInput) ([]string, error) {
	var inserted []string
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		for _, in := range inputs {
			tag, err := conn.Exec(ctx,
				`INSERT INTO experiment_inputs (experiment_id, input_id, alias)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (tenant_uid, experiment_id, input_id) DO NOTHING`,
				experimentID, in.InputID, in.Alias)
			if err != nil {
				return fmt.Errorf("attaching input %q: %w", in.InputID, err)
			}
			if tag.RowsAffected() == 1 {
				inserted = append(inserted, in.InputID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// AddExperimentVersions attaches versions, returning the newly inserted
// ids. Duplicates are silently ignored.
func (s *Store) AddExperimentVersions(ctx context.Context, tenantUID int64, experimentID string, versions []models.ExperimentVersion) ([]string, error) {
	var inserted []string
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		for _, v := range versions {
			tag, err := conn.Exec(ctx,
				`INSERT INTO experiment_versions (experiment_id, version_id, alias)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (tenant_uid, experiment_id, version_id) DO NOTHING`,
				experimentID, v.VersionID, v.Alias)
			if err != nil {
				return fmt.Errorf("attaching version %q: %w", v.VersionID, err)
			}
			if tag.RowsAffected() == 1 {
				inserted = append(inserted, v.VersionID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// AddExperimentCompletions reserves (input, version) cells with their
// completion ids, returning the ids newly reserved. A cell already holding
// a different completion is skipped like any other duplicate.
func (s *Store) AddExperimentCompletions(ctx context.Context, tenantUID int64, experimentID string, outputs []models.ExperimentOutput) ([]uuid.UUID, error) {
	var inserted []uuid.UUID
	err := s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		for _, o := range outputs {
			tag, err := conn.Exec(ctx,
				`INSERT INTO experiment_outputs (experiment_id, completion_id, input_id, version_id)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT DO NOTHING`,
				experimentID, o.CompletionID, o.InputID, o.VersionID)
			if err != nil {
				return fmt.Errorf("reserving completion %s: %w", o.CompletionID, err)
			}
			if tag.RowsAffected() == 1 {
				inserted = append(inserted, o.CompletionID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// StartExperimentCompletion marks a reserved completion in-flight.
// Reinvocation on the same completion raises duplicate_value.
func (s *Store) StartExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE experiment_outputs SET started_at = now()
			 WHERE experiment_id = $1 AND completion_id = $2 AND started_at IS NULL`,
			experimentID, completionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := conn.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM experiment_outputs
				 WHERE experiment_id = $1 AND completion_id = $2)`,
				experimentID, completionID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperr.NotFound("experiment_output", "completion %s is not registered in experiment %q", completionID, experimentID)
			}
			return apperr.Duplicate("completion %s already started", completionID)
		}
		return nil
	})
}

// CompleteExperimentCompletion records the terminal output timestamp. A
// second call on the same completion raises duplicate_value.
func (s *Store) CompleteExperimentCompletion(ctx context.Context, tenantUID int64, experimentID string, completionID uuid.UUID) error {
	return s.withTenant(ctx, tenantUID, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE experiment_outputs SET completed_at = now()
			 WHERE experiment_id = $1 AND completion_id = $2 AND completed_at IS NULL`,
			experimentID, completionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := conn.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM experiment_outputs
				 WHERE experiment_id = $1 AND completion_id = $2)`,
				experimentID, completionID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperr.NotFound("experiment_output", "completion %s is not registered in experiment %q", completionID, experimentID)
			}
			return apperr.Duplicate("completion %s already has an output", completionID)
		}
		return nil
	})
}
