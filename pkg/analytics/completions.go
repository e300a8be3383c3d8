package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// StoreCompletion persists the completion plus its content-addressed input
// and version. Rows key on content hashes (ReplacingMergeTree), so
// replaying the task after a retry is an upsert, not a duplicate.
func (s *Store) StoreCompletion(ctx context.Context, c *models.AgentCompletion) error {
	inputMessages, err := json.Marshal(c.Input.Messages)
	if err != nil {
		return fmt.Errorf("encoding input messages: %w", err)
	}
	inputVariables, err := json.Marshal(c.Input.Variables)
	if err != nil {
		return fmt.Errorf("encoding input variables: %w", err)
	}
	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("encoding rendered messages: %w", err)
	}
	version, err := json.Marshal(c.Version)
	if err != nil {
		return fmt.Errorf("encoding version: %w", err)
	}
	outputMessages, err := json.Marshal(c.Output.Messages)
	if err != nil {
		return fmt.Errorf("encoding output messages: %w", err)
	}
	var outputError []byte
	if c.Output.Error != nil {
		if outputError, err = json.Marshal(c.Output.Error); err != nil {
			return fmt.Errorf("encoding output error: %w", err)
		}
	}
	traces, err := json.Marshal(c.Traces)
	if err != nil {
		return fmt.Errorf("encoding traces: %w", err)
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	if err := s.conn.Exec(ctx, `
		INSERT INTO completions (
			tenant_uid, id, created_at, agent_id, version_id, input_id,
			input_preview, input_messages, input_variables, messages, version,
			output_messages, output_error, status, duration_seconds, cost_usd,
			traces, from_cache, source, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TenantUID, c.ID.String(), c.CreatedAt(), c.AgentID, c.VersionID, c.Input.ID,
		c.Input.Preview, string(inputMessages), string(inputVariables), string(messages), string(version),
		string(outputMessages), string(outputError), string(c.Status), c.DurationSeconds, c.CostUSD,
		string(traces), c.FromCache, string(c.Source), string(metadata)); err != nil {
		return fmt.Errorf("storing completion %s: %w", c.ID, err)
	}

	if c.Input.ID != "" {
		if err := s.conn.Exec(ctx, `
			INSERT INTO inputs (tenant_uid, id, agent_id, preview, messages, variables, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.TenantUID, c.Input.ID, c.AgentID, c.Input.Preview,
			string(inputMessages), string(inputVariables), c.CreatedAt()); err != nil {
			return fmt.Errorf("storing input %s: %w", c.Input.ID, err)
		}
	}
	if c.VersionID != "" {
		if err := s.conn.Exec(ctx, `
			INSERT INTO versions (tenant_uid, id, agent_id, model, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.TenantUID, c.VersionID, c.AgentID, c.Version.Model,
			string(version), c.CreatedAt()); err != nil {
			return fmt.Errorf("storing version %s: %w", c.VersionID, err)
		}
	}
	return nil
}

const completionColumns = `id, agent_id, version_id, input_id, input_preview,
	input_messages, input_variables, messages, version, output_messages,
	output_error, status, duration_seconds, cost_usd, traces, from_cache,
	source, metadata`

func scanCompletion(row driver.Row, tenantUID int64) (*models.AgentCompletion, error) {
	var c models.AgentCompletion
	var id string
	var inputMessages, inputVariables, messages, version string
	var outputMessages, outputError, traces, metadata string
	var status, source string

	err := row.Scan(&id, &c.AgentID, &c.VersionID, &c.Input.ID, &c.Input.Preview,
		&inputMessages, &inputVariables, &messages, &version, &outputMessages,
		&outputError, &status, &c.DurationSeconds, &c.CostUSD, &traces, &c.FromCache,
		&source, &metadata)
	if err != nil {
		return nil, err
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing completion id %q: %w", id, err)
	}
	c.TenantUID = tenantUID
	c.Status = models.CompletionStatus(status)
	c.Source = models.CompletionSource(source)

	for name, pair := range map[string]struct {
		raw  string
		into any
	}{
		"input messages":  {inputMessages, &c.Input.Messages},
		"input variables": {inputVariables, &c.Input.Variables},
		"messages":        {messages, &c.Messages},
		"version":         {version, &c.Version},
		"output messages": {outputMessages, &c.Output.Messages},
		"traces":          {traces, &c.Traces},
		"metadata":        {metadata, &c.Metadata},
	} {
		if pair.raw == "" || pair.raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(pair.raw), pair.into); err != nil {
			return nil, fmt.Errorf("decoding completion %s: %w", name, err)
		}
	}
	if outputError != "" && outputError != "null" {
		if err := json.Unmarshal([]byte(outputError), &c.Output.Error); err != nil {
			return nil, fmt.Errorf("decoding completion output error: %w", err)
		}
	}
	return &c, nil
}

// CompletionByID fetches one completion for the tenant.
func (s *Store) CompletionByID(ctx context.Context, tenantUID int64, id uuid.UUID) (*models.AgentCompletion, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+completionColumns+` FROM completions
		WHERE tenant_uid = ? AND id = ?
		ORDER BY created_at DESC LIMIT 1`,
		tenantUID, id.String())
	c, err := scanCompletion(row, tenantUID)
	if err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("completion", "completion %s not found", id)
		}
		return nil, err
	}
	return c, nil
}

// CachedCompletion returns the most recent successful completion for a
// (version, input) pair, or nil when none exists. Satisfies the runner's
// completion cache.
func (s *Store) CachedCompletion(ctx context.Context, tenantUID int64, versionID, inputID string) (*models.AgentCompletion, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+completionColumns+` FROM completions
		WHERE tenant_uid = ? AND version_id = ? AND input_id = ? AND status = 'success'
		ORDER BY created_at DESC LIMIT 1`,
		tenantUID, versionID, inputID)
	c, err := scanCompletion(row, tenantUID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
