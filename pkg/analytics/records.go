package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// VersionByID fetches a stored version by content hash.
func (s *Store) VersionByID(ctx context.Context, tenantUID int64, id string) (*models.Version, error) {
	var payload string
	err := s.conn.QueryRow(ctx, `
		SELECT payload FROM versions
		WHERE tenant_uid = ? AND id = ?
		ORDER BY created_at DESC LIMIT 1`,
		tenantUID, id).Scan(&payload)
	if err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("version", "version %s not found", id)
		}
		return nil, err
	}
	var v models.Version
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("decoding version %s: %w", id, err)
	}
	return &v, nil
}

// InputByID fetches a stored input by content hash.
func (s *Store) InputByID(ctx context.Context, tenantUID int64, id string) (*models.AgentInput, error) {
	var messages, variables, preview string
	err := s.conn.QueryRow(ctx, `
		SELECT messages, variables, preview FROM inputs
		WHERE tenant_uid = ? AND id = ?
		ORDER BY created_at DESC LIMIT 1`,
		tenantUID, id).Scan(&messages, &variables, &preview)
	if err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("input", "input %s not found", id)
		}
		return nil, err
	}

	in := models.AgentInput{ID: id, Preview: preview}
	if messages != "" && messages != "null" {
		if err := json.Unmarshal([]byte(messages), &in.Messages); err != nil {
			return nil, fmt.Errorf("decoding input %s messages: %w", id, err)
		}
	}
	if variables != "" && variables != "null" {
		if err := json.Unmarshal([]byte(variables), &in.Variables); err != nil {
			return nil, fmt.Errorf("decoding input %s variables: %w", id, err)
		}
	}
	return &in, nil
}
