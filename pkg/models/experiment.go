package models

import (
	"time"

	"github.com/google/uuid"
)

// Experiment is a labeled N×M matrix of inputs × versions with associated
// outputs. Inputs and versions carry user-facing aliases distinct from
// their content-hashed identifiers.
type Experiment struct {
	ID          string    `json:"id"`
	TenantUID   int64     `json:"-"`
	AgentID     string    `json:"agent_id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Inputs   []ExperimentInput   `json:"inputs,omitempty"`
	Versions []ExperimentVersion `json:"versions,omitempty"`
	Outputs  []ExperimentOutput  `json:"outputs,omitempty"`
}

// ExperimentInput references a stored input by content hash with an
// optional stable alias.
type ExperimentInput struct {
	InputID string `json:"input_id"`
	Alias   string `json:"alias,omitempty"`
}

// ExperimentVersion references a stored version by content hash with an
// optional stable alias.
type ExperimentVersion struct {
	VersionID string `json:"version_id"`
	Alias     string `json:"alias,omitempty"`
}

// ExperimentOutput links one input × one version to one completion. An
// experiment may not contain two outputs for the same (input_id,
// version_id) pair.
type ExperimentOutput struct {
	InputID      string     `json:"input_id"`
	VersionID    string     `json:"version_id"`
	CompletionID uuid.UUID  `json:"completion_id"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// RunIDs returns the flat list of output completion ids.
func (e *Experiment) RunIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Outputs))
	for _, o := range e.Outputs {
		ids = append(ids, o.CompletionID)
	}
	return ids
}

// Deployment binds a stable alias (e.g. "production") to a specific
// version. The version pointer may be rotated; archival sets ArchivedAt
// and records are never hard-deleted.
type Deployment struct {
	ID         string         `json:"id"`
	TenantUID  int64          `json:"-"`
	AgentID    string         `json:"agent_id"`
	Version    Version        `json:"version"`
	VersionID  string         `json:"version_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedBy  string         `json:"created_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ArchivedAt *time.Time     `json:"archived_at,omitempty"`
}

// Archived reports whether the deployment has been archived.
func (d *Deployment) Archived() bool { return d.ArchivedAt != nil }
