package models

import (
	"time"

	"github.com/google/uuid"
)

// InputPreviewLen caps the human-readable preview stored with an input.
const InputPreviewLen = 255

// AgentInput is the content-addressed pair of template messages and
// variables submitted for a completion. The hash is computed over the
// template and variables, not the rendered product, so two runs with the
// same template+variables share an input id even when rendering changes.
type AgentInput struct {
	ID        string         `json:"id,omitempty"`
	Messages  []Message      `json:"messages,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Preview   string         `json:"preview,omitempty"`
}

// ComputeID derives and stores the input's 32-hex content hash.
func (in *AgentInput) ComputeID() string {
	norm := map[string]any{}
	if len(in.Messages) > 0 {
		msgs := make([]any, len(in.Messages))
		for i, m := range in.Messages {
			msgs[i] = m.normalize()
		}
		norm["messages"] = msgs
	}
	if len(in.Variables) > 0 {
		norm["variables"] = anyMap(in.Variables)
	}
	in.ID = ContentHash(norm)
	return in.ID
}

// ComputePreview derives and stores the human-readable preview from the
// last user message (or the first message when no user message exists).
func (in *AgentInput) ComputePreview() string {
	var src *Message
	for i := len(in.Messages) - 1; i >= 0; i-- {
		if in.Messages[i].Role == RoleUser {
			src = &in.Messages[i]
			break
		}
	}
	if src == nil && len(in.Messages) > 0 {
		src = &in.Messages[0]
	}
	if src != nil {
		in.Preview = src.Preview(InputPreviewLen)
	}
	return in.Preview
}

// AgentOutput is the terminal result of a completion: the assistant
// messages plus an optional error description.
type AgentOutput struct {
	Messages []Message    `json:"messages,omitempty"`
	Error    *OutputError `json:"error,omitempty"`
}

// OutputError describes a completion failure in the stored output.
type OutputError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// CompletionStatus is the terminal state of a completion.
type CompletionStatus string

// Completion statuses.
const (
	CompletionSuccess CompletionStatus = "success"
	CompletionFailure CompletionStatus = "failure"
)

// CompletionSource records which surface initiated the completion.
type CompletionSource string

// Completion sources.
const (
	SourceWeb CompletionSource = "web"
	SourceAPI CompletionSource = "api"
	SourceMCP CompletionSource = "mcp"
)

// AgentCompletion is one prompt→model→response execution record. It is
// immutable after write; created_at is derived from the UUIDv7 id.
type AgentCompletion struct {
	ID        uuid.UUID        `json:"id"`
	TenantUID int64            `json:"-"`
	AgentID   string           `json:"agent_id"`
	Input     AgentInput       `json:"input"`
	Output    AgentOutput      `json:"output"`
	// Messages holds the rendered messages actually sent to the provider.
	Messages        []Message        `json:"messages,omitempty"`
	Version         Version          `json:"version"`
	VersionID       string           `json:"version_id,omitempty"`
	Status          CompletionStatus `json:"status"`
	DurationSeconds float64          `json:"duration_seconds"`
	CostUSD         float64          `json:"cost_usd"`
	Traces          []Trace          `json:"traces,omitempty"`
	FromCache       bool             `json:"from_cache,omitempty"`
	Source          CompletionSource `json:"source"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// CreatedAt returns the millisecond timestamp embedded in the UUIDv7 id.
func (c *AgentCompletion) CreatedAt() time.Time {
	return CompletionCreatedAt(c.ID)
}

// URL returns the external display form of the completion identifier.
func (c *AgentCompletion) URL() string {
	return ExternalID(KindCompletion, c.ID.String())
}
