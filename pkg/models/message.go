package models

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

// Chat message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single chat message. Content may be a template containing
// "{{ var }}" references that are expanded by the renderer before the
// provider call.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Reasoning carries thinking text separated from the answer, for
	// assistant messages produced by reasoning models.
	Reasoning  string            `json:"reasoning_content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	Files      []File            `json:"files,omitempty"`
}

// ToolCallRequest is a model-issued request to invoke a tool.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input_dict"`
}

// Tool describes a callable tool advertised to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// File is a user-supplied payload referenced by a message, either inline
// (data URL) or by remote URL. StorageURL is set once the content has been
// uploaded to the blob store.
type File struct {
	ContentType string `json:"content_type,omitempty"`
	Data        string `json:"data,omitempty"`
	URL         string `json:"url,omitempty"`
	StorageURL  string `json:"storage_url,omitempty"`
}

// normalize returns the canonical map form of a message used for content
// hashing. Empty fields are dropped so semantically identical messages hash
// identically regardless of how they were constructed.
func (m Message) normalize() map[string]any {
	out := map[string]any{"role": string(m.Role)}
	if m.Content != "" {
		out["content"] = m.Content
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]any, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = map[string]any{
				"id":              c.ID,
				"tool_name":       c.ToolName,
				"tool_input_dict": anyMap(c.ToolInput),
			}
		}
		out["tool_calls"] = calls
	}
	if len(m.Files) > 0 {
		files := make([]any, len(m.Files))
		for i, f := range m.Files {
			fm := map[string]any{}
			if f.Data != "" {
				fm["data"] = f.Data
			}
			if f.URL != "" {
				fm["url"] = f.URL
			}
			files[i] = fm
		}
		out["files"] = files
	}
	return out
}

// anyMap round-trips a typed map through JSON so nested values take their
// canonical any-typed form before hashing.
func anyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return in
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return in
	}
	return out
}

// Preview returns a human-readable truncation of the message content.
func (m Message) Preview(max int) string {
	s := strings.TrimSpace(m.Content)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
