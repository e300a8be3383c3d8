package provider

import (
	"context"

	"github.com/anotherai-dev/anotherai/pkg/models"
)

// Request is the provider-neutral inference request built by the runner
// after sanitizing and rendering. Adapters translate it to their wire
// format.
type Request struct {
	Model            string
	Messages         []models.Message
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	MaxOutputTokens  *int
	Tools            []models.Tool
	ToolChoice       any
	ResponseSchema   map[string]any
	ReasoningEffort  string
	ReasoningBudget  *int
}

// LLMCompletion is the uniform result of one provider call.
type LLMCompletion struct {
	Messages        []models.Message
	Usage           models.InferenceUsage
	Provider        Provider
	Model           string
	PreserveCredits bool
	IncursCost      bool
}

// Text returns the concatenated assistant text content.
func (c *LLMCompletion) Text() string {
	var out string
	for _, m := range c.Messages {
		out += m.Content
	}
	return out
}

// Chunk is one element of a provider stream. The concrete types below are
// the only implementations.
type Chunk interface {
	chunkType() string
}

// DeltaChunk carries a piece of assistant text.
type DeltaChunk struct {
	Text string
}

// ReasoningChunk carries a piece of model thinking output.
type ReasoningChunk struct {
	Text string
}

// ToolCallChunk carries one complete tool-call request.
type ToolCallChunk struct {
	Call models.ToolCallRequest
}

// FinalChunk terminates a stream. Exactly one is sent, last, carrying
// either the assembled completion or the failure.
type FinalChunk struct {
	Completion *LLMCompletion
	Err        error
}

func (DeltaChunk) chunkType() string     { return "delta" }
func (ReasoningChunk) chunkType() string { return "reasoning" }
func (ToolCallChunk) chunkType() string  { return "tool_call" }
func (FinalChunk) chunkType() string     { return "final" }

// Adapter is the per-provider backend contract. Adapters are stateless;
// credentials and endpoints are injected at construction.
type Adapter interface {
	// Complete issues a buffered request.
	Complete(ctx context.Context, req Request) (*LLMCompletion, error)
	// Stream issues a streaming request. The channel closes after a single
	// FinalChunk; cancelling ctx aborts the provider call.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
	// DefaultModel is used when a request pins the provider but no model.
	DefaultModel() string
	// RequiredEnv lists the environment variables the adapter needs.
	RequiredEnv() []string
}
