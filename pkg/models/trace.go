package models

// TraceKind discriminates the trace union.
type TraceKind string

// Trace kinds.
const (
	TraceKindLLM  TraceKind = "llm"
	TraceKindTool TraceKind = "tool"
)

// InferenceUsage reports detailed token accounting for one LLM call.
type InferenceUsage struct {
	PromptTokens          int64 `json:"prompt_token_count,omitempty"`
	PromptImages          int64 `json:"prompt_image_count,omitempty"`
	PromptAudioTokens     int64 `json:"prompt_audio_token_count,omitempty"`
	CachedPromptTokens    int64 `json:"prompt_cached_token_count,omitempty"`
	CompletionTokens      int64 `json:"completion_token_count,omitempty"`
	CompletionImages      int64 `json:"completion_image_count,omitempty"`
	CompletionAudioTokens int64 `json:"completion_audio_token_count,omitempty"`
	ReasoningTokens       int64 `json:"reasoning_token_count,omitempty"`
}

// Trace is one per-step cost/duration record inside a completion. Kind
// selects which fields are meaningful: llm traces carry model/provider/usage,
// tool traces carry the tool name and input preview.
type Trace struct {
	Kind            TraceKind       `json:"kind"`
	DurationSeconds float64         `json:"duration_seconds"`
	CostUSD         float64         `json:"cost_usd"`
	Model           string          `json:"model,omitempty"`
	Provider        string          `json:"provider,omitempty"`
	Usage           *InferenceUsage `json:"usage,omitempty"`
	ToolName        string          `json:"tool_name,omitempty"`
	ToolInput       map[string]any  `json:"tool_input,omitempty"`
}

// SumCost totals the cost across a trace list.
func SumCost(traces []Trace) float64 {
	var total float64
	for _, t := range traces {
		total += t.CostUSD
	}
	return total
}

// SumDuration totals the duration across a trace list.
func SumDuration(traces []Trace) float64 {
	var total float64
	for _, t := range traces {
		total += t.DurationSeconds
	}
	return total
}
