package models

// Version is a content-addressed prompt+model configuration. Its identifier
// is derived solely from the normalized fields, so persisting the same
// logical configuration twice is idempotent by construction.
type Version struct {
	Model            string         `json:"model"`
	Provider         string         `json:"provider,omitempty"`
	Prompt           []Message      `json:"prompt,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	MaxOutputTokens  *int           `json:"max_output_tokens,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	Tools            []Tool         `json:"tools,omitempty"`
	ToolChoice       string         `json:"tool_choice,omitempty"`
	ResponseSchema   map[string]any `json:"response_format,omitempty"`
	ReasoningEffort  string         `json:"reasoning_effort,omitempty"`
	ReasoningBudget  *int           `json:"reasoning_budget,omitempty"`
}

// ID computes the 32-hex content hash of the version's normalized fields.
func (v Version) ID() string {
	return ContentHash(v.normalize())
}

// ExternalVersionID returns the prefixed boundary form of a version id.
func ExternalVersionID(id string) string { return ExternalID(KindVersion, id) }

func (v Version) normalize() map[string]any {
	out := map[string]any{"model": v.Model}
	if v.Provider != "" {
		out["provider"] = v.Provider
	}
	if len(v.Prompt) > 0 {
		prompt := make([]any, len(v.Prompt))
		for i, m := range v.Prompt {
			prompt[i] = m.normalize()
		}
		out["prompt"] = prompt
	}
	if v.Temperature != nil {
		out["temperature"] = *v.Temperature
	}
	if v.TopP != nil {
		out["top_p"] = *v.TopP
	}
	if v.MaxOutputTokens != nil {
		out["max_output_tokens"] = *v.MaxOutputTokens
	}
	if v.PresencePenalty != nil {
		out["presence_penalty"] = *v.PresencePenalty
	}
	if v.FrequencyPenalty != nil {
		out["frequency_penalty"] = *v.FrequencyPenalty
	}
	if len(v.Tools) > 0 {
		tools := make([]any, len(v.Tools))
		for i, t := range v.Tools {
			tools[i] = map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": anyMap(t.InputSchema),
			}
		}
		out["tools"] = tools
	}
	if v.ToolChoice != "" {
		out["tool_choice"] = v.ToolChoice
	}
	if len(v.ResponseSchema) > 0 {
		out["response_format"] = anyMap(v.ResponseSchema)
	}
	if v.ReasoningEffort != "" {
		out["reasoning_effort"] = v.ReasoningEffort
	}
	if v.ReasoningBudget != nil {
		out["reasoning_budget"] = *v.ReasoningBudget
	}
	return out
}
