package provider

import (
	"sort"

	"github.com/agext/levenshtein"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
)

// ReasoningBudget publishes a model's thinking-token window. Efforts maps
// the symbolic reasoning_effort values to concrete budgets; an effort
// missing from the map is unsupported for that model.
type ReasoningBudget struct {
	Min     int
	Max     int
	Efforts map[string]int
}

// Clamp resolves a user-supplied budget or effort against the window. A
// budget outside [Min, Max] is clamped; an unsupported effort is dropped.
func (b *ReasoningBudget) Clamp(budget *int, effort string) (*int, string) {
	if b == nil {
		return nil, ""
	}
	if budget != nil {
		v := *budget
		if v < b.Min {
			v = b.Min
		}
		if v > b.Max {
			v = b.Max
		}
		return &v, ""
	}
	if effort != "" {
		if _, ok := b.Efforts[effort]; ok {
			return nil, effort
		}
	}
	return nil, ""
}

// ModelInfo is one catalog entry. Prices are USD per million tokens.
type ModelInfo struct {
	ID              string
	DisplayName     string
	Providers       []Provider
	ContextWindow   int
	PromptPrice     float64
	CompletionPrice float64
	Reasoning       *ReasoningBudget
}

var catalog = map[string]ModelInfo{
	"gpt-4.1": {
		ID: "gpt-4.1", DisplayName: "GPT-4.1",
		Providers:     []Provider{OpenAI, AzureOpenAI},
		ContextWindow: 1_047_576, PromptPrice: 2.00, CompletionPrice: 8.00,
	},
	"gpt-4.1-mini": {
		ID: "gpt-4.1-mini", DisplayName: "GPT-4.1 mini",
		Providers:     []Provider{OpenAI, AzureOpenAI},
		ContextWindow: 1_047_576, PromptPrice: 0.40, CompletionPrice: 1.60,
	},
	"gpt-4o": {
		ID: "gpt-4o", DisplayName: "GPT-4o",
		Providers:     []Provider{OpenAI, AzureOpenAI},
		ContextWindow: 128_000, PromptPrice: 2.50, CompletionPrice: 10.00,
	},
	"gpt-4o-mini": {
		ID: "gpt-4o-mini", DisplayName: "GPT-4o mini",
		Providers:     []Provider{OpenAI, AzureOpenAI},
		ContextWindow: 128_000, PromptPrice: 0.15, CompletionPrice: 0.60,
	},
	"gpt-5": {
		ID: "gpt-5", DisplayName: "GPT-5",
		Providers:     []Provider{OpenAI, AzureOpenAI},
		ContextWindow: 400_000, PromptPrice: 1.25, CompletionPrice: 10.00,
		Reasoning: &ReasoningBudget{
			Min: 0, Max: 128_000,
			Efforts: map[string]int{"minimal": 0, "low": 2048, "medium": 8192, "high": 32_768},
		},
	},
	"gpt-5-mini": {
		ID: "gpt-5-mini", DisplayName: "GPT-5 mini",
		Providers:     []Provider{OpenAI, AzureOpenAI},
		ContextWindow: 400_000, PromptPrice: 0.25, CompletionPrice: 2.00,
		Reasoning: &ReasoningBudget{
			Min: 0, Max: 128_000,
			Efforts: map[string]int{"minimal": 0, "low": 2048, "medium": 8192, "high": 32_768},
		},
	},
	"claude-sonnet-4": {
		ID: "claude-sonnet-4", DisplayName: "Claude Sonnet 4",
		Providers:     []Provider{Anthropic, AmazonBedrock},
		ContextWindow: 200_000, PromptPrice: 3.00, CompletionPrice: 15.00,
		Reasoning: &ReasoningBudget{
			Min: 1024, Max: 64_000,
			Efforts: map[string]int{"low": 2048, "medium": 8192, "high": 32_768},
		},
	},
	"claude-3-7-sonnet": {
		ID: "claude-3-7-sonnet", DisplayName: "Claude 3.7 Sonnet",
		Providers:     []Provider{Anthropic, AmazonBedrock},
		ContextWindow: 200_000, PromptPrice: 3.00, CompletionPrice: 15.00,
		Reasoning: &ReasoningBudget{
			Min: 1024, Max: 64_000,
			Efforts: map[string]int{"low": 2048, "medium": 8192, "high": 32_768},
		},
	},
	"claude-3-5-haiku": {
		ID: "claude-3-5-haiku", DisplayName: "Claude 3.5 Haiku",
		Providers:     []Provider{Anthropic, AmazonBedrock},
		ContextWindow: 200_000, PromptPrice: 0.80, CompletionPrice: 4.00,
	},
	"llama-3.3-70b": {
		ID: "llama-3.3-70b", DisplayName: "Llama 3.3 70B",
		Providers:     []Provider{Groq, Fireworks, AmazonBedrock},
		ContextWindow: 128_000, PromptPrice: 0.59, CompletionPrice: 0.79,
	},
	"llama-4-maverick": {
		ID: "llama-4-maverick", DisplayName: "Llama 4 Maverick",
		Providers:     []Provider{Groq, Fireworks},
		ContextWindow: 1_000_000, PromptPrice: 0.20, CompletionPrice: 0.60,
	},
	"deepseek-r1": {
		ID: "deepseek-r1", DisplayName: "DeepSeek R1",
		Providers:     []Provider{Fireworks},
		ContextWindow: 160_000, PromptPrice: 3.00, CompletionPrice: 8.00,
		Reasoning: &ReasoningBudget{
			Min: 0, Max: 32_768,
			Efforts: map[string]int{"low": 2048, "medium": 8192, "high": 32_768},
		},
	},
	"qwen3-235b": {
		ID: "qwen3-235b", DisplayName: "Qwen3 235B",
		Providers:     []Provider{Fireworks},
		ContextWindow: 128_000, PromptPrice: 0.22, CompletionPrice: 0.88,
	},
	"gemini-2.5-flash": {
		ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash",
		Providers:     []Provider{GoogleGemini, Google},
		ContextWindow: 1_048_576, PromptPrice: 0.30, CompletionPrice: 2.50,
		Reasoning: &ReasoningBudget{
			Min: 0, Max: 24_576,
			Efforts: map[string]int{"low": 1024, "medium": 8192, "high": 24_576},
		},
	},
	"gemini-2.5-pro": {
		ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro",
		Providers:     []Provider{GoogleGemini, Google},
		ContextWindow: 1_048_576, PromptPrice: 1.25, CompletionPrice: 10.00,
		Reasoning: &ReasoningBudget{
			Min: 128, Max: 32_768,
			Efforts: map[string]int{"low": 1024, "medium": 8192, "high": 32_768},
		},
	},
	"grok-4": {
		ID: "grok-4", DisplayName: "Grok 4",
		Providers:     []Provider{XAI},
		ContextWindow: 256_000, PromptPrice: 3.00, CompletionPrice: 15.00,
	},
	"grok-3-mini": {
		ID: "grok-3-mini", DisplayName: "Grok 3 mini",
		Providers:     []Provider{XAI},
		ContextWindow: 131_072, PromptPrice: 0.30, CompletionPrice: 0.50,
		Reasoning: &ReasoningBudget{
			Min: 0, Max: 16_384,
			Efforts: map[string]int{"low": 1024, "high": 16_384},
		},
	},
	"mistral-large": {
		ID: "mistral-large", DisplayName: "Mistral Large",
		Providers:     []Provider{MistralAI},
		ContextWindow: 128_000, PromptPrice: 2.00, CompletionPrice: 6.00,
	},
	"mistral-small": {
		ID: "mistral-small", DisplayName: "Mistral Small",
		Providers:     []Provider{MistralAI},
		ContextWindow: 128_000, PromptPrice: 0.10, CompletionPrice: 0.30,
	},
}

// modelAliases maps common upstream spellings onto catalog ids.
var modelAliases = map[string]string{
	"gpt-4o-2024-08-06":          "gpt-4o",
	"gpt-4o-mini-2024-07-18":     "gpt-4o-mini",
	"claude-sonnet-4-20250514":   "claude-sonnet-4",
	"claude-3-7-sonnet-20250219": "claude-3-7-sonnet",
	"claude-3-5-haiku-20241022":  "claude-3-5-haiku",
	"llama-3.3-70b-versatile":    "llama-3.3-70b",
}

// Lookup resolves a model id or alias against the catalog.
func Lookup(model string) (ModelInfo, bool) {
	if canonical, ok := modelAliases[model]; ok {
		model = canonical
	}
	info, ok := catalog[model]
	return info, ok
}

// ResolveModel is the strict model mapping used while sanitizing run
// options. An unknown model fails with invalid_run_options, suggesting the
// nearest catalog id by edit distance.
func ResolveModel(model string) (ModelInfo, error) {
	if info, ok := Lookup(model); ok {
		return info, nil
	}
	if suggestion := suggestModel(model); suggestion != "" {
		return ModelInfo{}, apperr.InvalidRunOptions("unknown model %q, did you mean %q?", model, suggestion)
	}
	return ModelInfo{}, apperr.InvalidRunOptions("unknown model %q", model)
}

// suggestModel picks the closest catalog id within a similarity floor.
func suggestModel(model string) string {
	best, bestScore := "", 0.0
	for id := range catalog {
		score := levenshtein.Similarity(model, id, nil)
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	if bestScore < 0.5 {
		return ""
	}
	return best
}

// Models returns the catalog sorted by id, for the models listing endpoint.
func Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
