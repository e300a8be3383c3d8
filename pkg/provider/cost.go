package provider

import (
	"strings"

	"github.com/anotherai-dev/anotherai/pkg/models"
)

const tokensPerPriceUnit = 1_000_000

// cachedPromptDiscount prices cached prompt tokens at a fraction of the
// prompt rate.
const cachedPromptDiscount = 0.5

// CostUSD prices a completion's usage against the model catalog. Unknown
// models cost zero.
func CostUSD(model string, usage models.InferenceUsage) float64 {
	info, ok := Lookup(model)
	if !ok {
		return 0
	}
	freshPrompt := usage.PromptTokens - usage.CachedPromptTokens
	if freshPrompt < 0 {
		freshPrompt = 0
	}
	cost := float64(freshPrompt) * info.PromptPrice / tokensPerPriceUnit
	cost += float64(usage.CachedPromptTokens) * info.PromptPrice * cachedPromptDiscount / tokensPerPriceUnit
	cost += float64(usage.CompletionTokens+usage.ReasoningTokens) * info.CompletionPrice / tokensPerPriceUnit
	return cost
}

// ResolveIncursCost applies the billing rules to a finished completion: a
// request incurs cost unless flagged non-billable or it produced an empty
// response with zero completion tokens; a generated image always bills.
func ResolveIncursCost(c *LLMCompletion, nonBillable bool) bool {
	if c.Usage.CompletionImages > 0 {
		return true
	}
	if nonBillable {
		return false
	}
	if c.Usage.CompletionTokens == 0 && emptyOutput(c.Messages) {
		return false
	}
	return true
}

func emptyOutput(messages []models.Message) bool {
	for _, m := range messages {
		if strings.TrimSpace(m.Content) != "" || len(m.ToolCalls) > 0 {
			return false
		}
	}
	return true
}
