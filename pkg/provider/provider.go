// Package provider defines the inference providers the gateway can route
// to, the model catalog, and the adapter contract each provider backend
// implements.
package provider

import (
	"github.com/anotherai-dev/anotherai/pkg/apperr"
)

// Provider identifies an inference backend.
type Provider string

const (
	Groq         Provider = "groq"
	Fireworks    Provider = "fireworks"
	Anthropic    Provider = "anthropic"
	AmazonBedrock Provider = "amazon_bedrock"
	AzureOpenAI  Provider = "azure_openai"
	OpenAI       Provider = "openai"
	Google       Provider = "google"
	MistralAI    Provider = "mistral_ai"
	GoogleGemini Provider = "google_gemini"
	XAI          Provider = "xai"
)

// fallbackPriority orders candidate providers for the attempt loop. Models
// list their supported providers; the intersection with this order yields
// the candidates.
var fallbackPriority = []Provider{
	Groq,
	Fireworks,
	Anthropic,
	AmazonBedrock,
	AzureOpenAI,
	OpenAI,
	Google,
	MistralAI,
	GoogleGemini,
	XAI,
}

// Parse validates a user-supplied provider name.
func Parse(s string) (Provider, error) {
	p := Provider(s)
	for _, known := range fallbackPriority {
		if p == known {
			return p, nil
		}
	}
	return "", apperr.InvalidRunOptions("unknown provider %q", s)
}

// Candidates returns the ordered provider list for a model. An explicit
// provider pins the list to that single element, provided the model
// supports it.
func Candidates(model string, explicit Provider) ([]Provider, error) {
	info, ok := Lookup(model)
	if !ok {
		return nil, apperr.InvalidRunOptions("unknown model %q", model)
	}
	supported := make(map[Provider]struct{}, len(info.Providers))
	for _, p := range info.Providers {
		supported[p] = struct{}{}
	}

	if explicit != "" {
		if _, ok := supported[explicit]; !ok {
			return nil, apperr.InvalidRunOptions("model %q is not available on provider %q", model, explicit)
		}
		return []Provider{explicit}, nil
	}

	var candidates []Provider
	for _, p := range fallbackPriority {
		if _, ok := supported[p]; ok {
			candidates = append(candidates, p)
		}
	}
	return candidates, nil
}
