// Package factory constructs and caches provider adapters from the
// process configuration.
package factory

import (
	"context"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/config"
	"github.com/anotherai-dev/anotherai/pkg/provider"
	"github.com/anotherai-dev/anotherai/pkg/provider/anthropic"
	"github.com/anotherai-dev/anotherai/pkg/provider/bedrock"
	"github.com/anotherai-dev/anotherai/pkg/provider/gemini"
	"github.com/anotherai-dev/anotherai/pkg/provider/openaiwire"
)

// Factory hands out one adapter per provider, built lazily on first use.
type Factory struct {
	cfg config.ProviderConfig

	mu       sync.Mutex
	adapters map[provider.Provider]provider.Adapter
}

// New builds a factory over the provider credentials.
func New(cfg config.ProviderConfig) *Factory {
	return &Factory{
		cfg:      cfg,
		adapters: make(map[provider.Provider]provider.Adapter),
	}
}

// Configured reports whether the provider's credentials are present, used
// to filter fallback candidates before attempting a call.
func (f *Factory) Configured(p provider.Provider) bool {
	switch p {
	case provider.OpenAI:
		return f.cfg.OpenAIAPIKey != ""
	case provider.Groq:
		return f.cfg.GroqAPIKey != ""
	case provider.Fireworks:
		return f.cfg.FireworksAPIKey != ""
	case provider.XAI:
		return f.cfg.XAIAPIKey != ""
	case provider.MistralAI:
		return f.cfg.MistralAPIKey != ""
	case provider.Google, provider.GoogleGemini:
		return f.cfg.GeminiAPIKey != ""
	case provider.Anthropic:
		return f.cfg.AnthropicAPIKey != ""
	case provider.AzureOpenAI:
		return f.cfg.AzureOpenAIAPIKey != "" && f.cfg.AzureOpenAIBaseURL != ""
	case provider.AmazonBedrock:
		return f.cfg.AWSBedrockAPIKey != ""
	}
	return false
}

// Get returns the adapter for a provider, constructing it on first call.
func (f *Factory) Get(ctx context.Context, p provider.Provider) (provider.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if adapter, ok := f.adapters[p]; ok {
		return adapter, nil
	}
	adapter, err := f.build(ctx, p)
	if err != nil {
		return nil, err
	}
	f.adapters[p] = adapter
	return adapter, nil
}

// Override replaces the adapter for a provider, used by tests.
func (f *Factory) Override(p provider.Provider, adapter provider.Adapter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters[p] = adapter
}

func (f *Factory) build(ctx context.Context, p provider.Provider) (provider.Adapter, error) {
	if !f.Configured(p) {
		return nil, apperr.InvalidRunOptions("provider %q is not configured", p)
	}
	switch p {
	case provider.OpenAI:
		return openaiwire.New(p, f.cfg.OpenAIAPIKey)
	case provider.Groq:
		return openaiwire.New(p, f.cfg.GroqAPIKey)
	case provider.Fireworks:
		return openaiwire.New(p, f.cfg.FireworksAPIKey)
	case provider.XAI:
		return openaiwire.New(p, f.cfg.XAIAPIKey)
	case provider.MistralAI:
		return openaiwire.New(p, f.cfg.MistralAPIKey)
	case provider.AzureOpenAI:
		return openaiwire.New(p, f.cfg.AzureOpenAIAPIKey, openaiwire.WithBaseURL(f.cfg.AzureOpenAIBaseURL))
	case provider.Anthropic:
		return anthropic.New(f.cfg.AnthropicAPIKey), nil
	case provider.Google, provider.GoogleGemini:
		return gemini.New(p, f.cfg.GeminiAPIKey), nil
	case provider.AmazonBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, apperr.Internal(err, "loading aws configuration")
		}
		return bedrock.New(bedrockruntime.NewFromConfig(awsCfg), f.cfg.AWSBedrockModelMap), nil
	}
	return nil, apperr.InvalidRunOptions("unknown provider %q", p)
}
