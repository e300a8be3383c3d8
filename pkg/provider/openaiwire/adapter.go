package openaiwire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

// endpoint captures the per-provider differences over the shared codec.
type endpoint struct {
	baseURL      string
	defaultModel string
	requiredEnv  []string
	// modelPrefix is prepended to the catalog model id on the wire.
	modelPrefix string
	// authHeader builds the credential header set.
	authHeader func(apiKey string) map[string]string
}

func bearerAuth(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

var endpoints = map[provider.Provider]endpoint{
	provider.OpenAI: {
		baseURL:      "https://api.openai.com/v1",
		defaultModel: "gpt-4.1-mini",
		requiredEnv:  []string{"OPENAI_API_KEY"},
		authHeader:   bearerAuth,
	},
	provider.Groq: {
		baseURL:      "https://api.groq.com/openai/v1",
		defaultModel: "llama-3.3-70b",
		requiredEnv:  []string{"GROQ_API_KEY"},
		authHeader:   bearerAuth,
	},
	provider.Fireworks: {
		baseURL:      "https://api.fireworks.ai/inference/v1",
		defaultModel: "llama-4-maverick",
		requiredEnv:  []string{"FIREWORKS_API_KEY"},
		modelPrefix:  "accounts/fireworks/models/",
		authHeader:   bearerAuth,
	},
	provider.XAI: {
		baseURL:      "https://api.x.ai/v1",
		defaultModel: "grok-4",
		requiredEnv:  []string{"XAI_API_KEY"},
		authHeader:   bearerAuth,
	},
	provider.MistralAI: {
		baseURL:      "https://api.mistral.ai/v1",
		defaultModel: "mistral-small",
		requiredEnv:  []string{"MISTRAL_API_KEY"},
		authHeader:   bearerAuth,
	},
	provider.AzureOpenAI: {
		defaultModel: "gpt-4.1-mini",
		requiredEnv:  []string{"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_BASE_URL"},
		authHeader: func(apiKey string) map[string]string {
			return map[string]string{"api-key": apiKey}
		},
	},
}

// Adapter speaks the chat-completions wire format for one provider.
type Adapter struct {
	provider provider.Provider
	endpoint endpoint
	apiKey   string
	client   *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL overrides the provider endpoint (Azure resource url, tests).
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.endpoint.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// New builds an adapter for one of the chat-completions providers.
func New(p provider.Provider, apiKey string, opts ...Option) (*Adapter, error) {
	ep, ok := endpoints[p]
	if !ok {
		return nil, fmt.Errorf("provider %q does not speak the chat-completions wire format", p)
	}
	a := &Adapter{
		provider: p,
		endpoint: ep,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.endpoint.baseURL == "" {
		return nil, fmt.Errorf("provider %q requires a base url", p)
	}
	return a, nil
}

func (a *Adapter) DefaultModel() string { return a.endpoint.defaultModel }

func (a *Adapter) RequiredEnv() []string { return a.endpoint.requiredEnv }

func (a *Adapter) wireModel(model string) string {
	return a.endpoint.modelPrefix + model
}

// Complete issues a buffered chat completion.
func (a *Adapter) Complete(ctx context.Context, req provider.Request) (*provider.LLMCompletion, error) {
	body, status, err := a.post(ctx, translateRequest(req, a.wireModel(req.Model), false))
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.ProviderTransient(err, "%s: unparsable response body", a.provider)
	}
	if status != http.StatusOK {
		return nil, a.classifyHTTP(status, resp.Error)
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.ProviderTransient(nil, "%s: response has no choices", a.provider)
	}

	choice := resp.Choices[0]
	msg := models.Message{Role: models.RoleAssistant, Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, parseToolCall(tc))
	}
	return &provider.LLMCompletion{
		Messages: []models.Message{msg},
		Usage:    translateUsage(resp.Usage),
		Provider: a.provider,
		Model:    req.Model,
	}, nil
}

// Stream issues a streaming chat completion and feeds parsed chunks to the
// returned channel. The channel closes after a single FinalChunk.
func (a *Adapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	httpResp, err := a.do(ctx, translateRequest(req, a.wireModel(req.Model), true))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		var resp chatResponse
		_ = json.Unmarshal(body, &resp)
		return nil, a.classifyHTTP(httpResp.StatusCode, resp.Error)
	}

	out := make(chan provider.Chunk)
	go a.consumeStream(httpResp.Body, req.Model, out)
	return out, nil
}

func (a *Adapter) consumeStream(body io.ReadCloser, model string, out chan<- provider.Chunk) {
	defer close(out)
	defer body.Close()

	completion := &provider.LLMCompletion{Provider: a.provider, Model: model}
	var text strings.Builder
	// Tool-call fragments arrive keyed by index; arguments accumulate
	// across chunks until the stream ends.
	type partialCall struct {
		id   string
		name string
		args strings.Builder
	}
	partials := make(map[int]*partialCall)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			out <- provider.FinalChunk{Err: apperr.ProviderTransient(err, "%s: unparsable stream chunk", a.provider)}
			return
		}
		if chunk.Error != nil {
			out <- provider.FinalChunk{Err: apperr.ProviderTransient(nil, "%s: %s", a.provider, chunk.Error.Message)}
			return
		}
		if chunk.Usage != nil {
			completion.Usage = translateUsage(chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.ReasoningContent != "" {
			out <- provider.ReasoningChunk{Text: delta.ReasoningContent}
		}
		if delta.Content != "" {
			text.WriteString(delta.Content)
			out <- provider.DeltaChunk{Text: delta.Content}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			p := partials[idx]
			if p == nil {
				p = &partialCall{}
				partials[idx] = p
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args.WriteString(tc.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		out <- provider.FinalChunk{Err: apperr.ProviderTransient(err, "%s: stream read failed", a.provider)}
		return
	}

	msg := models.Message{Role: models.RoleAssistant, Content: text.String()}
	indexes := make([]int, 0, len(partials))
	for idx := range partials {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		p := partials[idx]
		call := parseToolCall(wireToolCall{
			ID:       p.id,
			Function: wireToolFunction{Name: p.name, Arguments: p.args.String()},
		})
		msg.ToolCalls = append(msg.ToolCalls, call)
		out <- provider.ToolCallChunk{Call: call}
	}
	completion.Messages = []models.Message{msg}
	out <- provider.FinalChunk{Completion: completion}
}

func (a *Adapter) post(ctx context.Context, wireReq chatRequest) ([]byte, int, error) {
	resp, err := a.do(ctx, wireReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, 0, apperr.ProviderTransient(err, "%s: reading response failed", a.provider)
	}
	return body, resp.StatusCode, nil
}

func (a *Adapter) do(ctx context.Context, wireReq chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(wireReq)
	if err != nil {
		return nil, apperr.Internal(err, "encoding provider request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Internal(err, "building provider request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.endpoint.authHeader(a.apiKey) {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.ProviderTransient(err, "%s: request failed", a.provider)
	}
	return resp, nil
}

// classifyHTTP maps a provider error status onto the retryable/terminal
// split: rate limits and 5xx are transient, everything else terminal with
// the status passed through.
func (a *Adapter) classifyHTTP(status int, werr *wireError) error {
	msg := "request rejected"
	if werr != nil && werr.Message != "" {
		msg = werr.Message
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return apperr.ProviderTransient(nil, "%s: %s (status %d)", a.provider, msg, status)
	}
	return apperr.ProviderTerminal(status, nil, "%s: %s", a.provider, msg)
}
