// Package gemini backs the google and google_gemini providers with the
// Generative Language generateContent API.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// wireModels maps catalog ids onto Gemini model identifiers. Catalog ids
// already match the upstream naming, the map exists for future divergence.
var wireModels = map[string]string{}

// Adapter implements provider.Adapter against the generateContent wire
// format. Both the google and google_gemini provider tags route here.
type Adapter struct {
	provider provider.Provider
	apiKey   string
	baseURL  string
	client   *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimSuffix(url, "/") }
}

// New builds the adapter for one of the two Google provider tags.
func New(p provider.Provider, apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		provider: p,
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) DefaultModel() string { return "gemini-2.5-flash" }

func (a *Adapter) RequiredEnv() []string { return []string{"GEMINI_API_KEY"} }

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	Tools             []wireTools      `json:"tools,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text         string        `json:"text,omitempty"`
	InlineData   *inlineData   `json:"inlineData,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
	FunctionResp *functionResp `json:"functionResponse,omitempty"`
	Thought      bool          `json:"thought,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type functionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireTools struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"topP,omitempty"`
	MaxOutputTokens  *int            `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any  `json:"responseSchema,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
	Error         *wireError     `json:"error"`
}

type usageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func translateRequest(req provider.Request) generateRequest {
	out := generateRequest{
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			if out.SystemInstruction == nil {
				out.SystemInstruction = &content{}
			}
			out.SystemInstruction.Parts = append(out.SystemInstruction.Parts, part{Text: m.Content})
		case models.RoleTool:
			var resp map[string]any
			if err := json.Unmarshal([]byte(m.Content), &resp); err != nil {
				resp = map[string]any{"output": m.Content}
			}
			out.Contents = append(out.Contents, content{
				Role:  "user",
				Parts: []part{{FunctionResp: &functionResp{Name: m.ToolCallID, Response: resp}}},
			})
		default:
			role := "user"
			if m.Role == models.RoleAssistant {
				role = "model"
			}
			c := content{Role: role}
			if m.Content != "" {
				c.Parts = append(c.Parts, part{Text: m.Content})
			}
			for _, f := range m.Files {
				if f.Data != "" {
					c.Parts = append(c.Parts, part{InlineData: &inlineData{MimeType: f.ContentType, Data: f.Data}})
				}
			}
			for _, tc := range m.ToolCalls {
				c.Parts = append(c.Parts, part{FunctionCall: &functionCall{Name: tc.ToolName, Args: tc.ToolInput}})
			}
			if len(c.Parts) > 0 {
				out.Contents = append(out.Contents, c)
			}
		}
	}
	for _, t := range req.Tools {
		if len(out.Tools) == 0 {
			out.Tools = []wireTools{{}}
		}
		out.Tools[0].FunctionDeclarations = append(out.Tools[0].FunctionDeclarations, functionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	if req.ResponseSchema != nil {
		out.GenerationConfig.ResponseMimeType = "application/json"
		out.GenerationConfig.ResponseSchema = req.ResponseSchema
	}
	if req.ReasoningBudget != nil {
		out.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: *req.ReasoningBudget}
	}
	return out
}

func (a *Adapter) url(model string, stream bool) string {
	if mapped, ok := wireModels[model]; ok {
		model = mapped
	}
	if stream {
		return a.baseURL + "/models/" + model + ":streamGenerateContent?alt=sse"
	}
	return a.baseURL + "/models/" + model + ":generateContent"
}

func (a *Adapter) Complete(ctx context.Context, req provider.Request) (*provider.LLMCompletion, error) {
	httpResp, err := a.do(ctx, a.url(req.Model, false), translateRequest(req))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return nil, apperr.ProviderTransient(err, "%s: reading response failed", a.provider)
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.ProviderTransient(err, "%s: unparsable response body", a.provider)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, a.classifyHTTP(httpResp.StatusCode, resp.Error)
	}
	if len(resp.Candidates) == 0 {
		return nil, apperr.ProviderTransient(nil, "%s: response has no candidates", a.provider)
	}

	completion := &provider.LLMCompletion{Provider: a.provider, Model: req.Model}
	msg := models.Message{Role: models.RoleAssistant}
	for _, p := range resp.Candidates[0].Content.Parts {
		appendPart(&msg, p, nil)
	}
	completion.Messages = []models.Message{msg}
	completion.Usage = translateUsage(resp.UsageMetadata)
	return completion, nil
}

func (a *Adapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	httpResp, err := a.do(ctx, a.url(req.Model, true), translateRequest(req))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		var resp generateResponse
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
	msg := models.Message{Role: models.RoleAssistant}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			out <- provider.FinalChunk{Err: apperr.ProviderTransient(err, "%s: unparsable stream chunk", a.provider)}
			return
		}
		if chunk.Error != nil {
			out <- provider.FinalChunk{Err: apperr.ProviderTransient(nil, "%s: %s", a.provider, chunk.Error.Message)}
			return
		}
		if chunk.UsageMetadata != nil {
			completion.Usage = translateUsage(chunk.UsageMetadata)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, p := range chunk.Candidates[0].Content.Parts {
			appendPart(&msg, p, out)
		}
	}
	if err := scanner.Err(); err != nil {
		out <- provider.FinalChunk{Err: apperr.ProviderTransient(err, "%s: stream read failed", a.provider)}
		return
	}
	completion.Messages = []models.Message{msg}
	out <- provider.FinalChunk{Completion: completion}
}

// appendPart folds one wire part into the assembled assistant message,
// emitting stream chunks when out is non-nil.
func appendPart(msg *models.Message, p part, out chan<- provider.Chunk) {
	switch {
	case p.Thought && p.Text != "":
		if out != nil {
			out <- provider.ReasoningChunk{Text: p.Text}
		}
	case p.Text != "":
		msg.Content += p.Text
		if out != nil {
			out <- provider.DeltaChunk{Text: p.Text}
		}
	case p.FunctionCall != nil:
		call := models.ToolCallRequest{
			ToolName:  p.FunctionCall.Name,
			ToolInput: p.FunctionCall.Args,
		}
		call.ID = call.ToolName + "_" + models.ContentHash(map[string]any{"input": call.ToolInput})
		msg.ToolCalls = append(msg.ToolCalls, call)
		if out != nil {
			out <- provider.ToolCallChunk{Call: call}
		}
	}
}

func translateUsage(u *usageMetadata) models.InferenceUsage {
	if u == nil {
		return models.InferenceUsage{}
	}
	return models.InferenceUsage{
		PromptTokens:       int64(u.PromptTokenCount),
		CachedPromptTokens: int64(u.CachedContentTokenCount),
		CompletionTokens:   int64(u.CandidatesTokenCount),
		ReasoningTokens:    int64(u.ThoughtsTokenCount),
	}
}

func (a *Adapter) do(ctx context.Context, url string, wireReq generateRequest) (*http.Response, error) {
	payload, err := json.Marshal(wireReq)
	if err != nil {
		return nil, apperr.Internal(err, "encoding provider request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Internal(err, "building provider request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.ProviderTransient(err, "%s: request failed", a.provider)
	}
	return resp, nil
}

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
