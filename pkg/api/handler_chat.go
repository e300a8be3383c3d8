package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/runner"
)

// ChatCompletionRequest is the OpenAI-compatible request body plus the
// gateway's extension fields. Unknown fields are ignored.
type ChatCompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []chatMessage   `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	MaxCompletionTok *int            `json:"max_completion_tokens,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	Tools            []chatTool      `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
	Stream           bool            `json:"stream,omitempty"`

	// Extension fields.
	Provider    string             `json:"provider,omitempty"`
	UseFallback string             `json:"use_fallback,omitempty"`
	UseCache    string             `json:"use_cache,omitempty"`
	AgentID     string             `json:"agent_id,omitempty"`
	Input       *chatInput         `json:"input,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

type chatMessage struct {
	Role       string                   `json:"role"`
	Content    string                   `json:"content"`
	ToolCallID string                   `json:"tool_call_id,omitempty"`
	ToolCalls  []models.ToolCallRequest `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type responseFormat struct {
	Type       string `json:"type"`
	JSONSchema *struct {
		Name   string         `json:"name,omitempty"`
		Schema map[string]any `json:"schema"`
	} `json:"json_schema,omitempty"`
}

type chatInput struct {
	Messages  []chatMessage  `json:"messages,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// chatCompletionsHandler handles POST /v1/chat/completions (and aliases),
// streaming over SSE when stream=true.
func (s *Server) chatCompletionsHandler(c *echo.Context) error {
	var req ChatCompletionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid request body: %v", err)
	}

	tenant := tenantFrom(c)
	run, err := s.runRequest(c, tenant, &req)
	if err != nil {
		return err
	}

	if req.Stream {
		return s.streamChatCompletion(c, run)
	}

	completion, err := s.runner.Run(c.Request().Context(), *run)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chatCompletionResponse(completion))
}

// runRequest maps the wire request onto the runner's domain request. A
// model of the form "anotherai/deployment/<id>" resolves through the
// deployment's pinned version.
func (s *Server) runRequest(c *echo.Context, tenant *models.Tenant, req *ChatCompletionRequest) (*runner.RunRequest, error) {
	if len(req.Messages) == 0 && req.Input == nil {
		return nil, apperr.BadRequest("messages are required")
	}

	version := models.Version{
		Model:            req.Model,
		Provider:         req.Provider,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	agentID := req.AgentID
	if strings.HasPrefix(req.Model, models.IDPrefix+"/"+string(models.KindDeployment)+"/") {
		deployment, err := s.deployments.Get(c.Request().Context(), tenant.UID, req.Model)
		if err != nil {
			return nil, err
		}
		version = deployment.Version
		if agentID == "" {
			agentID = deployment.AgentID
		}
	}
	if agentID == "" {
		agentID = "default"
	}

	version.MaxOutputTokens = req.MaxCompletionTok
	if version.MaxOutputTokens == nil {
		version.MaxOutputTokens = req.MaxTokens
	}
	for _, t := range req.Tools {
		if t.Type != "" && t.Type != "function" {
			return nil, apperr.InvalidRunOptions("unsupported tool type %q", t.Type)
		}
		version.Tools = append(version.Tools, models.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	if choice, err := parseToolChoice(req.ToolChoice); err != nil {
		return nil, err
	} else if choice != "" {
		version.ToolChoice = choice
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		if req.ResponseFormat.JSONSchema == nil || req.ResponseFormat.JSONSchema.Schema == nil {
			return nil, apperr.BadRequest("response_format json_schema requires a schema")
		}
		version.ResponseSchema = req.ResponseFormat.JSONSchema.Schema
	}

	var input models.AgentInput
	if req.Input != nil {
		// Templated mode: the request messages are the prompt template and
		// the input carries the variables (plus optional extra messages).
		version.Prompt = toModelMessages(req.Messages)
		input = models.AgentInput{
			Messages:  toModelMessages(req.Input.Messages),
			Variables: req.Input.Variables,
		}
	} else {
		input = models.AgentInput{Messages: toModelMessages(req.Messages)}
	}

	return &runner.RunRequest{
		TenantUID:   tenant.UID,
		AgentID:     agentID,
		Version:     version,
		Input:       input,
		UseCache:    req.UseCache,
		UseFallback: req.UseFallback,
		Source:      models.SourceAPI,
		Metadata:    req.Metadata,
	}, nil
}

func parseToolChoice(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Function.Name == "" {
		return "", apperr.BadRequest("invalid tool_choice")
	}
	return obj.Function.Name, nil
}

func toModelMessages(in []chatMessage) []models.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Message, len(in))
	for i, m := range in {
		out[i] = models.Message{
			Role:       models.Role(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCalls,
		}
	}
	return out
}

// chatCompletionResponse renders a finished completion in the OpenAI
// response shape, extended with cost and the display url.
func chatCompletionResponse(completion *models.AgentCompletion) map[string]any {
	message := map[string]any{"role": "assistant", "content": ""}
	if len(completion.Output.Messages) > 0 {
		out := completion.Output.Messages[0]
		message["content"] = out.Content
		if out.Reasoning != "" {
			message["reasoning_content"] = out.Reasoning
		}
		if len(out.ToolCalls) > 0 {
			message["tool_calls"] = openAIToolCalls(out.ToolCalls)
		}
	}

	finishReason := "stop"
	if completion.Status == models.CompletionFailure {
		finishReason = "error"
	}

	resp := map[string]any{
		"id":      completion.URL(),
		"object":  "chat.completion",
		"created": completion.CreatedAt().Unix(),
		"model":   completion.Version.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       message,
			"finish_reason": finishReason,
			"cost_usd":      completion.CostUSD,
		}},
		"cost_usd":         completion.CostUSD,
		"duration_seconds": completion.DurationSeconds,
		"url":              completion.URL(),
		"version_id":       completion.VersionID,
	}
	if usage := completionUsage(completion); usage != nil {
		resp["usage"] = usage
	}
	return resp
}

func completionUsage(completion *models.AgentCompletion) map[string]any {
	for _, t := range completion.Traces {
		if t.Kind == models.TraceKindLLM && t.Usage != nil {
			return map[string]any{
				"prompt_tokens":     t.Usage.PromptTokens,
				"completion_tokens": t.Usage.CompletionTokens,
				"total_tokens":      t.Usage.PromptTokens + t.Usage.CompletionTokens,
			}
		}
	}
	return nil
}

func openAIToolCalls(calls []models.ToolCallRequest) []map[string]any {
	out := make([]map[string]any, len(calls))
	for i, call := range calls {
		args, _ := json.Marshal(call.ToolInput)
		out[i] = map[string]any{
			"id":   call.ID,
			"type": "function",
			"function": map[string]any{
				"name":      call.ToolName,
				"arguments": string(args),
			},
		}
	}
	return out
}

// streamChatCompletion relays runner chunks as OpenAI-style SSE events,
// ending with a usage-bearing final chunk and the [DONE] sentinel.
func (s *Server) streamChatCompletion(c *echo.Context, run *runner.RunRequest) error {
	stream, err := s.runner.Stream(c.Request().Context(), *run)
	if err != nil {
		return err
	}

	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	for chunk := range stream {
		var event map[string]any
		switch {
		case chunk.Final:
			if chunk.Err != nil && chunk.Completion == nil {
				event = map[string]any{"error": map[string]any{
					"code":        string(apperr.CodeOf(chunk.Err)),
					"message":     chunk.Err.Error(),
					"status_code": apperr.StatusOf(chunk.Err),
				}}
			} else {
				event = streamFinalEvent(chunk.Completion)
			}
		case chunk.Delta != "", chunk.Reasoning != "", chunk.ToolCallRequest != nil:
			event = streamDeltaEvent(chunk)
		default:
			continue
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		_ = rc.Flush()
	}

	_, err = fmt.Fprint(w, "data: [DONE]\n\n")
	_ = rc.Flush()
	return err
}

func streamDeltaEvent(chunk runner.RunnerOutputChunk) map[string]any {
	delta := map[string]any{}
	if chunk.Delta != "" {
		delta["content"] = chunk.Delta
	}
	if chunk.Reasoning != "" {
		delta["reasoning_content"] = chunk.Reasoning
	}
	if chunk.ToolCallRequest != nil {
		delta["tool_calls"] = openAIToolCalls([]models.ToolCallRequest{*chunk.ToolCallRequest})
	}
	return map[string]any{
		"object":  "chat.completion.chunk",
		"choices": []map[string]any{{"index": 0, "delta": delta}},
	}
}

func streamFinalEvent(completion *models.AgentCompletion) map[string]any {
	finishReason := "stop"
	if completion.Status == models.CompletionFailure {
		finishReason = "error"
	}
	event := map[string]any{
		"id":      completion.URL(),
		"object":  "chat.completion.chunk",
		"created": completion.CreatedAt().Unix(),
		"model":   completion.Version.Model,
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{},
			"finish_reason": finishReason,
			"cost_usd":      completion.CostUSD,
		}},
		"cost_usd": completion.CostUSD,
		"url":      completion.URL(),
	}
	if usage := completionUsage(completion); usage != nil {
		event["usage"] = usage
	}
	return event
}
