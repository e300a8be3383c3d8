// Package openaiwire implements the chat-completions wire format shared by
// OpenAI, Groq, Fireworks, xAI, Mistral, and Azure OpenAI. One codec, with
// per-provider endpoints, headers, and model-name spellings.
package openaiwire

import (
	"encoding/json"

	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

type chatRequest struct {
	Model            string          `json:"model"`
	Messages         []chatMessage   `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	MaxTokens        *int            `json:"max_completion_tokens,omitempty"`
	Tools            []wireTool      `json:"tools,omitempty"`
	ToolChoice       any             `json:"tool_choice,omitempty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
	ReasoningEffort  string          `json:"reasoning_effort,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	StreamOptions    *streamOptions  `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role             string         `json:"role"`
			Content          string         `json:"content"`
			ReasoningContent string         `json:"reasoning_content"`
			ToolCalls        []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
	Error *wireError `json:"error"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string         `json:"content"`
			ReasoningContent string         `json:"reasoning_content"`
			ToolCalls        []wireToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
	Error *wireError `json:"error"`
}

type wireUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
		AudioTokens  int `json:"audio_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
		AudioTokens     int `json:"audio_tokens"`
	} `json:"completion_tokens_details"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// translateRequest maps the domain request onto the wire shape.
func translateRequest(req provider.Request, wireModel string, stream bool) chatRequest {
	out := chatRequest{
		Model:            wireModel,
		Messages:         translateMessages(req.Messages),
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		MaxTokens:        req.MaxOutputTokens,
		ToolChoice:       req.ToolChoice,
		ReasoningEffort:  req.ReasoningEffort,
		Stream:           stream,
	}
	if stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if req.ResponseSchema != nil {
		out.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaSpec{
				Name:   "response",
				Schema: req.ResponseSchema,
				Strict: true,
			},
		}
	}
	return out
}

func translateMessages(messages []models.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wm := chatMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		for _, c := range m.ToolCalls {
			args, _ := json.Marshal(c.ToolInput)
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   c.ID,
				Type: "function",
				Function: wireToolFunction{
					Name:      c.ToolName,
					Arguments: string(args),
				},
			})
		}
		if len(m.Files) == 0 {
			wm.Content = m.Content
			out = append(out, wm)
			continue
		}
		parts := []contentPart{}
		if m.Content != "" {
			parts = append(parts, contentPart{Type: "text", Text: m.Content})
		}
		for _, f := range m.Files {
			url := f.URL
			if url == "" && f.Data != "" {
				url = "data:" + f.ContentType + ";base64," + f.Data
			}
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURLPart{URL: url}})
		}
		wm.Content = parts
		out = append(out, wm)
	}
	return out
}

func translateUsage(u *wireUsage) models.InferenceUsage {
	if u == nil {
		return models.InferenceUsage{}
	}
	out := models.InferenceUsage{
		PromptTokens:     int64(u.PromptTokens),
		CompletionTokens: int64(u.CompletionTokens),
	}
	if u.PromptTokensDetails != nil {
		out.CachedPromptTokens = int64(u.PromptTokensDetails.CachedTokens)
		out.PromptAudioTokens = int64(u.PromptTokensDetails.AudioTokens)
	}
	if u.CompletionTokensDetails != nil {
		out.ReasoningTokens = int64(u.CompletionTokensDetails.ReasoningTokens)
		out.CompletionAudioTokens = int64(u.CompletionTokensDetails.AudioTokens)
	}
	return out
}

// parseToolCall decodes a fully assembled wire tool call, synthesizing an
// id from the tool name and input hash when the provider omitted one.
func parseToolCall(tc wireToolCall) models.ToolCallRequest {
	var input map[string]any
	if tc.Function.Arguments != "" {
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
	}
	call := models.ToolCallRequest{
		ID:        tc.ID,
		ToolName:  tc.Function.Name,
		ToolInput: input,
	}
	if call.ID == "" {
		call.ID = call.ToolName + "_" + models.ContentHash(map[string]any{"input": input})
	}
	return call
}
