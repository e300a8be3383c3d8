// Package anthropic backs the anthropic provider with the Claude Messages
// API via the official SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

const defaultMaxTokens = 8192

// wireModels maps catalog ids onto dated Anthropic model identifiers.
var wireModels = map[string]string{
	"claude-sonnet-4":   "claude-sonnet-4-20250514",
	"claude-3-7-sonnet": "claude-3-7-sonnet-20250219",
	"claude-3-5-haiku":  "claude-3-5-haiku-20241022",
}

// MessagesClient is the SDK surface the adapter uses, satisfied by
// *sdk.MessageService and by mocks in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Adapter implements provider.Adapter for Anthropic.
type Adapter struct {
	msg MessagesClient
}

// New builds the adapter from an API key.
func New(apiKey string) *Adapter {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Adapter{msg: &client.Messages}
}

// NewWithClient injects a Messages client, used by tests.
func NewWithClient(msg MessagesClient) *Adapter {
	return &Adapter{msg: msg}
}

func (a *Adapter) DefaultModel() string { return "claude-sonnet-4" }

func (a *Adapter) RequiredEnv() []string { return []string{"ANTHROPIC_API_KEY"} }

func (a *Adapter) Complete(ctx context.Context, req provider.Request) (*provider.LLMCompletion, error) {
	params, err := translateRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := a.msg.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	return translateResponse(msg, req.Model), nil
}

func (a *Adapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	params, err := translateRequest(req)
	if err != nil {
		return nil, err
	}
	stream := a.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}

	out := make(chan provider.Chunk)
	go consumeStream(stream, req.Model, out)
	return out, nil
}

func translateRequest(req provider.Request) (sdk.MessageNewParams, error) {
	maxTokens := defaultMaxTokens
	if req.MaxOutputTokens != nil {
		maxTokens = *req.MaxOutputTokens
	}

	wireModel := req.Model
	if mapped, ok := wireModels[req.Model]; ok {
		wireModel = mapped
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(wireModel),
		MaxTokens: int64(maxTokens),
	}

	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
			continue
		}
		var blocks []sdk.ContentBlockParamUnion
		if m.Role == models.RoleTool {
			blocks = append(blocks, sdk.NewToolResultBlock(m.ToolCallID, m.Content, false))
			params.Messages = append(params.Messages, sdk.NewUserMessage(blocks...))
			continue
		}
		if m.Content != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		}
		for _, f := range m.Files {
			if f.URL != "" {
				blocks = append(blocks, sdk.NewImageBlock(sdk.URLImageSourceParam{URL: f.URL}))
			} else if f.Data != "" {
				blocks = append(blocks, sdk.NewImageBlockBase64(f.ContentType, f.Data))
			}
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.ToolInput, tc.ToolName))
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == models.RoleAssistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(blocks...))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(blocks...))
		}
	}
	if len(params.Messages) == 0 {
		return sdk.MessageNewParams{}, apperr.BadRequest("at least one user or assistant message is required")
	}

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(*req.TopP)
	}
	for _, t := range req.Tools {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: t.InputSchema}, t.Name)
		if u.OfTool != nil && t.Description != "" {
			u.OfTool.Description = sdk.String(t.Description)
		}
		params.Tools = append(params.Tools, u)
	}
	if tc := translateToolChoice(req.ToolChoice); tc != nil {
		params.ToolChoice = *tc
	}
	if req.ReasoningBudget != nil && *req.ReasoningBudget > 0 {
		budget := int64(*req.ReasoningBudget)
		if budget >= params.MaxTokens {
			params.MaxTokens = budget + 1024
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

func translateToolChoice(choice any) *sdk.ToolChoiceUnionParam {
	switch v := choice.(type) {
	case string:
		switch v {
		case "none":
			none := sdk.NewToolChoiceNoneParam()
			return &sdk.ToolChoiceUnionParam{OfNone: &none}
		case "required":
			return &sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
		}
	case map[string]any:
		if fn, ok := v["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok && name != "" {
				tc := sdk.ToolChoiceParamOfTool(name)
				return &tc
			}
		}
	}
	return nil
}

func translateResponse(msg *sdk.Message, model string) *provider.LLMCompletion {
	out := models.Message{Role: models.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			var input map[string]any
			_ = json.Unmarshal(block.Input, &input)
			out.ToolCalls = append(out.ToolCalls, models.ToolCallRequest{
				ID:        block.ID,
				ToolName:  block.Name,
				ToolInput: input,
			})
		}
	}
	return &provider.LLMCompletion{
		Messages: []models.Message{out},
		Usage:    translateUsage(msg.Usage),
		Provider: provider.Anthropic,
		Model:    model,
	}
}

func translateUsage(u sdk.Usage) models.InferenceUsage {
	return models.InferenceUsage{
		PromptTokens:       u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens,
		CachedPromptTokens: u.CacheReadInputTokens,
		CompletionTokens:   u.OutputTokens,
	}
}

// consumeStream translates the SDK event union into chunks. Tool-call JSON
// accumulates per content-block index until the block stops.
func consumeStream(stream *ssestream.Stream[sdk.MessageStreamEventUnion], model string, out chan<- provider.Chunk) {
	defer close(out)
	defer stream.Close()

	completion := &provider.LLMCompletion{Provider: provider.Anthropic, Model: model}
	msg := models.Message{Role: models.RoleAssistant}

	type toolBuffer struct {
		id       string
		name     string
		partials string
	}
	toolBlocks := make(map[int]*toolBuffer)

	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case sdk.MessageStartEvent:
			completion.Usage = translateUsage(ev.Message.Usage)
		case sdk.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				toolBlocks[int(ev.Index)] = &toolBuffer{id: tu.ID, name: tu.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" {
					msg.Content += delta.Text
					out <- provider.DeltaChunk{Text: delta.Text}
				}
			case sdk.ThinkingDelta:
				if delta.Thinking != "" {
					out <- provider.ReasoningChunk{Text: delta.Thinking}
				}
			case sdk.InputJSONDelta:
				if tb := toolBlocks[int(ev.Index)]; tb != nil {
					tb.partials += delta.PartialJSON
				}
			}
		case sdk.ContentBlockStopEvent:
			if tb := toolBlocks[int(ev.Index)]; tb != nil {
				delete(toolBlocks, int(ev.Index))
				var input map[string]any
				_ = json.Unmarshal([]byte(tb.partials), &input)
				call := models.ToolCallRequest{ID: tb.id, ToolName: tb.name, ToolInput: input}
				if call.ID == "" {
					call.ID = call.ToolName + "_" + models.ContentHash(map[string]any{"input": input})
				}
				msg.ToolCalls = append(msg.ToolCalls, call)
				out <- provider.ToolCallChunk{Call: call}
			}
		case sdk.MessageDeltaEvent:
			completion.Usage.CompletionTokens = ev.Usage.OutputTokens
		case sdk.MessageStopEvent:
		}
	}
	if err := stream.Err(); err != nil {
		out <- provider.FinalChunk{Err: classify(err)}
		return
	}
	completion.Messages = []models.Message{msg}
	out <- provider.FinalChunk{Completion: completion}
}

// classify maps SDK failures onto the retryable/terminal split.
func classify(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500 {
			return apperr.ProviderTransient(err, "anthropic: request failed with status %d", apierr.StatusCode)
		}
		return apperr.ProviderTerminal(apierr.StatusCode, err, "anthropic: request rejected")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.ProviderTransient(err, "anthropic: request failed")
}
