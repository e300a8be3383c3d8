// Package bedrock backs the amazon_bedrock provider with the AWS Bedrock
// Converse API.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

// RuntimeClient is the subset of the Bedrock runtime client the adapter
// uses, satisfied by *bedrockruntime.Client and by mocks in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// defaultResourceIDs maps catalog model ids onto Bedrock resource ids. The
// AWS_BEDROCK_RESOURCE_ID_MODEL_MAP environment variable overrides entries
// per deployment (inference profiles, provisioned throughput ARNs).
var defaultResourceIDs = map[string]string{
	"claude-sonnet-4":   "anthropic.claude-sonnet-4-20250514-v1:0",
	"claude-3-7-sonnet": "anthropic.claude-3-7-sonnet-20250219-v1:0",
	"claude-3-5-haiku":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"llama-3.3-70b":     "meta.llama3-3-70b-instruct-v1:0",
}

// Adapter implements provider.Adapter on top of Bedrock Converse.
type Adapter struct {
	runtime     RuntimeClient
	resourceIDs map[string]string
}

// New builds the adapter. resourceIDs entries override the built-in model
// to resource-id mapping.
func New(runtime RuntimeClient, resourceIDs map[string]string) *Adapter {
	merged := make(map[string]string, len(defaultResourceIDs)+len(resourceIDs))
	for k, v := range defaultResourceIDs {
		merged[k] = v
	}
	for k, v := range resourceIDs {
		merged[k] = v
	}
	return &Adapter{runtime: runtime, resourceIDs: merged}
}

func (a *Adapter) DefaultModel() string { return "claude-sonnet-4" }

func (a *Adapter) RequiredEnv() []string {
	return []string{"AWS_BEDROCK_API_KEY"}
}

func (a *Adapter) resourceID(model string) (string, error) {
	if id, ok := a.resourceIDs[model]; ok {
		return id, nil
	}
	return "", apperr.InvalidRunOptions("model %q has no bedrock resource id", model)
}

func (a *Adapter) Complete(ctx context.Context, req provider.Request) (*provider.LLMCompletion, error) {
	input, err := a.buildInput(req)
	if err != nil {
		return nil, err
	}
	output, err := a.runtime.Converse(ctx, input)
	if err != nil {
		return nil, classify(err)
	}
	return translateResponse(output, req.Model), nil
}

func (a *Adapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	input, err := a.buildInput(req)
	if err != nil {
		return nil, err
	}
	output, err := a.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		ToolConfig:      input.ToolConfig,
		InferenceConfig: input.InferenceConfig,
		AdditionalModelRequestFields: input.AdditionalModelRequestFields,
	})
	if err != nil {
		return nil, classify(err)
	}
	stream := output.GetStream()
	if stream == nil {
		return nil, apperr.ProviderTransient(nil, "bedrock: stream output missing event stream")
	}

	out := make(chan provider.Chunk)
	go consumeStream(stream, req.Model, out)
	return out, nil
}

func (a *Adapter) buildInput(req provider.Request) (*bedrockruntime.ConverseInput, error) {
	resourceID, err := a.resourceID(req.Model)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{ModelId: aws.String(resourceID)}
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			input.System = append(input.System, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		var blocks []brtypes.ContentBlock
		if m.Role == models.RoleTool {
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: m.Content},
					},
				},
			})
			input.Messages = append(input.Messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: blocks,
			})
			continue
		}
		if m.Content != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.ToolName),
					Input:     lazyDocument(tc.ToolInput),
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, brtypes.Message{Role: role, Content: blocks})
	}
	if len(input.Messages) == 0 {
		return nil, apperr.BadRequest("at least one user or assistant message is required")
	}

	var cfg brtypes.InferenceConfiguration
	if req.MaxOutputTokens != nil {
		cfg.MaxTokens = aws.Int32(int32(*req.MaxOutputTokens))
	}
	if req.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = aws.Float32(float32(*req.TopP))
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil || cfg.TopP != nil {
		input.InferenceConfig = &cfg
	}

	if len(req.Tools) > 0 {
		toolCfg := &brtypes.ToolConfiguration{}
		for _, t := range req.Tools {
			toolCfg.Tools = append(toolCfg.Tools, &brtypes.ToolMemberToolSpec{
				Value: brtypes.ToolSpecification{
					Name:        aws.String(t.Name),
					Description: aws.String(t.Description),
					InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: lazyDocument(t.InputSchema)},
				},
			})
		}
		input.ToolConfig = toolCfg
	}

	if req.ReasoningBudget != nil && *req.ReasoningBudget > 0 {
		fields := map[string]any{
			"thinking": map[string]any{
				"type":          "enabled",
				"budget_tokens": *req.ReasoningBudget,
			},
		}
		input.AdditionalModelRequestFields = document.NewLazyDocument(&fields)
	}
	return input, nil
}

func lazyDocument(v any) document.Interface {
	if v == nil {
		v = map[string]any{"type": "object"}
	}
	return document.NewLazyDocument(&v)
}

func translateResponse(output *bedrockruntime.ConverseOutput, model string) *provider.LLMCompletion {
	out := models.Message{Role: models.RoleAssistant}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				out.Content += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				out.ToolCalls = append(out.ToolCalls, translateToolUse(v.Value))
			}
		}
	}
	completion := &provider.LLMCompletion{
		Messages: []models.Message{out},
		Provider: provider.AmazonBedrock,
		Model:    model,
	}
	if u := output.Usage; u != nil {
		completion.Usage = models.InferenceUsage{
			PromptTokens:       int64(ptrValue(u.InputTokens)),
			CachedPromptTokens: int64(ptrValue(u.CacheReadInputTokens)),
			CompletionTokens:   int64(ptrValue(u.OutputTokens)),
		}
	}
	return completion
}

func translateToolUse(tu brtypes.ToolUseBlock) models.ToolCallRequest {
	var input map[string]any
	if tu.Input != nil {
		if data, err := tu.Input.MarshalSmithyDocument(); err == nil {
			_ = json.Unmarshal(data, &input)
		}
	}
	call := models.ToolCallRequest{ToolName: aws.ToString(tu.Name), ToolInput: input}
	if tu.ToolUseId != nil {
		call.ID = *tu.ToolUseId
	}
	if call.ID == "" {
		call.ID = call.ToolName + "_" + models.ContentHash(map[string]any{"input": input})
	}
	return call
}

func consumeStream(stream *bedrockruntime.ConverseStreamEventStream, model string, out chan<- provider.Chunk) {
	defer close(out)
	defer stream.Close()

	completion := &provider.LLMCompletion{Provider: provider.AmazonBedrock, Model: model}
	msg := models.Message{Role: models.RoleAssistant}

	type toolBuffer struct {
		id       string
		name     string
		partials string
	}
	toolBlocks := make(map[int32]*toolBuffer)

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if tu, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				toolBlocks[ptrValue(ev.Value.ContentBlockIndex)] = &toolBuffer{
					id:   aws.ToString(tu.Value.ToolUseId),
					name: aws.ToString(tu.Value.Name),
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				if delta.Value != "" {
					msg.Content += delta.Value
					out <- provider.DeltaChunk{Text: delta.Value}
				}
			case *brtypes.ContentBlockDeltaMemberReasoningContent:
				if text, ok := delta.Value.(*brtypes.ReasoningContentBlockDeltaMemberText); ok && text.Value != "" {
					out <- provider.ReasoningChunk{Text: text.Value}
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if tb := toolBlocks[ptrValue(ev.Value.ContentBlockIndex)]; tb != nil {
					tb.partials += aws.ToString(delta.Value.Input)
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			if tb := toolBlocks[ptrValue(ev.Value.ContentBlockIndex)]; tb != nil {
				delete(toolBlocks, ptrValue(ev.Value.ContentBlockIndex))
				var input map[string]any
				_ = json.Unmarshal([]byte(tb.partials), &input)
				call := models.ToolCallRequest{ID: tb.id, ToolName: tb.name, ToolInput: input}
				if call.ID == "" {
					call.ID = call.ToolName + "_" + models.ContentHash(map[string]any{"input": input})
				}
				msg.ToolCalls = append(msg.ToolCalls, call)
				out <- provider.ToolCallChunk{Call: call}
			}
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if u := ev.Value.Usage; u != nil {
				completion.Usage = models.InferenceUsage{
					PromptTokens:       int64(ptrValue(u.InputTokens)),
					CachedPromptTokens: int64(ptrValue(u.CacheReadInputTokens)),
					CompletionTokens:   int64(ptrValue(u.OutputTokens)),
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		out <- provider.FinalChunk{Err: classify(err)}
		return
	}
	completion.Messages = []models.Message{msg}
	out <- provider.FinalChunk{Completion: completion}
}

// classify maps AWS SDK failures onto the retryable/terminal split:
// throttling and 5xx are transient, validation and auth terminal.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException", "ModelNotReadyException":
			return apperr.ProviderTransient(err, "bedrock: %s", apiErr.ErrorMessage())
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == http.StatusTooManyRequests || status >= 500 {
			return apperr.ProviderTransient(err, "bedrock: request failed with status %d", status)
		}
		return apperr.ProviderTerminal(status, err, "bedrock: request rejected")
	}
	return apperr.ProviderTransient(err, "bedrock: request failed")
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}
