package openaiwire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	a, err := New(provider.OpenAI, "test-key", WithBaseURL(server.URL))
	require.NoError(t, err)
	return a
}

func TestComplete(t *testing.T) {
	var captured chatRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4,
				"prompt_tokens_details": {"cached_tokens": 2},
				"completion_tokens_details": {"reasoning_tokens": 0}}
		}`))
	})

	temp := 0.2
	completion, err := a.Complete(context.Background(), provider.Request{
		Model:       "gpt-4.1-mini",
		Messages:    []models.Message{{Role: models.RoleUser, Content: "Hi"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-mini", captured.Model)
	assert.Equal(t, "Hello there", completion.Text())
	assert.Equal(t, provider.OpenAI, completion.Provider)
	assert.Equal(t, int64(12), completion.Usage.PromptTokens)
	assert.Equal(t, int64(2), completion.Usage.CachedPromptTokens)
	assert.Equal(t, int64(4), completion.Usage.CompletionTokens)
}

func TestComplete_ToolCalls(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}}]},
				"finish_reason": "tool_calls"}]
		}`))
	})

	completion, err := a.Complete(context.Background(), provider.Request{
		Model:    "gpt-4.1-mini",
		Messages: []models.Message{{Role: models.RoleUser, Content: "Weather?"}},
	})
	require.NoError(t, err)

	require.Len(t, completion.Messages, 1)
	require.Len(t, completion.Messages[0].ToolCalls, 1)
	call := completion.Messages[0].ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "get_weather", call.ToolName)
	assert.Equal(t, map[string]any{"city": "Paris"}, call.ToolInput)
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  apperr.Code
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, apperr.CodeProviderTransient, true},
		{"server error", http.StatusInternalServerError, apperr.CodeProviderTransient, true},
		{"bad request", http.StatusBadRequest, apperr.CodeProviderTerminal, false},
		{"unauthorized", http.StatusUnauthorized, apperr.CodeProviderTerminal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
			})
			_, err := a.Complete(context.Background(), provider.Request{
				Model:    "gpt-4.1-mini",
				Messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
			assert.Equal(t, tt.retryable, apperr.IsRetryable(err))
			if tt.wantCode == apperr.CodeProviderTerminal {
				assert.Equal(t, tt.status, apperr.StatusOf(err))
			}
		})
	}
}

func TestStream(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		require.NotNil(t, req.StreamOptions)
		assert.True(t, req.StreamOptions.IncludeUsage)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range []string{
			`data: {"choices": [{"delta": {"content": "Hel"}}]}`,
			`data: {"choices": [{"delta": {"content": "lo"}}]}`,
			`data: {"choices": [], "usage": {"prompt_tokens": 5, "completion_tokens": 2}}`,
			`data: [DONE]`,
		} {
			_, _ = w.Write([]byte(line + "\n\n"))
		}
	})

	stream, err := a.Stream(context.Background(), provider.Request{
		Model:    "gpt-4.1-mini",
		Messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	var chunks []provider.Chunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 3)
	assert.Equal(t, provider.DeltaChunk{Text: "Hel"}, chunks[0])
	assert.Equal(t, provider.DeltaChunk{Text: "lo"}, chunks[1])

	final, ok := chunks[2].(provider.FinalChunk)
	require.True(t, ok, "last chunk must be final")
	require.NoError(t, final.Err)
	assert.Equal(t, "Hello", final.Completion.Text())
	assert.Equal(t, int64(5), final.Completion.Usage.PromptTokens)
}

func TestStream_ToolCallAssembly(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		for _, line := range []string{
			`data: {"choices": [{"delta": {"tool_calls": [{"index": 0, "id": "call_9", "function": {"name": "lookup", "arguments": "{\"q\":"}}]}}]}`,
			`data: {"choices": [{"delta": {"tool_calls": [{"index": 0, "function": {"arguments": "\"go\"}"}}]}}]}`,
			`data: [DONE]`,
		} {
			_, _ = w.Write([]byte(line + "\n\n"))
		}
	})

	stream, err := a.Stream(context.Background(), provider.Request{
		Model:    "gpt-4.1-mini",
		Messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	var toolCalls []models.ToolCallRequest
	var final *provider.FinalChunk
	for chunk := range stream {
		switch c := chunk.(type) {
		case provider.ToolCallChunk:
			toolCalls = append(toolCalls, c.Call)
		case provider.FinalChunk:
			final = &c
		}
	}
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "call_9", toolCalls[0].ID)
	assert.Equal(t, "lookup", toolCalls[0].ToolName)
	assert.Equal(t, map[string]any{"q": "go"}, toolCalls[0].ToolInput)
	require.NotNil(t, final)
	require.NoError(t, final.Err)
	assert.Equal(t, toolCalls, final.Completion.Messages[0].ToolCalls)
}

func TestFireworksModelPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "accounts/fireworks/models/llama-4-maverick", req.Model)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer server.Close()

	a, err := New(provider.Fireworks, "fw-key", WithBaseURL(server.URL))
	require.NoError(t, err)
	_, err = a.Complete(context.Background(), provider.Request{
		Model:    "llama-4-maverick",
		Messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
}

func TestAzureRequiresBaseURL(t *testing.T) {
	_, err := New(provider.AzureOpenAI, "key")
	require.Error(t, err)
}
