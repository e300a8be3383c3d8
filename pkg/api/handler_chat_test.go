package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

func chatContext(t *testing.T) *echo.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestRunRequest_RawMessages(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	run, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []chatMessage{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, f.tenant.UID, run.TenantUID)
	assert.Equal(t, "default", run.AgentID)
	assert.Equal(t, "gpt-4o", run.Version.Model)
	assert.Empty(t, run.Version.Prompt)
	require.Len(t, run.Input.Messages, 1)
	assert.Equal(t, "hello", run.Input.Messages[0].Content)
	assert.Equal(t, models.SourceAPI, run.Source)
}

func TestRunRequest_TemplatedMode(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	run, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{
		Model:    "gpt-4o",
		AgentID:  "weather",
		Messages: []chatMessage{{Role: "user", Content: "Weather in {{city}}?"}},
		Input:    &chatInput{Variables: map[string]any{"city": "Paris"}},
	})
	require.NoError(t, err)

	require.Len(t, run.Version.Prompt, 1, "request messages become the prompt template")
	assert.Equal(t, "Weather in {{city}}?", run.Version.Prompt[0].Content)
	assert.Empty(t, run.Input.Messages)
	assert.Equal(t, map[string]any{"city": "Paris"}, run.Input.Variables)
}

func TestRunRequest_MaxCompletionTokensWins(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	legacy, modern := 100, 200
	run, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{
		Model:            "gpt-4o",
		Messages:         []chatMessage{{Role: "user", Content: "hi"}},
		MaxTokens:        &legacy,
		MaxCompletionTok: &modern,
	})
	require.NoError(t, err)
	require.NotNil(t, run.Version.MaxOutputTokens)
	assert.Equal(t, 200, *run.Version.MaxOutputTokens)
}

func TestRunRequest_DeploymentModel(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	temp := 0.2
	_, err := f.server.deployments.Upsert(c.Request().Context(), f.tenant.UID, &models.Deployment{
		ID:      "prod",
		AgentID: "support",
		Version: models.Version{Model: "gpt-4o", Temperature: &temp},
	})
	require.NoError(t, err)

	run, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{
		Model:    "anotherai/deployment/prod",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "support", run.AgentID, "agent comes from the deployment")
	assert.Equal(t, "gpt-4o", run.Version.Model)
	require.NotNil(t, run.Version.Temperature)
	assert.Equal(t, 0.2, *run.Version.Temperature)
}

func TestRunRequest_UnknownDeployment(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	_, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{
		Model:    "anotherai/deployment/missing",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeObjectNotFound, apperr.CodeOf(err))
}

func TestRunRequest_RejectsUnknownToolType(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	tool := chatTool{Type: "retrieval"}
	_, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
		Tools:    []chatTool{tool},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidRunOptions, apperr.CodeOf(err))
}

func TestRunRequest_ResponseFormat(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	raw := `{"type":"json_schema","json_schema":{"name":"answer","schema":{"type":"object"}}}`
	var format responseFormat
	require.NoError(t, json.Unmarshal([]byte(raw), &format))

	run, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{
		Model:          "gpt-4o",
		Messages:       []chatMessage{{Role: "user", Content: "hi"}},
		ResponseFormat: &format,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object"}, run.Version.ResponseSchema)
}

func TestRunRequest_RequiresMessages(t *testing.T) {
	f := newAPIFixture(t)
	c := chatContext(t)

	_, err := f.server.runRequest(c, &f.tenant, &ChatCompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}

func TestParseToolChoice(t *testing.T) {
	choice, err := parseToolChoice(json.RawMessage(`"auto"`))
	require.NoError(t, err)
	assert.Equal(t, "auto", choice)

	choice, err = parseToolChoice(json.RawMessage(`{"type":"function","function":{"name":"get_weather"}}`))
	require.NoError(t, err)
	assert.Equal(t, "get_weather", choice)

	_, err = parseToolChoice(json.RawMessage(`42`))
	require.Error(t, err)

	choice, err = parseToolChoice(nil)
	require.NoError(t, err)
	assert.Empty(t, choice)
}

func TestChatCompletionResponse_Shape(t *testing.T) {
	completion := &models.AgentCompletion{
		ID:        models.NewCompletionID(),
		AgentID:   "support",
		Version:   models.Version{Model: "gpt-4o"},
		VersionID: "0123456789abcdef0123456789abcdef",
		Status:    models.CompletionSuccess,
		CostUSD:   0.012,
		Output: models.AgentOutput{
			Messages: []models.Message{{Role: models.RoleAssistant, Content: "hi there"}},
		},
		Traces: []models.Trace{{
			Kind:  models.TraceKindLLM,
			Usage: &models.InferenceUsage{PromptTokens: 10, CompletionTokens: 5},
		}},
	}

	resp := chatCompletionResponse(completion)
	assert.Equal(t, "chat.completion", resp["object"])
	assert.Equal(t, 0.012, resp["cost_usd"])

	choices := resp["choices"].([]map[string]any)
	require.Len(t, choices, 1)
	assert.Equal(t, "stop", choices[0]["finish_reason"])
	assert.Equal(t, 0.012, choices[0]["cost_usd"], "per-choice cost mirrors the completion cost")

	message := choices[0]["message"].(map[string]any)
	assert.Equal(t, "hi there", message["content"])

	usage := resp["usage"].(map[string]any)
	assert.Equal(t, int64(15), usage["total_tokens"])
}

func TestChatCompletionResponse_Failure(t *testing.T) {
	completion := &models.AgentCompletion{
		ID:      models.NewCompletionID(),
		Version: models.Version{Model: "gpt-4o"},
		Status:  models.CompletionFailure,
	}

	resp := chatCompletionResponse(completion)
	choices := resp["choices"].([]map[string]any)
	assert.Equal(t, "error", choices[0]["finish_reason"])
}
