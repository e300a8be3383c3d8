package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVariables(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.do(t, http.MethodPost, "/v1/utils/extract_variables", map[string]any{
		"messages": []map[string]any{
			{"role": "user", "content": "What is the weather in {{city}}?"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	schema, ok := body["schema"].(map[string]any)
	require.True(t, ok)
	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	city, ok := properties["city"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", city["type"])

	assert.Equal(t, 0.0, body["last_templated_index"])
}

func TestExtractVariables_LastTemplatedIndex(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.do(t, http.MethodPost, "/v1/utils/extract_variables", map[string]any{
		"messages": []map[string]any{
			{"role": "system", "content": "You help with {{topic}}."},
			{"role": "user", "content": "Summarize {{document}}"},
			{"role": "assistant", "content": "Sure."},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 1.0, body["last_templated_index"])
	schema := body["schema"].(map[string]any)
	properties := schema["properties"].(map[string]any)
	assert.Contains(t, properties, "topic")
	assert.Contains(t, properties, "document")
}

func TestExtractVariables_NoMessages(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/v1/utils/extract_variables", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
