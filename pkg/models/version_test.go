package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestVersionID_Deterministic(t *testing.T) {
	v1 := Version{
		Model:           "gpt-4o-mini",
		Temperature:     floatPtr(0.7),
		MaxOutputTokens: intPtr(1024),
		Prompt: []Message{
			{Role: RoleSystem, Content: "You are a helpful assistant."},
		},
	}
	v2 := Version{
		Model:           "gpt-4o-mini",
		Temperature:     floatPtr(0.7),
		MaxOutputTokens: intPtr(1024),
		Prompt: []Message{
			{Role: RoleSystem, Content: "You are a helpful assistant."},
		},
	}

	require.Equal(t, v1.ID(), v2.ID())
	assert.Len(t, v1.ID(), 32, "version id must be a 32-hex content hash")
}

func TestVersionID_SensitiveToFields(t *testing.T) {
	base := Version{Model: "gpt-4o-mini"}

	tests := []struct {
		name   string
		mutate func(*Version)
	}{
		{"model", func(v *Version) { v.Model = "gpt-4o" }},
		{"temperature", func(v *Version) { v.Temperature = floatPtr(0.1) }},
		{"top_p", func(v *Version) { v.TopP = floatPtr(0.9) }},
		{"max_output_tokens", func(v *Version) { v.MaxOutputTokens = intPtr(16) }},
		{"tool", func(v *Version) { v.Tools = []Tool{{Name: "search"}} }},
		{"tool_choice", func(v *Version) { v.ToolChoice = "none" }},
		{"reasoning_effort", func(v *Version) { v.ReasoningEffort = "high" }},
		{"reasoning_budget", func(v *Version) { v.ReasoningBudget = intPtr(2048) }},
		{"response_schema", func(v *Version) {
			v.ResponseSchema = map[string]any{"type": "object"}
		}},
		{"prompt", func(v *Version) {
			v.Prompt = []Message{{Role: RoleSystem, Content: "x"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := base
			tt.mutate(&mutated)
			assert.NotEqual(t, base.ID(), mutated.ID())
		})
	}
}

// Property: two versions built from the same normalized fields always share
// an id, and the id does not depend on pointer identity of optional fields.
func TestVersionID_Property(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	genVersion := gopter.CombineGens(
		gen.OneConstOf("gpt-4o-mini", "gpt-4o", "claude-sonnet-4", "llama-3.3-70b"),
		gen.Float64Range(0, 2),
		gen.IntRange(1, 32768),
		gen.AlphaString(),
	).Map(func(vals []any) Version {
		return Version{
			Model:           vals[0].(string),
			Temperature:     floatPtr(vals[1].(float64)),
			MaxOutputTokens: intPtr(vals[2].(int)),
			Prompt:          []Message{{Role: RoleSystem, Content: vals[3].(string)}},
		}
	})

	properties.Property("identical fields yield identical ids", prop.ForAll(
		func(v Version) bool {
			clone := Version{
				Model:           v.Model,
				Temperature:     floatPtr(*v.Temperature),
				MaxOutputTokens: intPtr(*v.MaxOutputTokens),
				Prompt:          append([]Message(nil), v.Prompt...),
			}
			return v.ID() == clone.ID()
		},
		genVersion,
	))

	properties.TestingRun(t)
}

func TestAgentInput_ComputeID(t *testing.T) {
	in1 := AgentInput{
		Messages:  []Message{{Role: RoleUser, Content: "What is the capital of {{ country }}?"}},
		Variables: map[string]any{"country": "France"},
	}
	in2 := AgentInput{
		Messages:  []Message{{Role: RoleUser, Content: "What is the capital of {{ country }}?"}},
		Variables: map[string]any{"country": "France"},
	}
	require.Equal(t, in1.ComputeID(), in2.ComputeID())

	in3 := in1
	in3.Variables = map[string]any{"country": "Spain"}
	assert.NotEqual(t, in1.ComputeID(), in3.ComputeID())
}

func TestAgentInput_ComputePreview(t *testing.T) {
	in := AgentInput{Messages: []Message{
		{Role: RoleSystem, Content: "system prompt"},
		{Role: RoleUser, Content: "  Hello,\n  world!  "},
	}}
	assert.Equal(t, "Hello, world!", in.ComputePreview())
}
