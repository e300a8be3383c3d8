package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/anotherai")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/anotherai")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.EnvName)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, "8000", cfg.HTTP.Port)
	assert.Equal(t, "memory://", cfg.Broker.URL)
	assert.Equal(t, 8, cfg.Broker.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.ClickHouse.CacheLookupTimeout)
}

func TestFromEnv_MissingStores(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("CLICKHOUSE_DSN", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestFromEnv_InvalidBrokerScheme(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JOBS_BROKER_URL", "amqp://localhost")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBS_BROKER_URL")
}

func TestFromEnv_BedrockModelMap(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AWS_BEDROCK_RESOURCE_ID_MODEL_MAP", "claude-sonnet-4=arn:aws:bedrock:us-east-1::foo, llama-3.3-70b=arn:aws:bedrock:us-east-1::bar")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"claude-sonnet-4": "arn:aws:bedrock:us-east-1::foo",
		"llama-3.3-70b":   "arn:aws:bedrock:us-east-1::bar",
	}, cfg.Providers.AWSBedrockModelMap)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		lc := LogConfig{Level: tt.level}
		assert.Equal(t, tt.want, lc.SlogLevel().String(), "level %q", tt.level)
	}
}
