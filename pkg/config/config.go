// Package config loads gateway configuration from the environment. Main
// loads a .env file first (godotenv), then calls FromEnv; nothing in this
// package reads files or has import-time side effects.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the umbrella configuration object returned by FromEnv and used
// throughout the application.
type Config struct {
	EnvName string

	HTTP       HTTPConfig
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Blob       BlobConfig
	Broker     BrokerConfig
	Auth       AuthConfig
	Providers  ProviderConfig
	Telemetry  TelemetryConfig
	Log        LogConfig
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// PostgresConfig configures the relational store.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// ClickHouseConfig configures the analytical store.
type ClickHouseConfig struct {
	DSN          string
	PasswordSalt string
	// CacheLookupTimeout bounds completion-cache reads on the request path.
	CacheLookupTimeout time.Duration
}

// BlobConfig configures the content-addressed file store.
type BlobConfig struct {
	DSN           string
	ContainerName string
}

// BrokerConfig configures the background task broker.
// URL schemes: "memory://" (in-process) or "redis://host:port/db".
type BrokerConfig struct {
	URL         string
	Concurrency int
	TaskTimeout time.Duration
}

// AuthConfig configures token verification and OAuth discovery.
type AuthConfig struct {
	JWKSURL string
	JWK     string
	// AuthorizationServerURL is the upstream the OAuth discovery endpoints
	// redirect to; empty disables the redirect.
	AuthorizationServerURL string
}

// ProviderConfig carries per-provider credentials and endpoints.
type ProviderConfig struct {
	OpenAIAPIKey       string
	GroqAPIKey         string
	FireworksAPIKey    string
	XAIAPIKey          string
	MistralAPIKey      string
	GeminiAPIKey       string
	AnthropicAPIKey    string
	AzureOpenAIAPIKey  string
	AzureOpenAIBaseURL string
	AWSBedrockAPIKey   string
	// AWSBedrockModelMap maps model ids to Bedrock resource ids, encoded as
	// "model=resource,model=resource".
	AWSBedrockModelMap map[string]string
}

// TelemetryConfig configures error capture and billing hooks.
type TelemetryConfig struct {
	SentryDSN     string
	StripeAPIKey  string
	PosthogAPIKey string
	PosthogHost   string
}

// LogConfig configures slog.
type LogConfig struct {
	Level string
	JSON  bool
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		EnvName: getEnv("ENV_NAME", "local"),
		HTTP: HTTPConfig{
			Port:            getEnv("HTTP_PORT", "8000"),
			ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			MaxConns:        int32(getInt("POSTGRES_MAX_CONNS", 20)),
			ConnMaxLifetime: getDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		ClickHouse: ClickHouseConfig{
			DSN:                os.Getenv("CLICKHOUSE_DSN"),
			PasswordSalt:       os.Getenv("CLICKHOUSE_PASSWORD_SALT"),
			CacheLookupTimeout: getDuration("CACHE_LOOKUP_TIMEOUT", 2*time.Second),
		},
		Blob: BlobConfig{
			DSN:           os.Getenv("FILE_STORAGE_DSN"),
			ContainerName: getEnv("FILE_STORAGE_CONTAINER_NAME", "anotherai"),
		},
		Broker: BrokerConfig{
			URL:         getEnv("JOBS_BROKER_URL", "memory://"),
			Concurrency: getInt("JOBS_CONCURRENCY", 8),
			TaskTimeout: getDuration("JOBS_TASK_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWKSURL:                os.Getenv("JWKS_URL"),
			JWK:                    os.Getenv("JWK"),
			AuthorizationServerURL: os.Getenv("AUTHORIZATION_SERVER_URL"),
		},
		Providers: ProviderConfig{
			OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
			GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
			FireworksAPIKey:    os.Getenv("FIREWORKS_API_KEY"),
			XAIAPIKey:          os.Getenv("XAI_API_KEY"),
			MistralAPIKey:      os.Getenv("MISTRAL_API_KEY"),
			GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
			AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			AzureOpenAIAPIKey:  os.Getenv("AZURE_OPENAI_API_KEY"),
			AzureOpenAIBaseURL: os.Getenv("AZURE_OPENAI_BASE_URL"),
			AWSBedrockAPIKey:   os.Getenv("AWS_BEDROCK_API_KEY"),
			AWSBedrockModelMap: parsePairs(os.Getenv("AWS_BEDROCK_RESOURCE_ID_MODEL_MAP")),
		},
		Telemetry: TelemetryConfig{
			SentryDSN:     os.Getenv("SENTRY_DSN"),
			StripeAPIKey:  os.Getenv("STRIPE_API_KEY"),
			PosthogAPIKey: os.Getenv("POSTHOG_API_KEY"),
			PosthogHost:   os.Getenv("POSTHOG_HOST"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getBool("JSON_LOGS", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.ClickHouse.DSN == "" {
		return fmt.Errorf("CLICKHOUSE_DSN is required")
	}
	switch {
	case strings.HasPrefix(c.Broker.URL, "memory://"),
		strings.HasPrefix(c.Broker.URL, "redis://"),
		strings.HasPrefix(c.Broker.URL, "rediss://"):
	default:
		return fmt.Errorf("JOBS_BROKER_URL %q: scheme must be memory:// or redis://", c.Broker.URL)
	}
	return nil
}

// IsLocal reports whether the deployment environment is a developer machine.
func (c *Config) IsLocal() bool { return c.EnvName == "local" }

// SlogLevel translates LOG_LEVEL into a slog.Level, defaulting to info.
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Invalid integer env value, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		slog.Warn("Invalid boolean env value, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration env value, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

// parsePairs decodes "k=v,k=v" maps used by provider resource mappings.
func parsePairs(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
