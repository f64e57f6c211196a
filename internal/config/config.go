package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the EchoLens insight engine.
type Config struct {
	Port      int
	Version   string
	Guardrail GuardrailConfig
	Retrieval RetrievalConfig
	Provider  ProviderConfig
	Breaker   BreakerConfig
	Telemetry TelemetryConfig
	Pgvector  PgvectorConfig
}

type GuardrailConfig struct {
	MinQueryLen   int
	MaxQueryLen   int
	RatePerMinute int
}

type RetrievalConfig struct {
	TopK           int
	EmbedBatchSize int
	EmbedDims      int
	MaxInputRunes  int
}

type ProviderConfig struct {
	OpenAIKey   string
	OpenAIModel string
	EmbedModel  string
	Endpoint    string
	CallTimeout time.Duration
}

type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	// SampleRatio in (0, 1]; 1 keeps every trace.
	SampleRatio float64
}

type PgvectorConfig struct {
	// URL is empty when running on the embedded in-memory store.
	URL        string
	Dimensions int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("ECHOLENS_PORT", 8080),
		Version: envStr("ECHOLENS_VERSION", "0.4.0"),
		Guardrail: GuardrailConfig{
			MinQueryLen:   envInt("ECHOLENS_QUERY_MIN_LEN", 3),
			MaxQueryLen:   envInt("ECHOLENS_QUERY_MAX_LEN", 500),
			RatePerMinute: envInt("ECHOLENS_RATE_PER_MINUTE", 30),
		},
		Retrieval: RetrievalConfig{
			TopK:           envInt("ECHOLENS_RETRIEVAL_TOP_K", 5),
			EmbedBatchSize: envInt("ECHOLENS_EMBED_BATCH_SIZE", 100),
			EmbedDims:      envInt("ECHOLENS_EMBED_DIMS", 1536),
			MaxInputRunes:  envInt("ECHOLENS_EMBED_MAX_INPUT_RUNES", 8000),
		},
		Provider: ProviderConfig{
			OpenAIKey:   envStr("OPENAI_API_KEY", ""),
			OpenAIModel: envStr("ECHOLENS_CHAT_MODEL", "gpt-4o-mini"),
			EmbedModel:  envStr("ECHOLENS_EMBED_MODEL", "text-embedding-3-small"),
			Endpoint:    envStr("ECHOLENS_OPENAI_ENDPOINT", ""),
			CallTimeout: envDuration("ECHOLENS_PROVIDER_TIMEOUT", 60*time.Second),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("ECHOLENS_BREAKER_THRESHOLD", 5),
			RecoveryTimeout:  envDuration("ECHOLENS_BREAKER_RECOVERY", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:        envBool("OTEL_ENABLED", false),
			OTLPEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:    envStr("OTEL_SERVICE_NAME", "echolens-insight-engine"),
			ServiceVersion: envStr("ECHOLENS_VERSION", "0.4.0"),
			SampleRatio:    envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		Pgvector: PgvectorConfig{
			URL:        envStr("ECHOLENS_PGVECTOR_URL", ""),
			Dimensions: envInt("ECHOLENS_EMBED_DIMS", 1536),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
