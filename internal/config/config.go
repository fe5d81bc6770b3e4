package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the translation gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service (e.g. https://xxx.ngrok-free.dev when behind a tunnel).
	// Used for logging the WebSocket endpoint; clients connect to wss://<this-host>/ws/translation/{room}.
	// Optional; if unset, logs ws://localhost:PORT/ws/translation.
	GatewayURL string `envconfig:"GATEWAY_URL" default:""`

	// Authentication configuration
	AuthSecret string `envconfig:"AUTH_SECRET" required:"true"` // HMAC secret for client tokens

	// Deepgram STT API configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base

	// Translation API configuration (LibreTranslate-compatible endpoint)
	TranslateURL    string `envconfig:"TRANSLATE_URL" default:"https://libretranslate.com/translate"`
	TranslateAPIKey string `envconfig:"TRANSLATE_API_KEY" default:""`

	// VoiceRSS TTS API configuration
	VoiceRSSAPIKey string `envconfig:"VOICERSS_API_KEY" required:"true"`
	VoiceRSSCodec  string `envconfig:"VOICERSS_CODEC" default:"MP3"`

	// Media storage for synthesized audio, served under /media/audio/
	MediaDir string `envconfig:"MEDIA_DIR" default:"./media/audio"`

	// Pipeline configuration
	StageTimeout    int `envconfig:"STAGE_TIMEOUT" default:"4"`      // Per-stage timeout in seconds
	RealtimeTarget  int `envconfig:"REALTIME_TARGET" default:"5"`    // Total time <= this marks a result real-time (seconds)
	SlowPipelineCap int `envconfig:"SLOW_PIPELINE_CAP" default:"10"` // Total time above this logs a warning (seconds)

	// Session configuration
	OutboundQueueSize int `envconfig:"OUTBOUND_QUEUE_SIZE" default:"64"` // Per-session outbound frame queue

	// Optional persistence endpoint for completed exchanges (blank disables)
	HistoryURL string `envconfig:"HISTORY_URL" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// StageTimeoutDuration returns the per-stage timeout as a duration
func (c *Config) StageTimeoutDuration() time.Duration {
	return time.Duration(c.StageTimeout) * time.Second
}

// RealtimeTargetDuration returns the real-time target as a duration
func (c *Config) RealtimeTargetDuration() time.Duration {
	return time.Duration(c.RealtimeTarget) * time.Second
}

// SlowPipelineCapDuration returns the soft processing-time ceiling as a duration
func (c *Config) SlowPipelineCapDuration() time.Duration {
	return time.Duration(c.SlowPipelineCap) * time.Second
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Validate required fields
	if cfg.AuthSecret == "" {
		return nil, fmt.Errorf("AUTH_SECRET is required")
	}
	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.VoiceRSSAPIKey == "" {
		return nil, fmt.Errorf("VOICERSS_API_KEY is required")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
