// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port string

	// Environment selects development or production behavior; development
	// skips the WebSocket origin check.
	Environment string
	// AllowedOrigins lists the origins accepted for CORS and WebSocket
	// upgrades. "*" allows everything.
	AllowedOrigins []string

	// Redis fabric: candidate addresses tried in order.
	RedisAddrs  []string
	RedisDB     int
	DialTimeout time.Duration

	// Profile/content store.
	DBPath string

	// Inference service (OpenAI-compatible).
	InferenceAPIKey  string
	InferenceBaseURL string
	ChatModel        string
	TranscribeModel  string
	SpeechModel      string
	SpeechVoice      string
	InferenceTimeout time.Duration

	// Audio format the devices stream in.
	SampleRate  int
	SampleWidth int
	Channels    int
	// MinUtterance of buffered audio triggers a processing dispatch.
	MinUtterance time.Duration
	// MinMeaningful is the smallest end-of-stream remnant worth processing.
	MinMeaningful time.Duration
	// ChunkTTL bounds how long an unconsumed audio chunk key survives.
	ChunkTTL time.Duration

	// Session lifecycle.
	SessionTTL      time.Duration
	EndedSessionTTL time.Duration

	// Worker pool.
	AgentWorkers      int
	DiscoveryInterval time.Duration
	WorkerFlagTTL     time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("APP_ENV", "development"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		RedisAddrs:  splitList(getEnv("REDIS_ADDRS", "localhost:6379")),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		DialTimeout: getEnvDuration("REDIS_DIAL_TIMEOUT", 3*time.Second),

		DBPath: getEnv("DB_PATH", "./data/tutor.db"),

		InferenceAPIKey:  getEnv("OPENAI_API_KEY", ""),
		InferenceBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:        getEnv("CHAT_MODEL", "gpt-4o"),
		TranscribeModel:  getEnv("TRANSCRIBE_MODEL", "whisper-1"),
		SpeechModel:      getEnv("SPEECH_MODEL", "tts-1"),
		SpeechVoice:      getEnv("SPEECH_VOICE", "nova"),
		InferenceTimeout: getEnvDuration("INFERENCE_TIMEOUT", 30*time.Second),

		SampleRate:    getEnvInt("SAMPLE_RATE", 8000),
		SampleWidth:   getEnvInt("SAMPLE_WIDTH", 2),
		Channels:      getEnvInt("AUDIO_CHANNELS", 1),
		MinUtterance:  getEnvDuration("MIN_UTTERANCE", 2*time.Second),
		MinMeaningful: getEnvDuration("MIN_MEANINGFUL", 500*time.Millisecond),
		ChunkTTL:      getEnvDuration("CHUNK_TTL", 5*time.Minute),

		SessionTTL:      getEnvDuration("SESSION_TTL", time.Hour),
		EndedSessionTTL: getEnvDuration("ENDED_SESSION_TTL", 30*time.Minute),

		AgentWorkers:      getEnvInt("AGENT_WORKERS", 2),
		DiscoveryInterval: getEnvDuration("QUEUE_DISCOVERY_INTERVAL", 5*time.Second),
		WorkerFlagTTL:     getEnvDuration("WORKER_FLAG_TTL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if len(c.RedisAddrs) == 0 {
		return fmt.Errorf("REDIS_ADDRS cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SampleRate <= 0 || c.SampleWidth <= 0 || c.Channels <= 0 {
		return fmt.Errorf("audio format must be positive (rate=%d width=%d channels=%d)",
			c.SampleRate, c.SampleWidth, c.Channels)
	}
	if c.MinUtterance <= 0 {
		return fmt.Errorf("MIN_UTTERANCE must be > 0")
	}
	if c.MinMeaningful > c.MinUtterance {
		return fmt.Errorf("MIN_MEANINGFUL cannot exceed MIN_UTTERANCE")
	}
	if c.AgentWorkers <= 0 {
		return fmt.Errorf("AGENT_WORKERS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment != "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
