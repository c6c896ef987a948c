package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (optional — worker falls back to pure interval polling when unset)
	RedisURL string

	// Supabase Storage
	SupabaseURL        string
	SupabaseServiceKey string
	VideoBucket        string
	ThumbnailBucket    string

	// OpenAI (summaries and video scripts)
	OpenAIKey   string
	OpenAIModel string

	// Exa (web search for research)
	ExaAPIKey string

	// fal.ai (Kling clip generation and lipsync)
	FalKey string

	// ElevenLabs (voiceover synthesis, scene mode only)
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	// Pipeline
	PipelineMode    string // "scene" or "anchor"
	AnchorVoiceID   string // Kling built-in TTS voice for lipsync
	AnchorGender    string // "male" or "female" presenter
	DemoOwnerID     string // Default owner when a request doesn't name one
	MaxTopics       int
	ExaDays         int
	ExaNumResults   int
	MaxRssArticles  int
	MaxItemsPerFeed int
	FetchFullText   bool // fetch article pages and extract body text on ingest

	// Worker
	PollInterval time.Duration
	TempDir      string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		VideoBucket:        getEnv("SUPABASE_VIDEO_BUCKET", "videos"),
		ThumbnailBucket:    getEnv("SUPABASE_THUMBNAIL_BUCKET", "thumbnails"),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ExaAPIKey:          getEnv("EXA_API_KEY", ""),
		FalKey:             getEnv("FAL_KEY", ""),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", "onwK4e9ZLuTAKqWW03F9"), // Daniel — steady broadcaster
		ElevenLabsModelID:  getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		PipelineMode:       getEnv("PIPELINE_MODE", "scene"),
		AnchorVoiceID:      getEnv("ANCHOR_VOICE_ID", "uk_man2"),
		AnchorGender:       getEnv("ANCHOR_GENDER", "male"),
		DemoOwnerID:        getEnv("DEMO_OWNER_ID", "00000000-0000-0000-0000-000000000001"),
		MaxTopics:          getEnvInt("MAX_TOPICS", 5),
		ExaDays:            getEnvInt("EXA_DAYS", 7),
		ExaNumResults:      getEnvInt("EXA_NUM_RESULTS", 12),
		MaxRssArticles:     getEnvInt("MAX_RSS_ARTICLES", 8),
		MaxItemsPerFeed:    getEnvInt("MAX_ITEMS_PER_FEED", 10),
		FetchFullText:      getEnvBool("INGEST_FULL_TEXT", true),
		PollInterval:       getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		TempDir:            getEnv("TEMP_DIR", "/tmp/walter"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	if cfg.PipelineMode != "scene" && cfg.PipelineMode != "anchor" {
		return nil, fmt.Errorf("PIPELINE_MODE must be \"scene\" or \"anchor\", got %q", cfg.PipelineMode)
	}

	if cfg.WorkerEnabled {
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when the worker is enabled")
		}
		if cfg.ExaAPIKey == "" {
			return nil, fmt.Errorf("EXA_API_KEY is required when the worker is enabled")
		}
		if cfg.FalKey == "" {
			return nil, fmt.Errorf("FAL_KEY is required when the worker is enabled")
		}
		// Scene mode synthesizes a separate voiceover; anchor mode gets audio
		// embedded by lipsync and never touches ElevenLabs.
		if cfg.PipelineMode == "scene" && cfg.ElevenLabsKey == "" {
			return nil, fmt.Errorf("ELEVENLABS_API_KEY is required in scene mode")
		}
	}

	return cfg, nil
}

// Secrets returns every configured credential value, for error redaction.
func (c *Config) Secrets() []string {
	return []string{
		c.BackendAPIKey,
		c.SupabaseServiceKey,
		c.OpenAIKey,
		c.ExaAPIKey,
		c.FalKey,
		c.ElevenLabsKey,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
