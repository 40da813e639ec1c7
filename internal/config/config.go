package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Document store (Job Store, C2)
	DatabaseURL string

	// Job admission queue (C7)
	RedisURL string

	// Artifact store (C1)
	ArtifactStoreURL string
	ArtifactStoreKey string
	ArtifactBucket   string

	// Text planner (C3)
	OpenAIKey string

	// Vision verification (C3, optional)
	VisionAPIKey string

	// Video model (C3) — xAI preferred, Veo kept as an alternate implementation
	XAIEnabled bool
	XAIAPIKey  string
	VeoEnabled bool
	VeoAPIKey  string
	VeoModel   string

	// Speech model (C3) — ElevenLabs preferred, Cartesia legacy fallback
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	CartesiaKey       string
	CartesiaURL       string
	CartesiaVoiceID   string

	// Mux tool (C3)
	MuxTempDir string

	// Orchestrator (C7)
	MaxConcurrentJobs      int
	PlanningTimeoutSec     int
	ClipGenTimeoutSec      int
	RetryBackoffCapSec     int
	JobWallClockTimeoutMin int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		ArtifactStoreURL: getEnv("ARTIFACT_STORE_URL", ""),
		ArtifactStoreKey: getEnv("ARTIFACT_STORE_SERVICE_KEY", ""),
		ArtifactBucket:   getEnv("ARTIFACT_STORE_BUCKET", "ad-pipeline"),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),

		VisionAPIKey: getEnv("VISION_API_KEY", ""),

		XAIEnabled: getEnvBool("XAI_VIDEO_ENABLED", true),
		XAIAPIKey:  getEnv("XAI_API_KEY", ""),
		VeoEnabled: getEnvBool("VEO_ENABLED", false),
		VeoAPIKey:  getEnv("GEMINI_API_KEY", ""),
		VeoModel:   getEnv("VEO_MODEL", "veo-3.1-generate-preview"),

		ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:       getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:       getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:   getEnv("CARTESIA_VOICE_ID", ""),

		MuxTempDir: getEnv("MUX_TEMP_DIR", "/tmp/reelforge"),

		MaxConcurrentJobs:      getEnvInt("MAX_CONCURRENT_JOBS", 5),
		PlanningTimeoutSec:     getEnvInt("PLANNING_TIMEOUT_SEC", 120),
		ClipGenTimeoutSec:      getEnvInt("CLIP_GEN_TIMEOUT_SEC", 600),
		RetryBackoffCapSec:     getEnvInt("RETRY_BACKOFF_CAP_SEC", 30),
		JobWallClockTimeoutMin: getEnvInt("JOB_WALL_CLOCK_TIMEOUT_MIN", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.XAIAPIKey == "" && cfg.VeoAPIKey == "" {
		return nil, fmt.Errorf("either XAI_API_KEY or GEMINI_API_KEY is required for video generation")
	}

	if cfg.ElevenLabsKey == "" && cfg.CartesiaKey == "" {
		return nil, fmt.Errorf("either ELEVENLABS_API_KEY or CARTESIA_API_KEY is required for TTS")
	}

	if cfg.ArtifactStoreURL == "" || cfg.ArtifactStoreKey == "" {
		return nil, fmt.Errorf("ARTIFACT_STORE_URL and ARTIFACT_STORE_SERVICE_KEY are required")
	}

	return cfg, nil
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
