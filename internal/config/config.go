package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings, loaded from environment variables.
// Call godotenv.Load before Load to pick up a local .env file.
type Config struct {
	Port     string
	LogLevel string

	MongoURI      string
	MongoDatabase string

	JWTSecret    string
	TokenExpiry  time.Duration
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string

	WhisperBinaryPath string
	WhisperModelPath  string

	GoogleSpeechEnabled bool

	TTSBaseURL string
	TTSVoice   string

	UploadDir     string
	MaxUploadSize int64
}

// Load reads configuration from the environment, applying defaults for
// everything optional. Only the JWT secret is required.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("MONGODB_DATABASE", "speakai"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		TokenExpiry:  7 * 24 * time.Hour,
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),

		WhisperBinaryPath: os.Getenv("WHISPER_BINARY_PATH"),
		WhisperModelPath:  os.Getenv("WHISPER_MODEL_PATH"),

		GoogleSpeechEnabled: getEnvBool("GOOGLE_SPEECH_ENABLED", false),

		TTSBaseURL: getEnv("TTS_BACKEND_BASE_URL", "http://tts_kokoro:8880"),
		TTSVoice:   getEnv("TTS_VOICE_NAME", "af_heart"),

		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE", 50*1024*1024),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if raw := os.Getenv("TOKEN_EXPIRY_HOURS"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			return nil, fmt.Errorf("invalid TOKEN_EXPIRY_HOURS: %q", raw)
		}
		cfg.TokenExpiry = time.Duration(hours) * time.Hour
	}

	return cfg, nil
}

// UseMongo reports whether the persistent store is configured; without it
// the server runs on the in-memory store.
func (c *Config) UseMongo() bool {
	return c.MongoURI != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
