package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingBatchSize int
	EmbeddingWorkers   int

	DBPath           string
	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	// Chunking parameters: fixed-size overlapping segments measured in runes.
	ChunkSize    int
	ChunkOverlap int

	// Retrieval confidence policy. Thresholds partition [0,1] into the four
	// non-faulted degradation bands; the weights blend the score-distribution
	// features into a single confidence value.
	ConfidenceHigh    float64
	ConfidenceMedium  float64
	ConfidenceLow     float64
	SupportThreshold  float64
	WeightTopScore    float64
	WeightGap         float64
	WeightSupport     float64

	DefaultTopK int
	MaxTopK     int

	AnswerCacheSize int

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Try to find project root by looking for a .env next to go.mod
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		DBPath:             getEnv("DB_PATH", "./data/docuquery.db"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "documents"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	cfg.LogLevel = parseLogLevel(getEnv("LOG_LEVEL", "info"))

	var parseErr error
	cfg.QdrantVectorSize, parseErr = getEnvInt("QDRANT_VECTOR_SIZE", 0)
	if parseErr != nil {
		return nil, parseErr
	}
	if cfg.QdrantVectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required and must be greater than 0")
	}

	if cfg.ChunkSize, parseErr = getEnvInt("CHUNK_SIZE", 700); parseErr != nil {
		return nil, parseErr
	}
	if cfg.ChunkOverlap, parseErr = getEnvInt("CHUNK_OVERLAP", 100); parseErr != nil {
		return nil, parseErr
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < CHUNK_SIZE, got %d/%d", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	if cfg.EmbeddingBatchSize, parseErr = getEnvInt("EMBEDDING_BATCH_SIZE", 16); parseErr != nil {
		return nil, parseErr
	}
	if cfg.EmbeddingWorkers, parseErr = getEnvInt("EMBEDDING_WORKERS", 4); parseErr != nil {
		return nil, parseErr
	}
	if cfg.DefaultTopK, parseErr = getEnvInt("DEFAULT_TOP_K", 5); parseErr != nil {
		return nil, parseErr
	}
	if cfg.MaxTopK, parseErr = getEnvInt("MAX_TOP_K", 20); parseErr != nil {
		return nil, parseErr
	}
	if cfg.AnswerCacheSize, parseErr = getEnvInt("ANSWER_CACHE_SIZE", 1000); parseErr != nil {
		return nil, parseErr
	}

	if cfg.ConfidenceHigh, parseErr = getEnvFloat("CONFIDENCE_HIGH", 0.75); parseErr != nil {
		return nil, parseErr
	}
	if cfg.ConfidenceMedium, parseErr = getEnvFloat("CONFIDENCE_MEDIUM", 0.55); parseErr != nil {
		return nil, parseErr
	}
	if cfg.ConfidenceLow, parseErr = getEnvFloat("CONFIDENCE_LOW", 0.35); parseErr != nil {
		return nil, parseErr
	}
	if !(cfg.ConfidenceLow < cfg.ConfidenceMedium && cfg.ConfidenceMedium < cfg.ConfidenceHigh) {
		return nil, fmt.Errorf("confidence thresholds must satisfy low < medium < high, got %.2f/%.2f/%.2f",
			cfg.ConfidenceLow, cfg.ConfidenceMedium, cfg.ConfidenceHigh)
	}

	if cfg.SupportThreshold, parseErr = getEnvFloat("SUPPORT_THRESHOLD", 0.5); parseErr != nil {
		return nil, parseErr
	}
	if cfg.WeightTopScore, parseErr = getEnvFloat("WEIGHT_TOP_SCORE", 0.6); parseErr != nil {
		return nil, parseErr
	}
	if cfg.WeightGap, parseErr = getEnvFloat("WEIGHT_GAP", 0.2); parseErr != nil {
		return nil, parseErr
	}
	if cfg.WeightSupport, parseErr = getEnvFloat("WEIGHT_SUPPORT", 0.2); parseErr != nil {
		return nil, parseErr
	}

	// Create the data directory for the registry database if needed.
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid float: %w", key, err)
	}
	return parsed, nil
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(value) {
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
