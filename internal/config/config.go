package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ai       AIConfig
	Rag      RAGConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LogDir             string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
	MaxUploadBytes     int
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	EmbeddingProvider string // "openai", "jina", "ollama" or "gemini"
	EmbeddingModel    string
	EmbeddingBaseURL  string
	EmbeddingApiKey   string

	LLMProvider    string // "openai", "huggingface" or "ollama"
	LLMModel       string
	LLMBaseURL     string
	LLMApiKey      string
	LLMTemperature float64

	OllamaBaseURL string
}

type RAGConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	TopK          int
	HistoryWindow int
	IndexStore    string // "file", "bolt", "redis" or "postgres"
	IndexPath     string
}

const (
	IndexStoreFile     = "file"
	IndexStoreBolt     = "bolt"
	IndexStoreRedis    = "redis"
	IndexStorePostgres = "postgres"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LogDir:             getEnv("LOG_DIR", "logs"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			MaxUploadBytes:     getEnvAsInt("MAX_UPLOAD_BYTES", 20*1024*1024),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "openai"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-large"),
			EmbeddingBaseURL:  getEnv("EMBEDDING_BASE_URL", ""),
			EmbeddingApiKey:   getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", "")),
			LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
			LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
			LLMApiKey:         getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			LLMTemperature:    getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		Rag: RAGConfig{
			ChunkSize:     getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:  getEnvAsInt("CHUNK_OVERLAP", 200),
			TopK:          getEnvAsInt("RETRIEVAL_TOP_K", 4),
			HistoryWindow: getEnvAsInt("HISTORY_WINDOW", 10),
			IndexStore:    getEnv("INDEX_STORE", IndexStoreFile),
			IndexPath:     getEnv("INDEX_PATH", "./vector_store/index"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate reports every setting the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.App.JwtSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Database.Connection == "" {
		errs = append(errs, errors.New("DB_CONNECTION_STRING is required"))
	}
	if c.Rag.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Rag.ChunkSize))
	}
	if c.Rag.ChunkOverlap < 0 || c.Rag.ChunkOverlap >= c.Rag.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.Rag.ChunkOverlap))
	}
	if c.Rag.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.Rag.TopK))
	}
	if c.Rag.HistoryWindow <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_WINDOW must be positive, got %d", c.Rag.HistoryWindow))
	}

	switch c.Rag.IndexStore {
	case IndexStoreFile, IndexStoreBolt, IndexStorePostgres:
	case IndexStoreRedis:
		if c.App.RedisURL == "" {
			errs = append(errs, errors.New("INDEX_STORE=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_STORE %q", c.Rag.IndexStore))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
