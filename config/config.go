package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// RedisConfig holds connection settings for the redis vector backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	IndexName string
}

// Config is the full application configuration, loaded from environment
// variables with an optional .env file.
type Config struct {
	HTTPAddr string

	LogLevel  string
	LogFormat string // text | json

	DBDriver string // postgres | sqlite
	DBDSN    string

	VectorBackend string // pgvector | redis | memory
	Redis         RedisConfig

	GeminiAPIKey string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	DocEmbeddingModel   string
	QueryEmbeddingModel string
	EmbeddingDim        int

	ChatModels   []string
	DefaultModel string

	MaxOutputTokens     int
	TopK                int
	SimilarityThreshold float64
}

// Load reads configuration from the environment, loading .env first if one
// exists.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[cfg] no .env file loaded: %v", err)
	}

	cfg := Config{
		HTTPAddr: getEnvString("HTTP_ADDR", ":8000"),

		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "text"),

		DBDriver: getEnvString("DB_DRIVER", "sqlite"),
		DBDSN:    getEnvString("DB_DSN", "ragchat.db"),

		VectorBackend: getEnvString("VECTOR_BACKEND", "memory"),
		Redis: RedisConfig{
			Addr:      getEnvString("REDIS_ADDR", "localhost:6379"),
			Password:  getEnvString("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			PoolSize:  getEnvInt("REDIS_POOL_SIZE", 10),
			IndexName: getEnvString("VECTOR_INDEX_NAME", "ragchat-docs"),
		},

		GeminiAPIKey: getEnvString("GOOGLE_API_KEY", ""),

		OpenAIAPIKey:  getEnvString("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnvString("OPENAI_BASE_URL", ""),

		EmbeddingAPIKey:     getEnvString("EMBEDDING_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		EmbeddingBaseURL:    getEnvString("EMBEDDING_BASE_URL", ""),
		DocEmbeddingModel:   getEnvString("EMBEDDING_MODEL", "text-embedding-004"),
		QueryEmbeddingModel: getEnvString("QUERY_EMBEDDING_MODEL", ""),
		EmbeddingDim:        getEnvInt("EMBEDDING_DIM", 768),

		ChatModels:   splitList(getEnvString("CHAT_MODELS", "gemini-1.5-flash,gemini-1.5-pro")),
		DefaultModel: getEnvString("DEFAULT_MODEL", "gemini-1.5-flash"),

		MaxOutputTokens:     getEnvInt("MAX_OUTPUT_TOKENS", 8192),
		TopK:                getEnvInt("RETRIEVAL_TOP_K", 5),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.7),
	}

	if cfg.QueryEmbeddingModel == "" {
		cfg.QueryEmbeddingModel = cfg.DocEmbeddingModel
	}
	return cfg
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
