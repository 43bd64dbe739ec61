package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type Config struct {
	CompletionsAPIURL string
	CompletionsAPIKey string
	CompletionsModel  string
	EmbeddingsAPIURL  string
	EmbeddingsAPIKey  string
	EmbeddingsModel   string
	HTTPPort          string
	DBPath            string
	NatsURL           string
	CatalogPath       string
	VectorBackend     string
	WeaviateHost      string
	WeaviateScheme    string
	EmbeddingCacheSize int
	MaxRewrites        int
}

func getEnv(key, defaultValue string, printEnv bool) string {
	logger := log.Default()
	value := os.Getenv(key)
	if printEnv {
		logger.Info("Env", "key", key, "value", value)
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int, printEnv bool) int {
	raw := getEnv(key, "", printEnv)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		panic(fmt.Sprintf("Environment variable %s is not an integer: %q", key, raw))
	}
	return value
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		CompletionsAPIURL:  getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsAPIKey:  getEnv("COMPLETIONS_API_KEY", "", printEnv),
		CompletionsModel:   getEnv("COMPLETIONS_MODEL", "gpt-4.1-mini", printEnv),
		EmbeddingsAPIURL:   getEnv("EMBEDDINGS_API_URL", "https://api.openai.com/v1", printEnv),
		EmbeddingsAPIKey:   getEnv("EMBEDDINGS_API_KEY", "", printEnv),
		EmbeddingsModel:    getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small", printEnv),
		HTTPPort:           getEnv("HTTP_PORT", "8080", printEnv),
		DBPath:             getEnv("DB_PATH", "./output/sqlite/store.db", printEnv),
		NatsURL:            getEnv("NATS_URL", "", printEnv),
		CatalogPath:        getEnv("FIELD_CATALOG_PATH", "", printEnv),
		VectorBackend:      getEnv("VECTOR_BACKEND", "memory", printEnv),
		WeaviateHost:       getEnv("WEAVIATE_HOST", "localhost:8080", printEnv),
		WeaviateScheme:     getEnv("WEAVIATE_SCHEME", "http", printEnv),
		EmbeddingCacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 2048, printEnv),
		MaxRewrites:        getEnvInt("RETRIEVAL_MAX_REWRITES", 2, printEnv),
	}

	return conf, nil
}
