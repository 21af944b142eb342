package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	JWTSecret   string
	LogLevel    string

	// Collaborator endpoints. OllamaURL serves both embeddings and local
	// chat models; HostedAPIURL is an OpenAI-compatible hosted endpoint
	// used when the caller supplies an API key.
	OllamaURL    string
	HostedAPIURL string

	EmbeddingModel string
	DefaultModel   string

	ChunkSize    int
	ChunkOverlap int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", "ragserver.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		OllamaURL:      getEnv("OLLAMA_SERVER_URL", "http://localhost:11434"),
		HostedAPIURL:   getEnv("HOSTED_API_URL", "https://api.groq.com/openai/v1"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		DefaultModel:   getEnv("DEFAULT_CHAT_MODEL", "llama3"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1500),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 300),
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
