// Package config loads runtime configuration from environment variables,
// with optional .env support for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials indicates that no usable provider credentials were
// found. Construction fails fast rather than failing on the first request.
var ErrMissingCredentials = errors.New("missing provider credentials")

// Search type names accepted in STUDYGRAPH_SEARCH_TYPE.
const (
	SearchTypeSimilarity = "similarity"
	SearchTypeMMR        = "mmr"
)

// Config carries everything the pipeline, agent, and CLI need.
type Config struct {
	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Models
	ModelName      string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	LLMTimeout     time.Duration

	// Retrieval
	SearchType       string
	RetrievalK       int
	RetrievalFetchK  int
	RetrievalLambda  float64
	MaxContextChunks int

	// Paths
	MaterialsDir string
	StoreDir     string

	// Provider credentials
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string

	// Session persistence: memory, sqlite, redis, or postgres
	SessionStore string
	RedisAddr    string
	PostgresURL  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	// Ignore a missing .env, that's the common production case
	_ = godotenv.Load()

	cfg := &Config{
		ChunkSize:    getEnvInt("STUDYGRAPH_CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("STUDYGRAPH_CHUNK_OVERLAP", 200),

		ModelName:      getEnv("STUDYGRAPH_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("STUDYGRAPH_EMBEDDING_MODEL", "text-embedding-3-small"),
		Temperature:    getEnvFloat("STUDYGRAPH_TEMPERATURE", 0.2),
		MaxTokens:      getEnvInt("STUDYGRAPH_MAX_TOKENS", 1024),
		LLMTimeout:     getEnvDuration("STUDYGRAPH_LLM_TIMEOUT", 60*time.Second),

		SearchType:       getEnv("STUDYGRAPH_SEARCH_TYPE", SearchTypeMMR),
		RetrievalK:       getEnvInt("STUDYGRAPH_RETRIEVAL_K", 6),
		RetrievalFetchK:  getEnvInt("STUDYGRAPH_RETRIEVAL_FETCH_K", 20),
		RetrievalLambda:  getEnvFloat("STUDYGRAPH_RETRIEVAL_LAMBDA", 0.5),
		MaxContextChunks: getEnvInt("STUDYGRAPH_MAX_CONTEXT_CHUNKS", 4),

		MaterialsDir: getEnv("STUDYGRAPH_MATERIALS_DIR", "./materials"),
		StoreDir:     getEnv("STUDYGRAPH_STORE_DIR", "./data"),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiKey:     getEnv("GEMINI_API_KEY", ""),

		SessionStore: getEnv("STUDYGRAPH_SESSION_STORE", "sqlite"),
		RedisAddr:    getEnv("STUDYGRAPH_REDIS_ADDR", "localhost:6379"),
		PostgresURL:  getEnv("STUDYGRAPH_POSTGRES_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d with chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.SearchType != SearchTypeSimilarity && c.SearchType != SearchTypeMMR {
		return fmt.Errorf("unknown search type %q, want %q or %q", c.SearchType, SearchTypeSimilarity, SearchTypeMMR)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("retrieval k must be positive, got %d", c.RetrievalK)
	}
	if c.RetrievalFetchK < c.RetrievalK {
		return fmt.Errorf("retrieval fetch_k (%d) must be >= k (%d)", c.RetrievalFetchK, c.RetrievalK)
	}
	if c.RetrievalLambda < 0 || c.RetrievalLambda > 1 {
		return fmt.Errorf("retrieval lambda must be in [0, 1], got %f", c.RetrievalLambda)
	}
	if c.MaxContextChunks <= 0 {
		return fmt.Errorf("max context chunks must be positive, got %d", c.MaxContextChunks)
	}
	switch c.SessionStore {
	case "memory", "sqlite", "redis", "postgres":
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}
	return nil
}

// HasProviderCredentials reports whether at least one embedding/LLM provider
// is configured.
func (c *Config) HasProviderCredentials() bool {
	return c.OpenAIKey != "" || c.GeminiKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
