package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, SearchTypeMMR, cfg.SearchType)
	assert.Equal(t, 6, cfg.RetrievalK)
	assert.Equal(t, 20, cfg.RetrievalFetchK)
	assert.Equal(t, 0.5, cfg.RetrievalLambda)
	assert.Equal(t, 4, cfg.MaxContextChunks)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "sqlite", cfg.SessionStore)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STUDYGRAPH_CHUNK_SIZE", "1500")
	t.Setenv("STUDYGRAPH_CHUNK_OVERLAP", "300")
	t.Setenv("STUDYGRAPH_SEARCH_TYPE", "similarity")
	t.Setenv("STUDYGRAPH_LLM_TIMEOUT", "30s")
	t.Setenv("STUDYGRAPH_SESSION_STORE", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.ChunkSize)
	assert.Equal(t, 300, cfg.ChunkOverlap)
	assert.Equal(t, SearchTypeSimilarity, cfg.SearchType)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "redis", cfg.SessionStore)
}

func TestLoad_MalformedValueFallsBack(t *testing.T) {
	t.Setenv("STUDYGRAPH_CHUNK_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.ChunkSize)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ChunkSize:        1000,
			ChunkOverlap:     200,
			SearchType:       SearchTypeMMR,
			RetrievalK:       6,
			RetrievalFetchK:  20,
			RetrievalLambda:  0.5,
			MaxContextChunks: 4,
			SessionStore:     "memory",
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("overlap must be below chunk size", func(t *testing.T) {
		cfg := valid()
		cfg.ChunkOverlap = 1000
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown search type", func(t *testing.T) {
		cfg := valid()
		cfg.SearchType = "cosine"
		assert.Error(t, cfg.Validate())
	})

	t.Run("fetch_k below k", func(t *testing.T) {
		cfg := valid()
		cfg.RetrievalFetchK = 3
		assert.Error(t, cfg.Validate())
	})

	t.Run("lambda out of range", func(t *testing.T) {
		cfg := valid()
		cfg.RetrievalLambda = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown session store", func(t *testing.T) {
		cfg := valid()
		cfg.SessionStore = "dynamo"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_HasProviderCredentials(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.HasProviderCredentials())

	cfg.GeminiKey = "g"
	assert.True(t, cfg.HasProviderCredentials())

	cfg = &Config{OpenAIKey: "o"}
	assert.True(t, cfg.HasProviderCredentials())
}
