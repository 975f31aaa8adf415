package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "planforge", cfg.Name)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 800, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 100, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 200, cfg.Retrieval.MinChunkSize)
	assert.Equal(t, 3, cfg.Retrieval.EnrichBatchSize)
	assert.Equal(t, 10000, cfg.Router.CacheMaxSize)
	assert.Equal(t, 3*time.Hour, cfg.GetCacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.GetJobRetention())
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Retrieval, cfg.Retrieval)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("retrieval:\n  chunk_size: 1200\nrouter:\n  cache_ttl: 1h\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 100, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERPER_API_KEY", "serp-key")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("PLANFORGE_CACHE_MAX_SIZE", "500")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "serp-key", cfg.Search.APIKey)
	assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	assert.Equal(t, "gem-key", cfg.Embedding.APIKey)
	assert.Equal(t, 500, cfg.Router.CacheMaxSize)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Retrieval.TopK = 25
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, back.Retrieval.TopK)
}

func TestBadDurationFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Router.CacheTTL = "garbage"
	assert.Equal(t, 3*time.Hour, cfg.GetCacheTTL())
	cfg.Scrape.Timeout = ""
	assert.Equal(t, 30*time.Second, cfg.GetScrapeTimeout())
}
