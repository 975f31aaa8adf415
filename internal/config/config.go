// Package config loads planforge configuration from YAML with environment
// variable overrides. A missing config file is not an error: defaults apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all planforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Search (SERP) configuration
	Search SearchConfig `yaml:"search"`

	// Scraping configuration
	Scrape ScrapeConfig `yaml:"scrape"`

	// Retrieval pipeline tuning
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Storage paths
	Storage StorageConfig `yaml:"storage"`

	// Query router and cache
	Router RouterConfig `yaml:"router"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation model.
type LLMConfig struct {
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Timeout         string  `yaml:"timeout"`
	MaxRetries      int     `yaml:"max_retries"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// EmbeddingConfig configures the embedding model.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// SearchConfig configures the SERP provider.
type SearchConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
	MaxRetries int    `yaml:"max_retries"`
	Timeout    string `yaml:"timeout"`
}

// ScrapeConfig configures page fetching.
type ScrapeConfig struct {
	Timeout     string `yaml:"timeout"`
	MaxRetries  int    `yaml:"max_retries"`
	UserAgent   string `yaml:"user_agent"`
	UseBrowser  bool   `yaml:"use_browser"`
	BrowserPath string `yaml:"browser_path"`
	MaxPageSize int    `yaml:"max_page_size"`
}

// RetrievalConfig tunes chunking, scoring and enrichment.
type RetrievalConfig struct {
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	MinChunkSize     int     `yaml:"min_chunk_size"`
	TopK             int     `yaml:"top_k"`
	EnrichBatchSize  int     `yaml:"enrich_batch_size"`
	MinContentLength int     `yaml:"min_content_length"`
	ScoreThreshold   float64 `yaml:"score_threshold"`
}

// StorageConfig holds database locations.
type StorageConfig struct {
	VectorDBPath string `yaml:"vector_db_path"`
	PlanDBPath   string `yaml:"plan_db_path"`
}

// RouterConfig tunes the query router and SERP cache.
type RouterConfig struct {
	CacheTTL     string `yaml:"cache_ttl"`
	CacheMaxSize int    `yaml:"cache_max_size"`
	JobRetention string `yaml:"job_retention"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "planforge",
		Version: "1.0.0",

		LLM: LLMConfig{
			Model:           "gemini-2.0-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "120s",
			MaxRetries:      3,
			Temperature:     0.7,
			MaxOutputTokens: 2048,
		},

		Embedding: EmbeddingConfig{
			Model:      "text-embedding-004",
			Dimensions: 768,
			BatchSize:  16,
		},

		Search: SearchConfig{
			BaseURL:    "https://google.serper.dev/search",
			MaxResults: 10,
			MaxRetries: 3,
			Timeout:    "30s",
		},

		Scrape: ScrapeConfig{
			Timeout:     "30s",
			MaxRetries:  2,
			UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			UseBrowser:  false,
			MaxPageSize: 2 << 20,
		},

		Retrieval: RetrievalConfig{
			ChunkSize:        800,
			ChunkOverlap:     100,
			MinChunkSize:     200,
			TopK:             5,
			EnrichBatchSize:  3,
			MinContentLength: 100,
			ScoreThreshold:   0.3,
		},

		Storage: StorageConfig{
			VectorDBPath: "data/planforge_vectors.db",
			PlanDBPath:   "data/planforge_plans.db",
		},

		Router: RouterConfig{
			CacheTTL:     "3h",
			CacheMaxSize: 10000,
			JobRetention: "24h",
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".planforge/logs",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}
	if key := os.Getenv("SERPER_API_KEY"); key != "" {
		c.Search.APIKey = key
	}
	if path := os.Getenv("PLANFORGE_VECTOR_DB"); path != "" {
		c.Storage.VectorDBPath = path
	}
	if path := os.Getenv("PLANFORGE_PLAN_DB"); path != "" {
		c.Storage.PlanDBPath = path
	}
	if ttl := os.Getenv("PLANFORGE_CACHE_TTL"); ttl != "" {
		c.Router.CacheTTL = ttl
	}
	if size := os.Getenv("PLANFORGE_CACHE_MAX_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil && n > 0 {
			c.Router.CacheMaxSize = n
		}
	}
	if level := os.Getenv("PLANFORGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSearchTimeout returns the SERP request timeout as a duration.
func (c *Config) GetSearchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetScrapeTimeout returns the per-page fetch timeout as a duration.
func (c *Config) GetScrapeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Scrape.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetCacheTTL returns the SERP cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Router.CacheTTL)
	if err != nil {
		return 3 * time.Hour
	}
	return d
}

// GetJobRetention returns how long completed jobs are kept.
func (c *Config) GetJobRetention() time.Duration {
	d, err := time.ParseDuration(c.Router.JobRetention)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
