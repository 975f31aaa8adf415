package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"planforge/internal/agent"
	"planforge/internal/cache"
	"planforge/internal/chunk"
	"planforge/internal/config"
	"planforge/internal/conflict"
	"planforge/internal/core"
	"planforge/internal/embedding"
	"planforge/internal/llm"
	"planforge/internal/logging"
	"planforge/internal/plan"
	"planforge/internal/retrieval"
	"planforge/internal/router"
	"planforge/internal/scrape"
	"planforge/internal/search"
	"planforge/internal/session"
	"planforge/internal/store"
)

// app is the assembled dependency graph behind every command.
type app struct {
	cfgMu      sync.RWMutex
	cfg        *config.Config
	controller *agent.Controller
	sessions   *session.Memory
	planStore  core.PlanStore
	vectors    core.VectorStore
	router     *router.Router
	browser    *scrape.BrowserScraper
	watcher    *config.Watcher

	janitorStop chan struct{}
}

// buildApp wires the full pipeline from config. API keys resolve from config
// with environment fallbacks (GEMINI_API_KEY, SERPER_API_KEY).
func buildApp(cfg *config.Config) (*app, error) {
	if err := logging.Initialize(resolveWorkspace()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	}

	llmKey := cfg.LLM.APIKey
	if llmKey == "" {
		llmKey = os.Getenv("GEMINI_API_KEY")
	}
	searchKey := cfg.Search.APIKey
	if searchKey == "" {
		searchKey = os.Getenv("SERPER_API_KEY")
	}

	llmClient := llm.NewGeminiClient(llm.Config{
		APIKey:          llmKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Timeout:         cfg.GetLLMTimeout(),
		MaxRetries:      cfg.LLM.MaxRetries,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
	})

	searchClient := search.NewSerperClient(search.Config{
		APIKey:     searchKey,
		BaseURL:    cfg.Search.BaseURL,
		MaxRetries: cfg.Search.MaxRetries,
		Timeout:    cfg.GetSearchTimeout(),
	})

	var scraper core.ScrapeAPI
	var browser *scrape.BrowserScraper
	if cfg.Scrape.UseBrowser {
		browser = scrape.NewBrowserScraper(scrape.BrowserConfig{
			BrowserPath: cfg.Scrape.BrowserPath,
			Timeout:     cfg.GetScrapeTimeout(),
		})
		scraper = browser
	} else {
		scraper = scrape.NewStaticScraper(scrape.Config{
			Timeout:     cfg.GetScrapeTimeout(),
			MaxRetries:  cfg.Scrape.MaxRetries,
			UserAgent:   cfg.Scrape.UserAgent,
			MaxPageSize: int64(cfg.Scrape.MaxPageSize),
		})
	}

	provider := "local"
	embedKey := cfg.Embedding.APIKey
	if embedKey == "" {
		embedKey = llmKey
	}
	if embedKey != "" {
		provider = "genai"
	}
	embedder, err := embedding.NewEngine(embedding.Config{
		Provider:   provider,
		APIKey:     embedKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding engine: %w", err)
	}

	vectors, err := store.NewSQLiteVectorStore(cfg.Storage.VectorDBPath, embedder)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	plans, err := store.NewSQLitePlanStore(cfg.Storage.PlanDBPath)
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("plan store: %w", err)
	}

	pipeline := retrieval.New(searchClient, scraper, llmClient, vectors, retrieval.Options{
		TopKScrape:      cfg.Retrieval.TopK,
		EnrichBatchSize: cfg.Retrieval.EnrichBatchSize,
		MinTextLength:   cfg.Retrieval.MinContentLength,
		ScoreThreshold:  cfg.Retrieval.ScoreThreshold,
		ChunkOptions: chunk.Options{
			ChunkSize:    cfg.Retrieval.ChunkSize,
			ChunkOverlap: cfg.Retrieval.ChunkOverlap,
			MinChunkSize: cfg.Retrieval.MinChunkSize,
		},
	})

	generator := plan.NewGenerator(llmClient, plan.Config{})
	sessions := session.NewMemory()
	queryRouter := router.New(cache.New(cfg.Router.CacheMaxSize, cfg.GetCacheTTL()), cfg.GetCacheTTL())

	controller := agent.New(agent.Config{
		Sessions:  sessions,
		Retriever: pipeline,
		Planner:   generator,
		Conflicts: conflict.New(),
		Router:    queryRouter,
		Store:     vectors,
		PlanStore: plans,
		LLM:       llmClient,
	})

	a := &app{
		cfg:         cfg,
		controller:  controller,
		sessions:    sessions,
		planStore:   plans,
		vectors:     vectors,
		router:      queryRouter,
		browser:     browser,
		janitorStop: make(chan struct{}),
	}
	a.startWatcher()
	go a.janitor()
	return a, nil
}

// startWatcher begins hot-reloading the config file. Settings read per
// operation (janitor retention, timeouts) pick up changes; constructed
// clients keep their dial-time settings until restart.
func (a *app) startWatcher() {
	w, err := config.NewWatcher(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: config watcher unavailable: %v\n", err)
		return
	}
	w.OnReload(a.applyConfig)
	if err := w.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: config watcher: %v\n", err)
		return
	}
	a.watcher = w
}

func (a *app) applyConfig(c *config.Config) {
	a.cfgMu.Lock()
	a.cfg = c
	a.cfgMu.Unlock()
	logging.Boot("configuration reloaded from %s", configPath)
}

func (a *app) jobRetention() time.Duration {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg.GetJobRetention()
}

// janitor prunes finished router jobs on an hourly tick.
func (a *app) janitor() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.router.CleanupOldJobs(a.jobRetention())
		case <-a.janitorStop:
			return
		}
	}
}

func (a *app) Close() {
	close(a.janitorStop)
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if err := a.vectors.Close(); err != nil {
		logging.Get(logging.CategoryStore).Warn("closing vector store: %v", err)
	}
	if err := a.planStore.Close(); err != nil {
		logging.Get(logging.CategoryStore).Warn("closing plan store: %v", err)
	}
	logging.CloseAll()
}

func resolveWorkspace() string {
	if ws := os.Getenv("PLANFORGE_HOME"); ws != "" {
		return ws
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// process runs one message through the agent with the configured timeout.
func (a *app) process(message, sessionID string) (*agent.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	return a.controller.Process(ctx, message, sessionID)
}
