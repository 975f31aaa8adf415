package core

import (
	"context"
	"time"

	"planforge/internal/types"
)

// =============================================================================
// LLM
// =============================================================================

// GenerateOptions tunes a single generation call. Zero values mean the
// implementation's defaults.
type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string
}

// LLM generates text. Implementations surface finish-reason failures through
// the error taxonomy: ErrTruncated for token-budget stops, ErrSafetyBlocked
// for safety stops, ErrRateLimit for quota errors.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Available() bool
}

// =============================================================================
// SEARCH
// =============================================================================

// SearchResult is one organic result from a SERP provider.
type SearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
	Date     string `json:"date,omitempty"`
}

// SearchAPI queries a SERP provider.
type SearchAPI interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// =============================================================================
// SCRAPING
// =============================================================================

// ContentKind classifies a fetched page for credibility scoring.
type ContentKind string

const (
	ContentNews    ContentKind = "news"
	ContentPDF     ContentKind = "pdf"
	ContentWebsite ContentKind = "website"
	ContentAPI     ContentKind = "api"
)

// ScrapedPage is the raw output of a single page fetch.
type ScrapedPage struct {
	URL       string
	Title     string
	Text      string
	Kind      ContentKind
	FetchedAt time.Time
}

// ScrapeAPI fetches the readable text of a URL.
type ScrapeAPI interface {
	Scrape(ctx context.Context, url string) (*ScrapedPage, error)
}

// =============================================================================
// EMBEDDINGS AND VECTOR STORAGE
// =============================================================================

// EmbeddingModel turns text into fixed-dimension vectors.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Document is a stored chunk with its metadata, as written to and read from
// the vector store. Metadata values are flat strings at this boundary.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64
}

// VectorStore persists embedded documents and answers similarity queries.
// Where is an equality filter over metadata keys; nil means no filter.
type VectorStore interface {
	Add(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, topK int, where map[string]string) ([]Document, error)
	GetByMetadata(ctx context.Context, where map[string]string, limit int) ([]Document, error)
	Delete(ctx context.Context, where map[string]string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// =============================================================================
// PLAN PERSISTENCE
// =============================================================================

// PlanStore persists generated account plans across sessions. Lookup is by
// (user, chat) first, falling back to (user, company) case-insensitive.
type PlanStore interface {
	Save(ctx context.Context, userID, chatID string, plan *types.AccountPlan) error
	Load(ctx context.Context, userID, chatID, company string) (*types.AccountPlan, error)
	Delete(ctx context.Context, userID, chatID string) error
	Close() error
}
