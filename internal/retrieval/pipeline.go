// Package retrieval runs the SERP-to-chunks pipeline: search, scrape,
// preprocess, chunk, score, enrich, deduplicate, store. Failures for one URL
// never sink the others; a dead SERP degrades to uploaded documents only.
package retrieval

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"planforge/internal/chunk"
	"planforge/internal/core"
	"planforge/internal/logging"
	"planforge/internal/preprocess"
	"planforge/internal/scrape"
	"planforge/internal/score"
	"planforge/internal/types"
)

// Options configures pipeline stage parameters.
type Options struct {
	TopKScrape      int
	EnrichBatchSize int
	MinTextLength   int
	ScoreThreshold  float64
	ChunkOptions    chunk.Options
}

func (o *Options) fill() {
	if o.TopKScrape <= 0 {
		o.TopKScrape = 5
	}
	if o.EnrichBatchSize <= 0 {
		o.EnrichBatchSize = 3
	}
	if o.MinTextLength <= 0 {
		o.MinTextLength = 100
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = 0.3
	}
}

// Pipeline turns a research query into scored, enriched chunks.
type Pipeline struct {
	search  core.SearchAPI
	scraper core.ScrapeAPI
	llm     core.LLM
	store   core.VectorStore

	pre     *preprocess.Preprocessor
	chunker *chunk.Chunker
	scorer  *score.Scorer
	opts    Options
}

// Request describes one retrieval run. Session carries the enrichment
// circuit-breaker state and may be nil.
type Request struct {
	Query      string
	Company    string
	UserID     string
	MaxResults int
	Session    *types.Session
}

// New wires a pipeline from its stage dependencies.
func New(search core.SearchAPI, scraper core.ScrapeAPI, llm core.LLM, store core.VectorStore, opts Options) *Pipeline {
	opts.fill()
	return &Pipeline{
		search:  search,
		scraper: scraper,
		llm:     llm,
		store:   store,
		pre:     preprocess.New(opts.MinTextLength),
		chunker: chunk.New(opts.ChunkOptions),
		scorer:  score.New(opts.ScoreThreshold),
		opts:    opts,
	}
}

// Retrieve runs the full pipeline. A SERP failure degrades to uploaded
// documents only; finding nothing at all returns an empty slice, not an
// error.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) ([]types.Chunk, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.StopWithInfo()

	uploaded := p.uploadedChunks(ctx, req)

	results, err := p.search.Search(ctx, req.Query, req.MaxResults)
	if err != nil {
		logging.Get(logging.CategoryRetrieval).Warn("search failed, using uploaded documents only: %v", err)
		return uploaded, nil
	}
	results = dedupeByURL(results)
	if len(results) > p.opts.TopKScrape {
		results = results[:p.opts.TopKScrape]
	}

	pages := p.scrapeAll(ctx, results)

	var chunks []types.Chunk
	for i, page := range pages {
		if page == nil {
			continue
		}
		chunks = append(chunks, p.chunkPage(page, results[i], req)...)
	}

	chunks = p.scorer.Apply(chunks, req.Query)
	chunks = p.enrich(ctx, req.Session, chunks)
	chunks = dedupeByPrefix(chunks)

	p.persist(ctx, chunks)

	logging.RetrievalDebug("retrieval produced %d web chunks, %d uploaded chunks", len(chunks), len(uploaded))
	return append(uploaded, chunks...), nil
}

// scrapeAll fetches pages concurrently. The returned slice is parallel to
// results so aggregation keeps SERP order; failed fetches fall back to the
// SERP snippet.
func (p *Pipeline) scrapeAll(ctx context.Context, results []core.SearchResult) []*core.ScrapedPage {
	pages := make([]*core.ScrapedPage, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.TopKScrape)
	for i, r := range results {
		g.Go(func() error {
			page, err := p.scraper.Scrape(gctx, r.URL)
			if err != nil || page.Text == "" {
				if err != nil {
					logging.Scrape("fetch failed for %s, using snippet: %v", r.URL, err)
				}
				page = scrape.SnippetFallback(r)
			}
			pages[i] = page
			return nil
		})
	}
	g.Wait()
	return pages
}

// chunkPage preprocesses one page and splits it into chunks with retrieval
// metadata attached.
func (p *Pipeline) chunkPage(page *core.ScrapedPage, result core.SearchResult, req Request) []types.Chunk {
	text, meta, err := p.pre.Process(page.Text, preprocess.KindHTML, page.URL)
	if err != nil || text == "" {
		text = preprocess.Normalize(result.Snippet)
	}
	if text == "" {
		return nil
	}

	title := page.Title
	if title == "" {
		title = result.Title
	}
	base := types.ChunkMeta{
		URL:         page.URL,
		Title:       title,
		Domain:      meta.Domain,
		SourceKind:  types.SourceWebSearch,
		UserID:      req.UserID,
		Company:     req.Company,
		Query:       req.Query,
		Language:    meta.Language,
		RetrievedAt: page.FetchedAt,
	}
	return p.chunker.Split(text, base)
}

// uploadedChunks pulls previously ingested document chunks for this user and
// company out of the store.
func (p *Pipeline) uploadedChunks(ctx context.Context, req Request) []types.Chunk {
	if p.store == nil || req.UserID == "" || req.Company == "" {
		return nil
	}
	docs, err := p.store.GetByMetadata(ctx, map[string]string{
		"user_id":     req.UserID,
		"company":     strings.ToLower(req.Company),
		"source_kind": string(types.SourceUploadedDocument),
	}, 0)
	if err != nil {
		logging.Get(logging.CategoryRetrieval).Warn("uploaded document lookup failed: %v", err)
		return nil
	}

	chunks := make([]types.Chunk, 0, len(docs))
	for _, d := range docs {
		chunks = append(chunks, types.Chunk{
			ID:   d.ID,
			Text: d.Text,
			Meta: types.ChunkMeta{
				URL:        d.Metadata["url"],
				Title:      d.Metadata["title"],
				SourceKind: types.SourceUploadedDocument,
				SourceFile: d.Metadata["source_file"],
				UserID:     req.UserID,
				Company:    req.Company,
			},
			Confidence: 1.0,
		})
	}
	return chunks
}

// persist writes the chunks to the vector store with flattened metadata.
// Store failures are logged and swallowed: retrieval output is still usable.
func (p *Pipeline) persist(ctx context.Context, chunks []types.Chunk) {
	if p.store == nil || len(chunks) == 0 {
		return
	}
	docs := make([]core.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = core.Document{ID: c.ID, Text: c.Text, Metadata: sanitizeMeta(c)}
	}
	if err := p.store.Add(ctx, docs); err != nil {
		logging.Get(logging.CategoryStore).Warn("chunk persistence failed: %v", err)
	}
}

// sanitizeMeta flattens chunk metadata to the store's string-only contract.
// Lists serialize to JSON strings, scalars pass through.
func sanitizeMeta(c types.Chunk) map[string]string {
	meta := map[string]string{
		"url":         c.Meta.URL,
		"title":       c.Meta.Title,
		"domain":      c.Meta.Domain,
		"source_kind": string(c.Meta.SourceKind),
		"user_id":     c.Meta.UserID,
		"company":     strings.ToLower(c.Meta.Company),
		"query":       c.Meta.Query,
		"language":    c.Meta.Language,
		"chunk_index": strconv.Itoa(c.Meta.ChunkIndex),
	}
	if !c.Meta.RetrievedAt.IsZero() {
		meta["retrieved_at"] = c.Meta.RetrievedAt.UTC().Format(time.RFC3339)
	}
	if c.Score != nil {
		meta["score"] = strconv.FormatFloat(c.Score.WeightedTotal(), 'f', 4, 64)
	}
	if c.Confidence > 0 {
		meta["confidence"] = strconv.FormatFloat(c.Confidence, 'f', 2, 64)
	}
	if c.Summary != "" {
		meta["summary"] = c.Summary
	}
	if len(c.KeyFacts) > 0 {
		meta["key_facts"] = toJSONString(c.KeyFacts)
	}
	for k, v := range meta {
		if v == "" {
			delete(meta, k)
		}
	}
	return meta
}

func dedupeByURL(results []core.SearchResult) []core.SearchResult {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		key := strings.ToLower(strings.TrimSuffix(r.URL, "/"))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// dedupeByPrefix drops chunks whose first 200 characters repeat an earlier
// chunk. Mirror pages and boilerplate headers collapse to one copy.
func dedupeByPrefix(chunks []types.Chunk) []types.Chunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		prefix := c.Text
		if len(prefix) > 200 {
			prefix = prefix[:200]
		}
		key := strings.ToLower(strings.Join(strings.Fields(prefix), " "))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
