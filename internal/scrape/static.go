// Package scrape fetches page content for the retrieval pipeline. The static
// fetcher covers plain HTTP pages; the browser fetcher renders JS-heavy pages
// through a headless Chrome session. Both classify the fetched page for
// credibility scoring.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"planforge/internal/core"
	"planforge/internal/logging"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Config configures the static scraper.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	UserAgent   string
	MaxPageSize int64
}

// StaticScraper implements core.ScrapeAPI with plain HTTP fetches.
type StaticScraper struct {
	httpClient  *http.Client
	maxRetries  int
	userAgent   string
	maxPageSize int64
	backoff     func(attempt int) time.Duration
}

// NewStaticScraper creates a scraper, filling zero config values with
// defaults (30s timeout, 2 retries, 2 MiB page cap).
func NewStaticScraper(cfg Config) *StaticScraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 2 << 20
	}
	return &StaticScraper{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
		userAgent:   cfg.UserAgent,
		maxPageSize: cfg.MaxPageSize,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

// Scrape fetches the URL, retrying transient failures, and returns the raw
// page with its title and kind. PDF responses return a page with empty text:
// binary extraction is an upstream concern.
func (s *StaticScraper) Scrape(ctx context.Context, rawURL string) (*core.ScrapedPage, error) {
	if !validURL(rawURL) {
		return nil, fmt.Errorf("scrape: invalid url %q: %w", rawURL, core.ErrInvalidInput)
	}

	timer := logging.StartTimer(logging.CategoryScrape, "Scrape")
	defer timer.StopWithThreshold(5 * time.Second)

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("scrape: %w: %v", core.ErrNetwork, ctx.Err())
			case <-time.After(s.backoff(attempt)):
			}
		}
		page, err := s.fetch(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		if !core.Retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("scrape: retries exhausted for %s: %w", rawURL, lastErr)
}

func (s *StaticScraper) fetch(ctx context.Context, rawURL string) (*core.ScrapedPage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("scrape: %w: http 429", core.ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("scrape: %w: http %d", core.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("scrape: http %d fetching %s", resp.StatusCode, rawURL)
	}

	contentType := resp.Header.Get("Content-Type")
	kind := ClassifyPage(rawURL, contentType)

	page := &core.ScrapedPage{
		URL:       rawURL,
		Kind:      kind,
		FetchedAt: time.Now(),
	}
	if kind == core.ContentPDF {
		logging.Scrape("pdf at %s, skipping body extraction", rawURL)
		return page, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("scrape: %w: read body: %v", core.ErrNetwork, err)
	}
	page.Text = string(body)
	page.Title = ExtractTitle(page.Text)
	logging.ScrapeDebug("fetched %s: %d bytes, kind=%s", rawURL, len(body), kind)
	return page, nil
}

// ExtractTitle pulls the <title> text out of an HTML document.
func ExtractTitle(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return title
}

var newsDomains = []string{
	"reuters.com", "bloomberg.com", "wsj.com", "ft.com", "cnbc.com",
	"forbes.com", "techcrunch.com", "businesswire.com", "prnewswire.com",
	"news.", "/news/",
}

// ClassifyPage determines the content kind used for source citations and
// credibility scoring.
func ClassifyPage(rawURL, contentType string) core.ContentKind {
	lower := strings.ToLower(rawURL)
	if strings.Contains(contentType, "application/pdf") || strings.HasSuffix(lower, ".pdf") {
		return core.ContentPDF
	}
	if strings.Contains(contentType, "application/json") || strings.Contains(lower, "/api/") {
		return core.ContentAPI
	}
	for _, d := range newsDomains {
		if strings.Contains(lower, d) {
			return core.ContentNews
		}
	}
	return core.ContentWebsite
}

func validURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SnippetFallback builds a page from a SERP snippet when every fetch attempt
// for the URL failed. The snippet is short but keeps the source represented.
func SnippetFallback(result core.SearchResult) *core.ScrapedPage {
	return &core.ScrapedPage{
		URL:       result.URL,
		Title:     result.Title,
		Text:      result.Snippet,
		Kind:      ClassifyPage(result.URL, ""),
		FetchedAt: time.Now(),
	}
}
