// Package search implements the SERP provider client against the Serper API.
// Transient failures retry with exponential backoff; exhaustion surfaces as
// an error the pipeline downgrades to an empty result set.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"planforge/internal/core"
	"planforge/internal/logging"
)

// Config configures the Serper client.
type Config struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		BaseURL:    "https://google.serper.dev/search",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// SerperClient implements core.SearchAPI over the Serper REST API.
type SerperClient struct {
	apiKey     string
	baseURL    string
	maxRetries int
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
}

// NewSerperClient creates a client from config, filling zero values with
// defaults.
func NewSerperClient(cfg Config) *SerperClient {
	def := DefaultConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &SerperClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
		Date     string `json:"date,omitempty"`
	} `json:"organic"`
}

// Search queries Serper. Network errors and 5xx retry up to maxRetries with
// backoff 2s, 4s, 8s; rate limits and auth failures surface immediately.
func (c *SerperClient) Search(ctx context.Context, query string, maxResults int) ([]core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search: empty query: %w", core.ErrInvalidInput)
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("search: %w: no API key", core.ErrInvalidKey)
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	timer := logging.StartTimer(logging.CategorySearch, "Search")
	defer timer.StopWithInfo()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			logging.Search("retry %d/%d after %v: %v", attempt, c.maxRetries, wait, lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("search: %w: %v", core.ErrNetwork, ctx.Err())
			case <-time.After(wait):
			}
		}

		results, err := c.doSearch(ctx, query, maxResults)
		if err == nil {
			logging.Search("query returned %d results", len(results))
			return results, nil
		}
		if !core.Retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("search: retries exhausted: %w", lastErr)
}

func (c *SerperClient) doSearch(ctx context.Context, query string, maxResults int) ([]core.SearchResult, error) {
	payload, err := json.Marshal(serperRequest{Query: query, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: %w: read response: %v", core.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("search: %w: http 429", core.ErrRateLimit)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("search: %w: http %d", core.ErrInvalidKey, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("search: %w: http %d", core.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("search: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed serperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search: parse response: %w", err)
	}

	results := make([]core.SearchResult, 0, len(parsed.Organic))
	for i, o := range parsed.Organic {
		if o.Link == "" {
			continue
		}
		pos := o.Position
		if pos == 0 {
			pos = i + 1
		}
		results = append(results, core.SearchResult{
			Title:    o.Title,
			URL:      o.Link,
			Snippet:  o.Snippet,
			Position: pos,
			Date:     o.Date,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
