// Package llm implements the generation client against the Gemini REST API.
// The client maps finish reasons onto the shared error taxonomy so callers
// can branch on truncation, safety blocks and rate limits with errors.Is.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"planforge/internal/core"
	"planforge/internal/logging"
)

// Config configures the Gemini client.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
	MaxOutputTokens int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.0-flash",
		Timeout:         120 * time.Second,
		MaxRetries:      3,
		MaxOutputTokens: 2048,
	}
}

// GeminiClient implements core.LLM over the Gemini REST API.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxRetries      int
	maxOutputTokens int
	httpClient      *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a client from config, filling zero values with
// defaults.
func NewGeminiClient(cfg Config) *GeminiClient {
	def := DefaultConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	return &GeminiClient{
		apiKey:          cfg.APIKey,
		baseURL:         cfg.BaseURL,
		model:           cfg.Model,
		maxRetries:      cfg.MaxRetries,
		maxOutputTokens: cfg.MaxOutputTokens,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Available reports whether the client has a key to call with.
func (c *GeminiClient) Available() bool { return c.apiKey != "" }

// =============================================================================
// WIRE FORMAT
// =============================================================================

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate calls the model once per attempt, retrying network and quota
// failures with exponential backoff. Safety blocks and truncation are not
// retried here: the plan generator owns those policies.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini: %w: no API key", core.ErrInvalidKey)
	}

	// Each attempt is bounded by the HTTP client's timeout; the caller's
	// context bounds the retry schedule as a whole.
	startTime := time.Now()
	logging.LLMDebug("[Gemini] Generate: model=%s prompt_len=%d temp=%.2f", c.model, len(prompt), opts.Temperature)

	// Rate limiting between successive requests
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.maxOutputTokens
	}
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if strings.TrimSpace(opts.SystemPrompt) != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: opts.SystemPrompt}},
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			logging.LLM("[Gemini] retry %d/%d after %v: %v", attempt, c.maxRetries, backoff, lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini: %w: %v", core.ErrNetwork, ctx.Err())
			case <-time.After(backoff):
			}
		}

		text, err := c.doRequest(ctx, url, reqBody)
		if err == nil {
			logging.LLM("[Gemini] Generate: completed in %v response_len=%d", time.Since(startTime), len(text))
			return text, nil
		}
		if !core.Retryable(err) {
			return "", err
		}
		lastErr = err
	}
	logging.LLMError("[Gemini] Generate: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("gemini: max retries exceeded: %w", lastErr)
}

func (c *GeminiClient) doRequest(ctx context.Context, url string, reqBody geminiRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: %w: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: %w: read response: %v", core.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("gemini: %w: http 429", core.ErrRateLimit)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("gemini: %w: http %d", core.ErrInvalidKey, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("gemini: %w: http %d", core.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("gemini: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("gemini: parse response: %w", err)
	}
	if geminiResp.Error != nil {
		if geminiResp.Error.Code == 429 || geminiResp.Error.Status == "RESOURCE_EXHAUSTED" {
			return "", fmt.Errorf("gemini: %w: %s", core.ErrRateLimit, geminiResp.Error.Message)
		}
		return "", fmt.Errorf("gemini: API error: %s", geminiResp.Error.Message)
	}
	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: %w: prompt blocked (%s)", core.ErrSafetyBlocked, geminiResp.PromptFeedback.BlockReason)
	}
	if len(geminiResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: %w: no candidates returned", core.ErrNetwork)
	}

	cand := geminiResp.Candidates[0]
	var result strings.Builder
	for _, part := range cand.Content.Parts {
		result.WriteString(part.Text)
	}
	text := strings.TrimSpace(result.String())

	switch normalizeFinishReason(cand.FinishReason) {
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "", fmt.Errorf("gemini: %w: finish_reason=%s", core.ErrSafetyBlocked, cand.FinishReason)
	case "MAX_TOKENS":
		if text == "" {
			return "", fmt.Errorf("gemini: %w: empty response at token limit", core.ErrTruncated)
		}
		// Partial text at the token ceiling is returned; the truncation
		// detector downstream decides whether it needs repair.
		return text, nil
	}
	if text == "" {
		return "", fmt.Errorf("gemini: %w: empty completion", core.ErrTruncated)
	}
	return text, nil
}

// normalizeFinishReason maps both the string and legacy integer encodings of
// finish_reason onto the string names (1=STOP, 2=MAX_TOKENS, 3=SAFETY,
// 4=RECITATION).
func normalizeFinishReason(reason string) string {
	switch strings.TrimSpace(reason) {
	case "1":
		return "STOP"
	case "2":
		return "MAX_TOKENS"
	case "3":
		return "SAFETY"
	case "4":
		return "RECITATION"
	}
	return strings.ToUpper(strings.TrimSpace(reason))
}
