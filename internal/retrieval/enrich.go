package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"planforge/internal/core"
	"planforge/internal/logging"
	"planforge/internal/types"
)

const (
	defaultConfidence = 0.8
	previewLength     = 150
	breakerThreshold  = 3
)

type enrichment struct {
	Index      int      `json:"index"`
	Confidence float64  `json:"confidence"`
	Summary    string   `json:"summary"`
	KeyFacts   []string `json:"key_facts"`
}

// enrich asks the LLM for a summary, key facts, and a confidence per chunk,
// in batches. Three consecutive failures trip the breaker: enrichment is
// skipped for the rest of the session and chunks pass through with the
// default confidence and no key facts.
func (p *Pipeline) enrich(ctx context.Context, session *types.Session, chunks []types.Chunk) []types.Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	if p.llm == nil || !p.llm.Available() || (session != nil && session.LLMDisabled) {
		return passthrough(chunks)
	}

	strikes := 0
	for start := 0; start < len(chunks); start += p.opts.EnrichBatchSize {
		end := start + p.opts.EnrichBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if strikes >= breakerThreshold {
			applyDefaults(batch)
			continue
		}

		if err := p.enrichBatch(ctx, batch); err != nil {
			strikes++
			logging.Get(logging.CategoryRetrieval).Warn("enrichment batch failed (strike %d/%d): %v", strikes, breakerThreshold, err)
			applyDefaults(batch)
			if strikes >= breakerThreshold && session != nil {
				session.LLMDisabled = true
				logging.Get(logging.CategoryRetrieval).Warn("enrichment disabled for session %s", session.ID)
			}
			continue
		}
		strikes = 0
	}
	return chunks
}

func (p *Pipeline) enrichBatch(ctx context.Context, batch []types.Chunk) error {
	var b strings.Builder
	b.WriteString("For each numbered snippet, return a JSON array of objects ")
	b.WriteString(`{"index": n, "confidence": 0.0-1.0, "summary": "...", "key_facts": ["..."]}. `)
	b.WriteString("Respond with the JSON array only.\n\n")
	for i, c := range batch {
		preview := c.Text
		if len(preview) > previewLength {
			preview = preview[:previewLength]
		}
		fmt.Fprintf(&b, "%d. Title: %s\n   Text: %s\n", i, c.Meta.Title, preview)
	}

	resp, err := p.llm.Generate(ctx, b.String(), core.GenerateOptions{Temperature: 0.2, MaxOutputTokens: 1024})
	if err != nil {
		return err
	}

	parsed := parseEnrichments(resp)
	if len(parsed) == 0 {
		return fmt.Errorf("retrieval: no enrichment objects in response")
	}
	for _, e := range parsed {
		if e.Index < 0 || e.Index >= len(batch) {
			continue
		}
		c := &batch[e.Index]
		c.Summary = e.Summary
		c.KeyFacts = e.KeyFacts
		c.Confidence = e.Confidence
		if c.Confidence <= 0 || c.Confidence > 1 {
			c.Confidence = defaultConfidence
		}
	}
	for i := range batch {
		if batch[i].Confidence == 0 {
			batch[i].Confidence = defaultConfidence
		}
	}
	return nil
}

func passthrough(chunks []types.Chunk) []types.Chunk {
	applyDefaults(chunks)
	return chunks
}

func applyDefaults(chunks []types.Chunk) {
	for i := range chunks {
		chunks[i].Confidence = defaultConfidence
		chunks[i].KeyFacts = nil
	}
}

// parseEnrichments pulls enrichment objects out of a model response. The
// first balanced JSON array wins; when no array unmarshals, each balanced
// object is tried individually.
func parseEnrichments(resp string) []enrichment {
	if arr := firstBalanced(resp, '[', ']'); arr != "" {
		var out []enrichment
		if err := json.Unmarshal([]byte(arr), &out); err == nil {
			return out
		}
	}

	var out []enrichment
	rest := resp
	for {
		obj := firstBalanced(rest, '{', '}')
		if obj == "" {
			break
		}
		var e enrichment
		if err := json.Unmarshal([]byte(obj), &e); err == nil {
			out = append(out, e)
		}
		idx := strings.Index(rest, obj)
		rest = rest[idx+len(obj):]
	}
	return out
}

// firstBalanced returns the first balanced open..close span, tracking string
// literals and escapes so braces inside values do not miscount.
func firstBalanced(s string, opener, closer byte) string {
	start := strings.IndexByte(s, opener)
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == opener:
			depth++
		case ch == closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func toJSONString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
