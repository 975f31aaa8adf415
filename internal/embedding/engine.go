// Package embedding provides vector embedding generation for semantic search
// over research chunks. The cloud backend is Google GenAI; a deterministic
// local engine backs tests and keyless operation.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"planforge/internal/core"
	"planforge/internal/logging"
)

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "genai" or "local"
	Provider string `json:"provider"`

	APIKey string `json:"api_key"`
	Model  string `json:"model"` // Default: "gemini-embedding-001"

	// TaskType for GenAI: "SEMANTIC_SIMILARITY", "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT"
	TaskType string `json:"task_type"`

	Dimensions int `json:"dimensions"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:   "genai",
		Model:      "gemini-embedding-001",
		TaskType:   "RETRIEVAL_DOCUMENT",
		Dimensions: 768,
	}
}

// NewEngine creates an embedding engine based on configuration. A missing API
// key with the genai provider degrades to the local engine so the pipeline
// can still store and query chunks.
func NewEngine(cfg Config) (core.EmbeddingModel, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 768
	}

	switch cfg.Provider {
	case "", "genai":
		if cfg.APIKey == "" {
			logging.Embedding("no GenAI API key, using local deterministic engine")
			return NewLocalEngine(cfg.Dimensions), nil
		}
		logging.Embedding("initializing GenAI embedding engine: model=%s task_type=%s", cfg.Model, cfg.TaskType)
		return NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType)
	case "local":
		return NewLocalEngine(cfg.Dimensions), nil
	}
	return nil, fmt.Errorf("%w: unsupported embedding provider %q", core.ErrConfig, cfg.Provider)
}

// =============================================================================
// LOCAL DETERMINISTIC ENGINE
// =============================================================================

// LocalEngine produces deterministic pseudo-embeddings from token hashes.
// Quality is far below a learned model but similarity of overlapping texts
// still correlates, which is enough for keyless and test operation.
type LocalEngine struct {
	dims int
}

// NewLocalEngine returns a LocalEngine with the given dimensionality.
func NewLocalEngine(dims int) *LocalEngine {
	if dims <= 0 {
		dims = 768
	}
	return &LocalEngine{dims: dims}
}

// Embed hashes words into a normalized bag-of-words vector.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	h := fnv.New32a()
	word := make([]byte, 0, 32)
	flush := func() {
		if len(word) == 0 {
			return
		}
		h.Reset()
		h.Write(word)
		vec[int(h.Sum32())%e.dims] += 1
		word = word[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ' ' || c == '\n' || c == '\t' || c == '.' || c == ',' {
			flush()
			continue
		}
		word = append(word, c|0x20)
	}
	flush()

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured dimensionality.
func (e *LocalEngine) Dimensions() int { return e.dims }

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector dimension mismatch: %d != %d", core.ErrInvalidInput, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
