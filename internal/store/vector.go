package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"planforge/internal/core"
	"planforge/internal/embedding"
	"planforge/internal/logging"
)

// SQLiteVectorStore implements core.VectorStore. Embeddings are serialized as
// JSON alongside the chunk text and its flat string metadata; queries embed
// the text and rank every candidate row by cosine similarity.
type SQLiteVectorStore struct {
	db     *sql.DB
	engine core.EmbeddingModel
	mu     sync.RWMutex
}

// NewSQLiteVectorStore opens or creates the vector database at path.
func NewSQLiteVectorStore(path string, engine core.EmbeddingModel) (*SQLiteVectorStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteVectorStore")
	defer timer.Stop()

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_created ON chunks(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	logging.Store("vector store ready at %s", path)
	return &SQLiteVectorStore{db: db, engine: engine}, nil
}

// Add embeds and persists the documents. Documents with empty text are
// skipped; an empty batch is a no-op.
func (s *SQLiteVectorStore) Add(ctx context.Context, docs []core.Document) error {
	kept := make([]core.Document, 0, len(docs))
	for _, d := range docs {
		if d.Text != "" && d.ID != "" {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	texts := make([]string, len(kept))
	for i, d := range kept {
		texts[i] = d.Text
	}
	vectors, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("store: embed batch: %w", err)
	}
	if len(vectors) != len(kept) {
		return fmt.Errorf("store: embedding count mismatch: %d vectors for %d documents", len(vectors), len(kept))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO chunks (id, content, embedding, metadata) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range kept {
		embJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("store: serialize embedding: %w", err)
		}
		metaJSON, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("store: serialize metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Text, string(embJSON), string(metaJSON)); err != nil {
			return fmt.Errorf("store: insert chunk %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	logging.Store("stored %d chunks", len(kept))
	return nil
}

// Query embeds text and returns the topK most similar documents, optionally
// restricted to rows whose metadata matches every key in where.
func (s *SQLiteVectorStore) Query(ctx context.Context, text string, topK int, where map[string]string) ([]core.Document, error) {
	if topK <= 0 {
		topK = 10
	}

	queryVec, err := s.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("store: embed query: %w", err)
	}

	timer := logging.StartTimer(logging.CategoryStore, "VectorQuery")
	defer timer.StopWithThreshold(time.Second)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, content, embedding, metadata FROM chunks WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("store: query chunks: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		doc        core.Document
		similarity float64
	}
	var candidates []candidate

	for rows.Next() {
		var id, content, embJSON, metaJSON string
		if err := rows.Scan(&id, &content, &embJSON, &metaJSON); err != nil {
			logging.StoreDebug("skipping unreadable row: %v", err)
			continue
		}
		meta, ok := decodeMetadata(metaJSON)
		if !ok || !matchesWhere(meta, where) {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			logging.StoreDebug("skipping row %s with bad embedding: %v", id, err)
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			doc:        core.Document{ID: id, Text: content, Metadata: meta, Score: sim},
			similarity: sim,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan chunks: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]core.Document, len(candidates))
	for i, c := range candidates {
		results[i] = c.doc
	}
	return results, nil
}

// GetByMetadata returns up to limit documents whose metadata matches every
// key in where, newest first. A limit of zero or less means no limit.
func (s *SQLiteVectorStore) GetByMetadata(ctx context.Context, where map[string]string, limit int) ([]core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, content, metadata FROM chunks ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("store: query chunks: %w", err)
	}
	defer rows.Close()

	var results []core.Document
	for rows.Next() {
		var id, content, metaJSON string
		if err := rows.Scan(&id, &content, &metaJSON); err != nil {
			continue
		}
		meta, ok := decodeMetadata(metaJSON)
		if !ok || !matchesWhere(meta, where) {
			continue
		}
		results = append(results, core.Document{ID: id, Text: content, Metadata: meta})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

// Delete removes every document whose metadata matches where. A nil or empty
// filter removes nothing.
func (s *SQLiteVectorStore) Delete(ctx context.Context, where map[string]string) error {
	if len(where) == 0 {
		return nil
	}

	matches, err := s.GetByMetadata(ctx, where, 0)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]interface{}, len(matches))
	for i, d := range matches {
		ids[i] = d.ID
	}
	query := fmt.Sprintf("DELETE FROM chunks WHERE id IN (%s)", placeholderList(len(ids)))
	if _, err := s.db.ExecContext(ctx, query, ids...); err != nil {
		return fmt.Errorf("store: delete chunks: %w", err)
	}
	logging.Store("deleted %d chunks", len(matches))
	return nil
}

// Count returns the number of stored documents.
func (s *SQLiteVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count chunks: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func decodeMetadata(metaJSON string) (map[string]string, bool) {
	if metaJSON == "" || metaJSON == "null" {
		return map[string]string{}, true
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, false
	}
	if meta == nil {
		meta = map[string]string{}
	}
	return meta, true
}

func matchesWhere(meta map[string]string, where map[string]string) bool {
	for k, v := range where {
		if meta[k] != v {
			return false
		}
	}
	return true
}
