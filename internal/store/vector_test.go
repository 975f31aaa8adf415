package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/core"
	"planforge/internal/embedding"
)

func newVectorStore(t *testing.T) *SQLiteVectorStore {
	t.Helper()
	s, err := NewSQLiteVectorStore(filepath.Join(t.TempDir(), "vectors.db"), embedding.NewLocalEngine(64))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDocs() []core.Document {
	return []core.Document{
		{ID: "c1", Text: "Acme revenue reached 120 million dollars last year", Metadata: map[string]string{"user_id": "u1", "company": "acme", "source_kind": "web_search"}},
		{ID: "c2", Text: "Acme employs about 500 people across three offices", Metadata: map[string]string{"user_id": "u1", "company": "acme", "source_kind": "web_search"}},
		{ID: "c3", Text: "Gardening tips for growing tomato plants in summer", Metadata: map[string]string{"user_id": "u2", "company": "gardenco", "source_kind": "uploaded_document"}},
	}
}

func TestVectorStoreAddAndCount(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, sampleDocs()))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestVectorStoreAddSkipsEmpty(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []core.Document{{ID: "x", Text: ""}, {ID: "", Text: "orphan"}}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Add(ctx, nil))
}

func TestVectorStoreQueryRanksBySimilarity(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, sampleDocs()))

	got, err := s.Query(ctx, "what is Acme revenue", 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestVectorStoreQueryWhereFilter(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, sampleDocs()))

	got, err := s.Query(ctx, "company facts", 10, map[string]string{"user_id": "u2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c3", got[0].ID)
}

func TestVectorStoreGetByMetadata(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, sampleDocs()))

	got, err := s.GetByMetadata(ctx, map[string]string{"user_id": "u1", "company": "acme"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.GetByMetadata(ctx, map[string]string{"user_id": "u1"}, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.GetByMetadata(ctx, map[string]string{"user_id": "nobody"}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVectorStoreDelete(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, sampleDocs()))

	require.NoError(t, s.Delete(ctx, map[string]string{"company": "acme"}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, nil), "empty filter deletes nothing")
	n, _ = s.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestVectorStoreAddReplacesByID(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []core.Document{{ID: "c1", Text: "first version", Metadata: map[string]string{"v": "1"}}}))
	require.NoError(t, s.Add(ctx, []core.Document{{ID: "c1", Text: "second version", Metadata: map[string]string{"v": "2"}}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetByMetadata(ctx, map[string]string{"v": "2"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second version", got[0].Text)
}
