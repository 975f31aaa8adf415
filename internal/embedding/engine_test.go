package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEngineDeterministic(t *testing.T) {
	e := NewLocalEngine(768)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "Acme Corporation builds robots")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "Acme Corporation builds robots")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, 768)
	assert.Equal(t, 768, e.Dimensions())
}

func TestLocalEngineSimilarityCorrelates(t *testing.T) {
	e := NewLocalEngine(768)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "Acme revenue grew twelve percent this quarter")
	b, _ := e.Embed(ctx, "Acme revenue grew ten percent this quarter")
	c, _ := e.Embed(ctx, "unrelated gardening tips for tomato plants")

	simAB, err := CosineSimilarity(a, b)
	require.NoError(t, err)
	simAC, err := CosineSimilarity(a, c)
	require.NoError(t, err)
	assert.Greater(t, simAB, simAC)
}

func TestLocalEngineBatch(t *testing.T) {
	e := NewLocalEngine(64)
	got, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, v := range got {
		assert.Len(t, v, 64)
	}
}

func TestCosineSimilarity(t *testing.T) {
	same, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-9)

	ortho, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, ortho, 1e-9)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestNewEngineKeylessFallsBackToLocal(t *testing.T) {
	eng, err := NewEngine(Config{Provider: "genai", Dimensions: 128})
	require.NoError(t, err)
	_, ok := eng.(*LocalEngine)
	assert.True(t, ok)
	assert.Equal(t, 128, eng.Dimensions())
}

func TestNewEngineUnknownProvider(t *testing.T) {
	_, err := NewEngine(Config{Provider: "bogus"})
	assert.Error(t, err)
}

func TestNewGenAIEngineNormalizesTaskType(t *testing.T) {
	e, err := NewGenAIEngine("test-key", "", "BOGUS_TASK")
	require.NoError(t, err)
	assert.Equal(t, taskRetrievalDocument, e.taskType)
	assert.Equal(t, "genai:gemini-embedding-001", e.Name())

	e, err = NewGenAIEngine("test-key", "gemini-embedding-001", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	assert.Equal(t, taskRetrievalQuery, e.taskType)
}

func TestNewGenAIEngineRequiresKey(t *testing.T) {
	_, err := NewGenAIEngine("", "", "")
	assert.Error(t, err)
}
