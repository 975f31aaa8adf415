package chunk

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/types"
)

func meta() types.ChunkMeta {
	return types.ChunkMeta{
		URL:        "https://example.com",
		Company:    "Acme",
		SourceKind: types.SourceWebSearch,
	}
}

func sentence(n int) string {
	return "This sentence number " + strings.Repeat("x", n%7) + " talks about the business performance of the company. "
}

func TestSplitEmpty(t *testing.T) {
	c := New(Options{})
	assert.Nil(t, c.Split("   ", meta()))
}

func TestSplitSmallTextSingleChunk(t *testing.T) {
	c := New(Options{MinChunkSize: 50})
	text := strings.TrimSpace(sentence(1) + sentence(2) + sentence(3))
	chunks := c.Split(text, meta())
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Meta.ChunkIndex)
	assert.Equal(t, 1, chunks[0].Meta.TotalChunks)
	assert.Equal(t, len(chunks[0].Text), chunks[0].Meta.CharCount)
	assert.NotEmpty(t, chunks[0].ID)
	assert.Equal(t, "Acme", chunks[0].Meta.Company)
}

func TestSplitParagraphStrategy(t *testing.T) {
	var paras []string
	for i := 0; i < 4; i++ {
		paras = append(paras, strings.Repeat(sentence(i), 6))
	}
	text := strings.Join(paras, "\n\n")

	c := New(Options{ChunkSize: 800, ChunkOverlap: 0, MinChunkSize: 100})
	chunks := c.Split(text, meta())
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 1200, "piece exceeds 1.5x chunk size")
		assert.GreaterOrEqual(t, len(ch.Text), 100)
	}
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Meta.ChunkIndex)
		assert.Equal(t, len(chunks), ch.Meta.TotalChunks)
	}
}

func TestSplitZeroOverlapConcatenationIsPrefix(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat(sentence(3), 40))
	c := New(Options{ChunkSize: 400, ChunkOverlap: 0, MinChunkSize: 10})
	chunks := c.Split(text, meta())
	require.NotEmpty(t, chunks)

	var parts []string
	for _, ch := range chunks {
		parts = append(parts, ch.Text)
	}
	collapse := func(s string) string {
		return regexp.MustCompile(`\s+`).ReplaceAllString(s, " ")
	}
	joined := collapse(strings.Join(parts, " "))
	assert.True(t, strings.HasPrefix(collapse(text), joined) || joined == collapse(text),
		"concatenation must be a prefix of the input modulo whitespace")
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat(sentence(5), 40))
	c := New(Options{ChunkSize: 400, ChunkOverlap: 80, MinChunkSize: 10})
	chunks := c.Split(text, meta())
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		// Some suffix of the previous chunk appears at the head of this one.
		prev := chunks[i-1].Text
		tail := prev[len(prev)-20:]
		assert.Contains(t, chunks[i].Text, strings.TrimSpace(tail))
	}
}

func TestSplitDropsTinyFragments(t *testing.T) {
	text := "tiny\n\n" + strings.Repeat(sentence(2), 6) + "\n\nalso tiny"
	c := New(Options{ChunkSize: 800, ChunkOverlap: 0, MinChunkSize: 200})
	chunks := c.Split(text, meta())
	for _, ch := range chunks {
		assert.GreaterOrEqual(t, len(ch.Text), 200)
	}
}

func TestFixedWindowsBreakAtWordBoundary(t *testing.T) {
	words := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 200))
	c := New(Options{ChunkSize: 100, ChunkOverlap: 0, MinChunkSize: 10})
	pieces := c.fixedWindows(words)
	require.NotEmpty(t, pieces)
	for _, p := range pieces[:len(pieces)-1] {
		assert.LessOrEqual(t, len(p), 100)
		assert.False(t, strings.HasSuffix(p, "alph"), "cut mid-word")
	}
}

func TestSplitSentencesKeepsTerminators(t *testing.T) {
	got := splitSentences("One. Two! Three? Four")
	require.Len(t, got, 4)
	assert.Equal(t, "One.", got[0])
	assert.Equal(t, "Two!", got[1])
	assert.Equal(t, "Three?", got[2])
	assert.Equal(t, "Four", got[3])
}
