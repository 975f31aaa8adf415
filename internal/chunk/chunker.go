// Package chunk splits clean text into ordered, overlapping chunks sized for
// embedding and scoring. Splitting tries progressively cruder strategies:
// paragraph boundaries first, then sentence boundaries, then fixed windows
// with word-boundary breaks. The first strategy whose largest piece stays
// within 1.5x the target size wins.
package chunk

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"planforge/internal/logging"
	"planforge/internal/types"
)

// Options tunes the chunker. Zero values take the defaults below.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 100
	defaultMinChunkSize = 200
)

func (o *Options) fill() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = defaultChunkOverlap
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = defaultMinChunkSize
	}
}

// Chunker produces ordered chunk sequences from clean text.
type Chunker struct {
	opts Options
}

// New returns a Chunker with the given options.
func New(opts Options) *Chunker {
	opts.fill()
	return &Chunker{opts: opts}
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)
var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// Split chunks text, stamping each chunk with the caller's base metadata plus
// chunk_index, total_chunks and size counts. Chunks shorter than the minimum
// are dropped after assembly; the survivors are renumbered contiguously.
func (c *Chunker) Split(text string, base types.ChunkMeta) []types.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieces := c.splitPieces(text)
	pieces = c.applyOverlap(pieces)

	var kept []string
	for _, p := range pieces {
		if len(p) >= c.opts.MinChunkSize {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 && len(text) >= c.opts.MinChunkSize {
		// Everything fragmented below the minimum: keep the whole text as one chunk.
		kept = []string{text}
	}

	now := time.Now()
	chunks := make([]types.Chunk, 0, len(kept))
	for i, p := range kept {
		meta := base
		meta.ChunkIndex = i
		meta.TotalChunks = len(kept)
		meta.CharCount = len(p)
		meta.WordCount = len(strings.Fields(p))
		if meta.RetrievedAt.IsZero() {
			meta.RetrievedAt = now
		}
		chunks = append(chunks, types.Chunk{
			ID:   uuid.NewString(),
			Text: p,
			Meta: meta,
		})
	}
	logging.RetrievalDebug("chunker: %d chars -> %d chunks", len(text), len(chunks))
	return chunks
}

// splitPieces runs the strategy cascade.
func (c *Chunker) splitPieces(text string) []string {
	limit := c.opts.ChunkSize + c.opts.ChunkSize/2

	if pieces := c.groupUnits(splitParagraphs(text)); maxLen(pieces) <= limit {
		return pieces
	}
	if pieces := c.groupUnits(splitSentences(text)); maxLen(pieces) <= limit {
		return pieces
	}
	return c.fixedWindows(text)
}

// groupUnits packs consecutive units into pieces close to ChunkSize without
// splitting any unit.
func (c *Chunker) groupUnits(units []string) []string {
	var pieces []string
	var cur strings.Builder
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(u) > c.opts.ChunkSize {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(u)
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}
	return pieces
}

// fixedWindows slices the text into ChunkSize windows, backing up to the last
// word boundary inside each window.
func (c *Chunker) fixedWindows(text string) []string {
	var pieces []string
	size := c.opts.ChunkSize
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			pieces = append(pieces, strings.TrimSpace(text[start:]))
			break
		}
		cut := strings.LastIndexByte(text[start:end], ' ')
		if cut <= 0 {
			cut = size
		}
		pieces = append(pieces, strings.TrimSpace(text[start:start+cut]))
		start += cut
		for start < len(text) && text[start] == ' ' {
			start++
		}
	}
	return pieces
}

// applyOverlap prefixes each piece after the first with the tail of its
// predecessor, breaking the carried tail at a word boundary.
func (c *Chunker) applyOverlap(pieces []string) []string {
	if c.opts.ChunkOverlap <= 0 || len(pieces) < 2 {
		return pieces
	}
	out := make([]string, len(pieces))
	out[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		tail := pieces[i-1]
		if len(tail) > c.opts.ChunkOverlap {
			tail = tail[len(tail)-c.opts.ChunkOverlap:]
			if sp := strings.IndexByte(tail, ' '); sp >= 0 {
				tail = tail[sp+1:]
			}
		}
		out[i] = strings.TrimSpace(tail + " " + pieces[i])
	}
	return out
}

func splitParagraphs(text string) []string {
	return paragraphSplit.Split(text, -1)
}

// splitSentences splits on sentence terminators, keeping the terminator with
// its sentence.
func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	return strings.Split(marked, "\x00")
}

func maxLen(pieces []string) int {
	m := 0
	for _, p := range pieces {
		if len(p) > m {
			m = len(p)
		}
	}
	if len(pieces) == 0 {
		return 1 << 30
	}
	return m
}
