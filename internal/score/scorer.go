// Package score assigns quality scores to chunks. Scoring is a pure function
// of the chunk text, its metadata and an optional query; no I/O.
package score

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"planforge/internal/logging"
	"planforge/internal/types"
)

// Scorer computes per-chunk scores and filters low scorers.
type Scorer struct {
	minScore float64
}

// New returns a Scorer. minScore <= 0 takes the default 0.3.
func New(minScore float64) *Scorer {
	if minScore <= 0 {
		minScore = 0.3
	}
	return &Scorer{minScore: minScore}
}

// MinScore returns the drop threshold.
func (s *Scorer) MinScore() float64 { return s.minScore }

// Score computes all five dimensions plus the weighted total.
func (s *Scorer) Score(text string, meta types.ChunkMeta, query string) types.Score {
	sc := types.Score{
		Freshness:   freshness(meta.RetrievedAt),
		Credibility: credibility(meta.Domain, meta.URL),
		Quality:     quality(text),
		Relevance:   relevance(text, query),
		Readability: readability(text),
	}
	sc.Total = sc.WeightedTotal()
	return sc
}

// Apply scores every chunk in place, drops chunks below the minimum total and
// returns the survivors sorted descending by total. The sort is stable so
// equal scores keep their pipeline order.
func (s *Scorer) Apply(chunks []types.Chunk, query string) []types.Chunk {
	kept := make([]types.Chunk, 0, len(chunks))
	for i := range chunks {
		sc := s.Score(chunks[i].Text, chunks[i].Meta, query)
		chunks[i].Score = &sc
		if sc.Total >= s.minScore {
			kept = append(kept, chunks[i])
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score.Total > kept[j].Score.Total
	})
	logging.RetrievalDebug("scorer: kept %d of %d chunks (min %.2f)", len(kept), len(chunks), s.minScore)
	return kept
}

// =============================================================================
// DIMENSIONS
// =============================================================================

// freshness maps content age to a score band. Unknown timestamps score 0.5.
func freshness(retrievedAt time.Time) float64 {
	if retrievedAt.IsZero() {
		return 0.5
	}
	age := time.Since(retrievedAt)
	switch {
	case age < 7*24*time.Hour:
		return 1.0
	case age < 30*24*time.Hour:
		return 0.8
	case age < 90*24*time.Hour:
		return 0.6
	case age < 365*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

var trustedDomains = []string{
	"reuters.com", "bloomberg.com", "wsj.com", "ft.com", "sec.gov",
	"wikipedia.org", "linkedin.com", "crunchbase.com", "forbes.com",
	"businesswire.com", "prnewswire.com",
}

var blogPlatforms = []string{
	"medium.com", "blogspot.com", "wordpress.com", "substack.com",
	"tumblr.com", "quora.com", "reddit.com",
}

// credibility scores the source domain. Government and academic domains rank
// with the trusted press; blog platforms rank low; everything else middles.
func credibility(domain, rawURL string) float64 {
	d := strings.ToLower(domain)
	if d == "" {
		d = strings.ToLower(rawURL)
	}
	if d == "" {
		return 0.5
	}
	for _, t := range trustedDomains {
		if strings.Contains(d, t) {
			return 0.9
		}
	}
	if strings.HasSuffix(d, ".gov") || strings.HasSuffix(d, ".edu") ||
		strings.Contains(d, ".gov/") || strings.Contains(d, ".edu/") {
		return 1.0
	}
	for _, b := range blogPlatforms {
		if strings.Contains(d, b) {
			return 0.3
		}
	}
	if strings.Contains(d, ".com") || strings.Contains(d, ".net") || strings.Contains(d, ".org") {
		return 0.6
	}
	return 0.5
}

var lowQualityPatterns = []string{
	"click here", "subscribe", "advertisement", "sponsored", "sign up now",
	"buy now", "limited time", "cookie policy", "accept all cookies",
}

// quality starts at 1.0 and applies additive penalties and bonuses, clamped
// to [0,1].
func quality(text string) float64 {
	q := 1.0
	lower := strings.ToLower(text)
	for _, p := range lowQualityPatterns {
		if strings.Contains(lower, p) {
			q -= 0.1
		}
	}

	words := strings.Fields(text)
	if len(words) < 50 {
		q -= 0.3
	}
	if len(text) > 50000 {
		q -= 0.2
	}
	if strings.Count(text, "\n\n") >= 2 {
		q += 0.1
	}
	if len(words) > 0 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[strings.ToLower(w)] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < 0.3 {
			q -= 0.3
		}
	}
	return clamp(q)
}

// relevance is the fraction of significant query words (>= 4 chars) present
// in the text, scaled by 1.2 and capped at 1.0. No query scores neutral.
func relevance(text, query string) float64 {
	if strings.TrimSpace(query) == "" {
		return 0.5
	}
	lower := strings.ToLower(text)
	var total, hits int
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) < 4 {
			continue
		}
		total++
		if strings.Contains(lower, w) {
			hits++
		}
	}
	if total == 0 {
		return 0.5
	}
	r := float64(hits) / float64(total) * 1.2
	return clamp(r)
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+|[.!?]+$`)

// readability averages a sentence-length band score with the fraction of
// sentences that end in terminal punctuation.
func readability(text string) float64 {
	sentences := splitSentencesForReadability(text)
	if len(sentences) == 0 {
		return 0.4
	}
	totalWords := 0
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	avg := float64(totalWords) / float64(len(sentences))

	var lengthScore float64
	switch {
	case avg >= 10 && avg <= 25:
		lengthScore = 1.0
	case (avg >= 5 && avg < 10) || (avg > 25 && avg <= 35):
		lengthScore = 0.7
	default:
		lengthScore = 0.4
	}

	// Count terminator-ended lines against total non-empty lines.
	terminated := 0
	frags := 0
	for _, f := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' }) {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		frags++
		if strings.HasSuffix(f, ".") || strings.HasSuffix(f, "!") || strings.HasSuffix(f, "?") {
			terminated++
		}
	}
	termScore := 0.0
	if frags > 0 {
		termScore = float64(terminated) / float64(frags)
	}
	return (lengthScore + termScore) / 2
}

func splitSentencesForReadability(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
