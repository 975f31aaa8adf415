// Package conflict reconciles factual claims across source documents. A
// conflict exists only when at least two distinct documents disagree about
// the same topic by more than the topic's significance threshold.
package conflict

import (
	"fmt"
	"strings"

	"planforge/internal/entities"
	"planforge/internal/logging"
	"planforge/internal/types"
)

// Topics examined, in emission order.
var topics = []string{"revenue", "headcount", "founded", "location"}

// Detector cross-checks documents for disagreeing facts.
type Detector struct {
	extractor *entities.Extractor
}

// New returns a Detector.
func New() *Detector {
	return &Detector{extractor: entities.New()}
}

// document is the per-source view the detector works over.
type document struct {
	id     string
	kind   types.SourceKind
	origin string
	text   string
}

// Detect groups chunks by document and compares per-topic extractions. Input
// from a single document short-circuits to nil: no cross-document conflict is
// possible.
func (d *Detector) Detect(chunks []types.Chunk) []types.Conflict {
	docs := groupByDocument(chunks)
	if len(docs) < 2 {
		return nil
	}

	var conflicts []types.Conflict
	for _, topic := range topics {
		if c := d.detectTopic(topic, docs); c != nil {
			conflicts = append(conflicts, *c)
		}
	}
	if len(conflicts) > 0 {
		logging.Conflict("detected %d conflicts across %d documents", len(conflicts), len(docs))
	}
	return conflicts
}

func (d *Detector) detectTopic(topic string, docs []document) *types.Conflict {
	type claim struct {
		doc     document
		display string
		numeric float64
	}
	var claims []claim

	for _, doc := range docs {
		switch topic {
		case "revenue":
			if v := d.extractor.RevenueValue(doc.text); v > 0 {
				claims = append(claims, claim{doc, d.extractor.Revenue(doc.text), v})
			}
		case "headcount":
			if n := d.extractor.HeadcountValue(doc.text); n > 0 {
				claims = append(claims, claim{doc, fmt.Sprintf("%d employees", n), float64(n)})
			}
		case "founded":
			if y := d.extractor.FoundedYear(doc.text); y > 0 {
				claims = append(claims, claim{doc, fmt.Sprintf("%d", y), float64(y)})
			}
		case "location":
			if loc := d.extractor.Location(doc.text); loc != "" {
				claims = append(claims, claim{doc, loc, 0})
			}
		}
	}
	if len(claims) < 2 {
		return nil
	}

	significant := false
	for i := 0; i < len(claims) && !significant; i++ {
		for j := i + 1; j < len(claims); j++ {
			if significantlyDifferent(topic, claims[i].display, claims[j].display, claims[i].numeric, claims[j].numeric) {
				significant = true
				break
			}
		}
	}
	if !significant {
		return nil
	}

	c := &types.Conflict{Topic: topic, Severity: severityOf(topic)}
	seenValues := map[string]bool{}
	seenDocs := map[string]bool{}
	for _, cl := range claims {
		norm := strings.ToLower(strings.TrimSpace(cl.display))
		if !seenValues[norm] {
			seenValues[norm] = true
			c.Values = append(c.Values, cl.display)
		}
		seenDocs[cl.doc.id] = true
		c.Sources = append(c.Sources, types.ConflictSource{
			Value:      cl.display,
			DocumentID: cl.doc.id,
			SourceKind: cl.doc.kind,
			Origin:     cl.doc.origin,
		})
	}
	// A real conflict needs distinct values from distinct documents.
	if len(c.Values) < 2 || len(seenDocs) < 2 {
		return nil
	}
	return c
}

// significantlyDifferent applies the per-topic threshold: revenue >10% of the
// smaller, headcount >15% of the smaller, founded years apart by >2,
// location any distinct normalized string.
func significantlyDifferent(topic, a, b string, av, bv float64) bool {
	switch topic {
	case "revenue":
		return relativeDiff(av, bv) > 0.10
	case "headcount":
		return relativeDiff(av, bv) > 0.15
	case "founded":
		diff := av - bv
		if diff < 0 {
			diff = -diff
		}
		return diff > 2
	case "location":
		return normalizeLocation(a) != normalizeLocation(b)
	}
	return false
}

func relativeDiff(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	smaller, larger := a, b
	if b < a {
		smaller, larger = b, a
	}
	return (larger - smaller) / smaller
}

func normalizeLocation(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;")
	return strings.Join(strings.Fields(s), " ")
}

func severityOf(topic string) types.Severity {
	switch topic {
	case "revenue", "headcount", "founded":
		return types.SeverityHigh
	}
	return types.SeverityMedium
}

// groupByDocument buckets chunks by their origin document, preserving first-
// seen order. Chunks with no file or URL each become their own document.
func groupByDocument(chunks []types.Chunk) []document {
	var docs []document
	index := map[string]int{}
	for i, ch := range chunks {
		id := ch.Meta.DocumentID()
		if id == "" {
			id = fmt.Sprintf("doc-%d", i)
		}
		if at, ok := index[id]; ok {
			docs[at].text += "\n" + ch.Text
			continue
		}
		origin := ch.Meta.SourceFile
		if origin == "" {
			origin = ch.Meta.URL
		}
		index[id] = len(docs)
		docs = append(docs, document{
			id:     id,
			kind:   ch.Meta.SourceKind,
			origin: origin,
			text:   ch.Text,
		})
	}
	return docs
}

// AllUploaded reports whether every conflicting source is an uploaded
// document, in which case the agent auto-resolves by trusting the uploads.
func AllUploaded(conflicts []types.Conflict) bool {
	if len(conflicts) == 0 {
		return false
	}
	for _, c := range conflicts {
		for _, s := range c.Sources {
			if s.SourceKind != types.SourceUploadedDocument {
				return false
			}
		}
	}
	return true
}

// HighSeverity returns up to max high-severity conflicts, preserving order.
func HighSeverity(conflicts []types.Conflict, max int) []types.Conflict {
	var out []types.Conflict
	for _, c := range conflicts {
		if c.Severity == types.SeverityHigh {
			out = append(out, c)
			if len(out) >= max {
				break
			}
		}
	}
	return out
}
