// Package preprocess normalizes raw scraped content (HTML, markdown or plain
// text) into clean prose ready for chunking. HTML goes through a
// readability-style main-content heuristic; markdown is de-syntaxed; all text
// is stripped of URLs, tracking parameters and noise before whitespace
// normalization.
package preprocess

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"planforge/internal/core"
	"planforge/internal/logging"
)

// ContentKind tells the preprocessor how to interpret raw input.
type ContentKind string

const (
	KindHTML     ContentKind = "html"
	KindMarkdown ContentKind = "markdown"
	KindText     ContentKind = "text"
)

// Metadata describes the processed text.
type Metadata struct {
	URL         string    `json:"url,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	Language    string    `json:"language"`
	WordCount   int       `json:"word_count"`
	CharCount   int       `json:"char_count"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Preprocessor turns raw scraped content into normalized clean text.
type Preprocessor struct {
	minTextLength int
}

// New returns a Preprocessor. minTextLength below which output is emptied
// defaults to 100 when <= 0.
func New(minTextLength int) *Preprocessor {
	if minTextLength <= 0 {
		minTextLength = 100
	}
	return &Preprocessor{minTextLength: minTextLength}
}

// Process converts raw content into clean text plus metadata. Empty raw
// content is an input error. Content that normalizes to less than the minimum
// length returns empty text with no error: too short to be useful, but not a
// failure.
func (p *Preprocessor) Process(raw string, kind ContentKind, sourceURL string) (string, Metadata, error) {
	if strings.TrimSpace(raw) == "" {
		return "", Metadata{}, fmt.Errorf("preprocess: empty content: %w", core.ErrInvalidInput)
	}

	var text string
	switch kind {
	case KindHTML:
		text = extractMainContent(raw)
	case KindMarkdown:
		text = stripMarkdown(raw)
	default:
		text = raw
	}

	text = Normalize(text)

	meta := Metadata{
		URL:         sourceURL,
		Domain:      domainOf(sourceURL),
		Language:    detectLanguage(text),
		ProcessedAt: time.Now(),
	}

	if len(text) < p.minTextLength {
		logging.RetrievalDebug("preprocess: content below minimum length (%d < %d), dropping", len(text), p.minTextLength)
		return "", meta, nil
	}

	meta.CharCount = len(text)
	meta.WordCount = len(strings.Fields(text))
	return text, meta, nil
}

// =============================================================================
// HTML EXTRACTION
// =============================================================================

var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"aside": true, "header": true, "noscript": true, "iframe": true,
	"form": true, "button": true, "svg": true,
}

var contentAttrHint = regexp.MustCompile(`(?i)\b(content|article|post|body|main|text|story)\b`)

// extractMainContent finds the most content-bearing region of an HTML page.
// Preference order: <main>, <article>, containers with content-named
// class/id attributes, then the whole body.
func extractMainContent(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// Not parseable as HTML: fall back to tag stripping via text walk
		// of whatever partial tree exists, else raw.
		return raw
	}

	if n := findFirst(doc, "main"); n != nil {
		if t := textContent(n); len(t) > 200 {
			return t
		}
	}
	if n := findFirst(doc, "article"); n != nil {
		if t := textContent(n); len(t) > 200 {
			return t
		}
	}
	if n := findContentContainer(doc); n != nil {
		if t := textContent(n); len(t) > 200 {
			return t
		}
	}
	if body := findFirst(doc, "body"); body != nil {
		return textContent(body)
	}
	return textContent(doc)
}

func findFirst(doc *html.Node, tag string) *html.Node {
	var found *html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return found
}

// findContentContainer returns the largest div/section whose class or id
// looks content-related.
func findContentContainer(doc *html.Node) *html.Node {
	var best *html.Node
	bestLen := 0
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "div" || n.Data == "section") {
			for _, a := range n.Attr {
				if (a.Key == "class" || a.Key == "id") && contentAttrHint.MatchString(a.Val) {
					if l := len(textContent(n)); l > bestLen {
						best, bestLen = n, l
					}
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return best
}

// textContent extracts visible text, skipping chrome elements and inserting
// paragraph breaks after block-level elements.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && skipTags[node.Data] {
			return
		}
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "div", "section", "article", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				sb.WriteString("\n\n")
			}
		}
	}
	traverse(n)
	return strings.TrimSpace(sb.String())
}

// =============================================================================
// MARKDOWN STRIPPING
// =============================================================================

var (
	mdCodeBlock = regexp.MustCompile("(?s)```.*?```")
	mdInlineCode = regexp.MustCompile("`([^`]*)`")
	mdHeader    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdImage     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdBold      = regexp.MustCompile(`(\*\*|__)(.*?)(\*\*|__)`)
	mdItalic    = regexp.MustCompile(`(\*|_)([^*_]+)(\*|_)`)
	mdHRule     = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdListMarker = regexp.MustCompile(`(?m)^\s*[-*+]\s+|^\s*\d+\.\s+`)
)

// stripMarkdown reduces markdown to plain prose. Links reduce to their anchor
// text; code blocks and images are removed entirely.
func stripMarkdown(raw string) string {
	s := mdCodeBlock.ReplaceAllString(raw, "")
	s = mdImage.ReplaceAllString(s, "")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdHeader.ReplaceAllString(s, "")
	s = mdBold.ReplaceAllString(s, "$2")
	s = mdItalic.ReplaceAllString(s, "$2")
	s = mdHRule.ReplaceAllString(s, "")
	s = mdBlockquote.ReplaceAllString(s, "")
	s = mdListMarker.ReplaceAllString(s, "")
	return s
}

// =============================================================================
// NORMALIZATION
// =============================================================================

var (
	reFullURL     = regexp.MustCompile(`https?://\S+`)
	reWWWURL      = regexp.MustCompile(`\bwww\.\S+`)
	reProtoRel    = regexp.MustCompile(`(^|\s)//[\w.\-]+\S*`)
	reQueryString = regexp.MustCompile(`\?\S+`)
	reTrackParam  = regexp.MustCompile(`\b(?:utm_\w+|ref|rut|uddg|source|campaign|medium)=\S+`)
	reHexID       = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
	rePctEncoded  = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	reSpaces      = regexp.MustCompile(`[ \t]+`)
	reManyBreaks  = regexp.MustCompile(`\n{3,}`)
	reSpacedBreak = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

// Normalize strips URLs, tracking noise and redundant whitespace. It is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil && !rePctEncoded.MatchString(decoded) {
		s = decoded
	}
	s = reFullURL.ReplaceAllString(s, "")
	s = reWWWURL.ReplaceAllString(s, "")
	s = reProtoRel.ReplaceAllString(s, "$1")
	s = reTrackParam.ReplaceAllString(s, "")
	s = reQueryString.ReplaceAllString(s, "")
	s = reHexID.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	s = reSpacedBreak.ReplaceAllString(s, "\n")
	s = reManyBreaks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// =============================================================================
// LANGUAGE DETECTION
// =============================================================================

var langStopwords = map[string][]string{
	"en": {" the ", " and ", " of ", " to ", " in ", " is ", " that "},
	"es": {" el ", " la ", " los ", " que ", " de ", " y "},
	"fr": {" le ", " la ", " les ", " des ", " est ", " une "},
	"de": {" der ", " die ", " das ", " und ", " ist ", " nicht "},
}

// detectLanguage returns a 2-letter code from stopword frequency, or
// "unknown" when no language clears the bar.
func detectLanguage(text string) string {
	sample := strings.ToLower(text)
	if len(sample) > 2000 {
		sample = sample[:2000]
	}
	best, bestHits := "unknown", 0
	for lang, words := range langStopwords {
		hits := 0
		for _, w := range words {
			hits += strings.Count(sample, w)
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	if bestHits < 3 {
		return "unknown"
	}
	return best
}

func domainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
