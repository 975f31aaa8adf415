package plan

import (
	"regexp"
	"strings"
)

// ===== OUTPUT CLEANING =====

var (
	reMarkdownImage  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	reEmptyBrackets  = regexp.MustCompile(`!?\[\]`)
	reCodeFence      = regexp.MustCompile("```[a-zA-Z]*")
	rePercentEncoded = regexp.MustCompile(`%[0-9A-Fa-f]{2,}`)
	reHTTPURL        = regexp.MustCompile(`https?://\S+`)
	reWWWURL         = regexp.MustCompile(`www\.\S+`)
	reProtoRelative  = regexp.MustCompile(`//[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\S*`)
	reTrackingParam  = regexp.MustCompile(`(?i)\b(rut|utm_[a-z]+|ref|source|campaign|medium|uddg)=[a-zA-Z0-9%._-]+`)
	reWebSourceLabel = regexp.MustCompile(`(?i)WEB SOURCE:\s*`)
	reHexID          = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
	reWhitespace     = regexp.MustCompile(`\s+`)
)

// CleanText strips scrape and model artifacts from generated prose: URLs,
// tracking parameters, markdown leftovers, hex tracking IDs, source labels.
// The cleaner runs twice because stripping one artifact can expose another
// (a URL hidden inside a markdown link, for example).
func CleanText(text string) string {
	for i := 0; i < 2; i++ {
		text = cleanOnce(text)
	}
	return text
}

func cleanOnce(text string) string {
	if text == "" {
		return ""
	}
	text = reMarkdownImage.ReplaceAllString(text, "")
	text = reCodeFence.ReplaceAllString(text, "")
	text = reWebSourceLabel.ReplaceAllString(text, "")
	text = reHTTPURL.ReplaceAllString(text, "")
	text = reWWWURL.ReplaceAllString(text, "")
	text = reProtoRelative.ReplaceAllString(text, "")
	text = rePercentEncoded.ReplaceAllString(text, "")
	text = reTrackingParam.ReplaceAllString(text, "")
	text = reHexID.ReplaceAllString(text, "")
	text = reEmptyBrackets.ReplaceAllString(text, "")
	text = reWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// EnsureTerminal appends a period when the text does not already end in
// terminal punctuation.
func EnsureTerminal(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return t
	}
	if strings.ContainsRune(".!?", rune(t[len(t)-1])) {
		return t
	}
	return t + "."
}

// ===== TRUNCATION DETECTION =====

const terminalChars = ".!?\"})]"

// Tails the model reliably produces when a response is cut mid-sentence.
var incompleteTails = []string{
	"relev", "focu", "into re", "ant to", "launche", "with a focu",
}

// LooksTruncated reports whether generated text appears cut off: no terminal
// punctuation, a dangling short last word, a known incomplete tail, or (for
// long-form sections) suspiciously little content.
func LooksTruncated(text string, longSection bool) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if longSection && len(t) < 50 {
		return true
	}

	endsProperly := strings.ContainsRune(terminalChars, rune(t[len(t)-1]))
	if !endsProperly {
		return true
	}

	words := strings.Fields(t)
	last := 3
	if len(words) < last {
		last = len(words)
	}
	tail := strings.ToLower(strings.Join(words[len(words)-last:], " "))
	for _, pattern := range incompleteTails {
		if strings.Contains(tail, pattern) {
			return true
		}
	}

	lastWord := strings.ToLower(strings.TrimRight(words[len(words)-1], terminalChars+",;:"))
	if lastWord != "" && len(lastWord) < 4 && !endsWithSentence(t) {
		return true
	}
	return false
}

// endsWithSentence reports whether the text's final rune is a sentence
// terminator rather than a closing bracket or quote.
func endsWithSentence(t string) bool {
	return strings.ContainsRune(".!?", rune(t[len(t)-1]))
}
