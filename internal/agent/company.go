package agent

import (
	"regexp"
	"strings"

	"planforge/internal/types"
)

// Company-name extraction patterns, ordered from most to least specific.
// Each pattern captures the name in group 1.
var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)account plan (?:for|on|about)\s+(.+)`),
	regexp.MustCompile(`(?i)research (?:on |about |into )?(.+)`),
	regexp.MustCompile(`(?i)analyze\s+(.+)`),
	regexp.MustCompile(`(?i)(?:tell me |find out |learn )?(?:more )?about\s+(.+)`),
	regexp.MustCompile(`(?i)look (?:up|into)\s+(.+)`),
	regexp.MustCompile(`(?i)company (?:called|named)\s+(.+)`),
}

// Trailing conversational noise stripped from an extracted name.
var companyTrailers = []string{
	"please", "for me", "now", "today", "thanks", "thank you",
	"and generate an account plan", "and create an account plan",
	"account plan", "company", "the company",
}

// extractCompanyName pulls a company name out of a free-form message.
// Pattern matches win; otherwise a run of capitalized words is taken as the
// name. Returns "" when nothing plausible is found.
func extractCompanyName(message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return ""
	}

	for _, re := range companyPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			if name := cleanCompanyName(m[1]); name != "" {
				return name
			}
		}
	}

	// Fallback: the longest run of consecutive capitalized words, skipping
	// sentence-initial verbs like "Research" or "Generate".
	words := strings.Fields(msg)
	var best, current []string
	for i, w := range words {
		trimmed := strings.Trim(w, ".,!?;:'\"")
		if trimmed != "" && trimmed[0] >= 'A' && trimmed[0] <= 'Z' && !(i == 0 && isCommandWord(trimmed)) {
			current = append(current, trimmed)
			if len(current) > len(best) {
				best = current
			}
			continue
		}
		current = nil
	}
	return cleanCompanyName(strings.Join(best, " "))
}

func cleanCompanyName(name string) string {
	name = strings.Trim(strings.TrimSpace(name), ".,!?;:'\"")
	lower := strings.ToLower(name)
	for _, t := range companyTrailers {
		if strings.HasSuffix(lower, t) {
			name = strings.TrimSpace(name[:len(name)-len(t)])
			name = strings.Trim(name, ".,!?;:'\"")
			lower = strings.ToLower(name)
		}
	}
	if len(name) < 2 || len(name) > 80 {
		return ""
	}
	// A pure keyword is not a name.
	switch lower {
	case "it", "them", "this", "that", "a", "an", "the":
		return ""
	}
	return name
}

func isCommandWord(w string) bool {
	switch strings.ToLower(w) {
	case "research", "analyze", "generate", "create", "find", "tell",
		"look", "make", "build", "give", "show", "get", "please":
		return true
	}
	return false
}

// companyFromUploads recovers a company name from uploaded-document research
// when the user says "use the uploaded file" without naming the company.
func companyFromUploads(sess *types.Session) string {
	if sess == nil {
		return ""
	}
	for _, ch := range sess.ResearchData {
		if ch.Meta.SourceKind == types.SourceUploadedDocument && ch.Meta.Company != "" {
			return ch.Meta.Company
		}
	}
	return ""
}

// mentionsCompany reports whether text plausibly refers to the company: the
// full name, the name with spaces removed, or its first token.
func mentionsCompany(text, company string) bool {
	if company == "" {
		return false
	}
	lower := strings.ToLower(text)
	name := strings.ToLower(company)
	if strings.Contains(lower, name) {
		return true
	}
	if joined := strings.ReplaceAll(name, " ", ""); joined != name && strings.Contains(lower, joined) {
		return true
	}
	if first := strings.Fields(name); len(first) > 0 && len(first[0]) >= 4 {
		return strings.Contains(lower, first[0])
	}
	return false
}
