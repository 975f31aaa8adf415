// Package entities extracts structured facts (revenue, headcount, founding
// year, locations, competitors, products, people) from research text with
// regular expressions. Extraction never fails: absent entities are simply
// absent from the result.
package entities

import (
	"regexp"
	"strconv"
	"strings"

	"planforge/internal/types"
)

// Extractor runs the per-kind extraction rules.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

var (
	reRevenue = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:revenue|revenues|sales|income)\s+(?:of|is|was|were|reached|at)\s+\$?\s?([\d,]+\.?\d*)\s*(million|billion|trillion|M|B|mn|bn)?`),
		regexp.MustCompile(`(?i)\$\s?([\d,]+\.?\d*)\s*(million|billion|trillion|M|B|mn|bn)?\s+in\s+(?:annual\s+)?(?:revenue|revenues|sales)`),
		regexp.MustCompile(`(?i)(?:generated|reported|posted)\s+\$?\s?([\d,]+\.?\d*)\s*(million|billion|trillion|M|B|mn|bn)?\s+(?:in\s+)?(?:revenue|sales)`),
	}
	reEmployees = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})*|\d+)\+?\s+(?:employees?|staff|workers|people\s+employed)`),
		regexp.MustCompile(`(?i)(?:employs|workforce\s+of|headcount\s+of|team\s+of)\s+(?:about\s+|around\s+|over\s+|approximately\s+)?(\d{1,3}(?:,\d{3})*|\d+)`),
	}
	reFounded = []*regexp.Regexp{
		regexp.MustCompile(`(?i)founded\s+in\s+(\d{4})`),
		regexp.MustCompile(`(?i)established\s+in\s+(\d{4})`),
		regexp.MustCompile(`(?i)(?:since|incorporated\s+in)\s+(\d{4})`),
	}
	reLocation = []*regexp.Regexp{
		regexp.MustCompile(`(?i)headquartered\s+in\s+([A-Z][\w .,'-]{2,60}?)(?:[.;\n]|$)`),
		regexp.MustCompile(`(?i)based\s+in\s+([A-Z][\w .,'-]{2,60}?)(?:[.;\n]|$)`),
		regexp.MustCompile(`(?i)headquarters\s+(?:are\s+|is\s+)?(?:located\s+)?in\s+([A-Z][\w .,'-]{2,60}?)(?:[.;\n]|$)`),
	}
	reCompetitorCue = regexp.MustCompile(`(?i)(?:competitors?|competes?\s+with|rivals?|competing\s+against)\s+(?:include|are|such\s+as|like|:)?\s*([A-Z][\w&.\- ]+(?:,\s*[A-Z][\w&.\- ]+)*(?:,?\s+and\s+[A-Z][\w&.\- ]+)?)`)
	reProductCue    = regexp.MustCompile(`(?i)(?:products?|offerings?)\s+(?:include|are|such\s+as|like|:)\s*([^.\n]{3,200})`)
	reServiceCue    = regexp.MustCompile(`(?i)services?\s+(?:include|are|such\s+as|like|:)\s*([^.\n]{3,200})`)
	rePerson        = regexp.MustCompile(`(?:CEO|CTO|CFO|COO|Chief\s+\w+\s+Officer|President|Chairman|Founder|Co-Founder)[,\s]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})`)
	rePersonRev     = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})[,\s]+(?:the\s+)?(?:CEO|CTO|CFO|COO|chief\s+\w+\s+officer|president|chairman|founder|co-founder)`)
	reCompanyName   = regexp.MustCompile(`([A-Z][\w&.-]*(?:\s+[A-Z][\w&.-]*){0,3}\s+(?:Inc|Corp|Corporation|Ltd|LLC|GmbH|AG|SA|PLC|Co)\.?)`)
	reMarketCap     = regexp.MustCompile(`(?i)market\s+cap(?:italization)?\s+of\s+\$?\s?([\d,]+\.?\d*)\s*(million|billion|trillion|M|B)?`)
	reProfit        = regexp.MustCompile(`(?i)(?:net\s+income|profit)\s+(?:of|was|is|reached)\s+\$?\s?([\d,]+\.?\d*)\s*(million|billion|trillion|M|B)?`)
)

const maxListEntities = 10

// Extract runs every rule against text and returns the populated mapping.
func (e *Extractor) Extract(text string) types.Entities {
	out := types.Entities{}
	if strings.TrimSpace(text) == "" {
		return out
	}

	if v := e.Revenue(text); v != "" {
		out.Add(types.EntityRevenue, v)
	}
	if m := firstMatch(reProfit, text); m != "" {
		out.Add(types.EntityProfit, m)
	}
	if v := e.Headcount(text); v != "" {
		out.Add(types.EntityEmployees, v)
	}
	if m := firstMatch(reMarketCap, text); m != "" {
		out.Add(types.EntityMarketCap, m)
	}
	if y := e.FoundedYear(text); y != 0 {
		out.Add(types.EntityFounded, strconv.Itoa(y))
	}
	if loc := e.Location(text); loc != "" {
		out.Add(types.EntityLocations, loc)
	}
	for _, c := range e.Competitors(text) {
		out.Add(types.EntityCompetitors, c)
	}
	for _, p := range splitListMatch(reProductCue, text) {
		out.Add(types.EntityProducts, p)
	}
	for _, s := range splitListMatch(reServiceCue, text) {
		out.Add(types.EntityServices, s)
	}
	for _, p := range e.People(text) {
		out.Add(types.EntityPeople, p)
	}
	if name := e.CompanyName(text); name != "" {
		out.Add(types.EntityCompanyName, name)
	}
	return out
}

// Revenue returns the largest revenue mention normalized to its original
// phrasing, e.g. "$120 million".
func (e *Extractor) Revenue(text string) string {
	best := ""
	bestVal := -1.0
	for _, re := range reRevenue {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := parseMoney(m[1], m[2])
			if v > bestVal {
				bestVal = v
				unit := strings.TrimSpace(m[2])
				if unit != "" {
					best = "$" + strings.ReplaceAll(m[1], " ", "") + " " + normalizeUnit(unit)
				} else {
					best = "$" + strings.ReplaceAll(m[1], " ", "")
				}
			}
		}
	}
	return best
}

// RevenueValue returns the revenue as an absolute number of dollars, or -1.
func (e *Extractor) RevenueValue(text string) float64 {
	best := -1.0
	for _, re := range reRevenue {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v := parseMoney(m[1], m[2]); v > best {
				best = v
			}
		}
	}
	return best
}

// Headcount returns the largest employee-count mention as a plain string.
func (e *Extractor) Headcount(text string) string {
	if n := e.HeadcountValue(text); n > 0 {
		return strconv.Itoa(n)
	}
	return ""
}

// HeadcountValue returns the largest employee count found, or -1.
func (e *Extractor) HeadcountValue(text string) int {
	best := -1
	for _, re := range reEmployees {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && n > best {
				best = n
			}
		}
	}
	return best
}

// FoundedYear returns the earliest plausible founding year, or 0.
func (e *Extractor) FoundedYear(text string) int {
	best := 0
	for _, re := range reFounded {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			y, err := strconv.Atoi(m[1])
			if err != nil || y < 1800 || y > 2100 {
				continue
			}
			if best == 0 || y < best {
				best = y
			}
		}
	}
	return best
}

// Location returns the first headquarters mention, trimmed to 50 chars.
func (e *Extractor) Location(text string) string {
	for _, re := range reLocation {
		if m := re.FindStringSubmatch(text); m != nil {
			loc := strings.TrimSpace(strings.Trim(m[1], " .,;"))
			if len(loc) > 50 {
				loc = loc[:50]
			}
			if loc != "" {
				return loc
			}
		}
	}
	return ""
}

// Competitors extracts up to 10 competitor names from cue sentences.
func (e *Extractor) Competitors(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range reCompetitorCue.FindAllStringSubmatch(text, -1) {
		for _, name := range splitNameList(m[1]) {
			key := strings.ToLower(name)
			if !seen[key] {
				seen[key] = true
				out = append(out, name)
			}
			if len(out) >= maxListEntities {
				return out
			}
		}
	}
	return out
}

// People extracts named executives with their leading or trailing titles.
func (e *Extractor) People(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, re := range []*regexp.Regexp{rePerson, rePersonRev} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			key := strings.ToLower(name)
			if name != "" && !seen[key] {
				seen[key] = true
				out = append(out, name)
			}
			if len(out) >= maxListEntities {
				return out
			}
		}
	}
	return out
}

// CompanyName returns the first corporate-suffix name mention, or "".
func (e *Extractor) CompanyName(text string) string {
	if m := reCompanyName.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(strings.TrimSuffix(m[1], "."))
	}
	return ""
}

// =============================================================================
// HELPERS
// =============================================================================

func firstMatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		unit := ""
		if len(m) > 2 {
			unit = strings.TrimSpace(m[2])
		}
		if unit != "" {
			return "$" + m[1] + " " + normalizeUnit(unit)
		}
		return "$" + m[1]
	}
	return ""
}

// parseMoney converts a numeric string plus unit to absolute dollars.
func parseMoney(num, unit string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return -1
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "million", "m", "mn":
		v *= 1e6
	case "billion", "b", "bn":
		v *= 1e9
	case "trillion":
		v *= 1e12
	}
	return v
}

func normalizeUnit(unit string) string {
	switch strings.ToLower(unit) {
	case "m", "mn", "million":
		return "million"
	case "b", "bn", "billion":
		return "billion"
	case "trillion":
		return "trillion"
	}
	return unit
}

// splitNameList breaks "A, B and C" into its names.
func splitNameList(s string) []string {
	s = strings.ReplaceAll(s, " and ", ",")
	s = strings.ReplaceAll(s, " & ", ",")
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.Trim(part, ".;"))
		if part != "" && len(part) <= 60 {
			out = append(out, part)
		}
	}
	return out
}

func splitListMatch(re *regexp.Regexp, text string) []string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	items := splitNameList(m[1])
	if len(items) > maxListEntities {
		items = items[:maxListEntities]
	}
	return items
}
