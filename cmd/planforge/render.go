package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"planforge/internal/types"
)

// Display titles for the canonical sections, in render order.
var sectionTitles = []struct {
	key   string
	title string
}{
	{types.SectionCompanyOverview, "Company Overview"},
	{types.SectionMarketSummary, "Market Summary"},
	{types.SectionKeyInsights, "Key Insights"},
	{types.SectionPainPoints, "Pain Points"},
	{types.SectionProductsServices, "Products & Services"},
	{types.SectionOpportunities, "Opportunities"},
	{types.SectionCompetitorAnalysis, "Competitor Analysis"},
	{types.SectionStrategicRecommendations, "Strategic Recommendations"},
	{types.SectionFinalAccountPlan, "Executive Summary"},
}

// planMarkdown renders an account plan as a markdown document.
func planMarkdown(p *types.AccountPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Account Plan: %s\n\n", p.CompanyName)
	if !p.LastUpdated.IsZero() {
		fmt.Fprintf(&sb, "_Last updated %s_\n\n", p.LastUpdated.Format("2006-01-02 15:04 MST"))
	}

	rendered := make(map[string]bool)
	for _, s := range sectionTitles {
		text, ok := p.Sections[s.key]
		if !ok || text == "" {
			continue
		}
		rendered[s.key] = true
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", s.title, text)
	}

	if p.SWOT != nil {
		sb.WriteString("## SWOT\n\n")
		fmt.Fprintf(&sb, "- **Strengths:** %s\n", p.SWOT.Strengths)
		fmt.Fprintf(&sb, "- **Weaknesses:** %s\n", p.SWOT.Weaknesses)
		fmt.Fprintf(&sb, "- **Opportunities:** %s\n", p.SWOT.Opportunities)
		fmt.Fprintf(&sb, "- **Threats:** %s\n\n", p.SWOT.Threats)
	}

	if len(p.FinancialSummary) > 0 {
		sb.WriteString("## Financial Summary\n\n| Metric | Value | Confidence |\n|---|---|---|\n")
		metrics := make([]string, 0, len(p.FinancialSummary))
		for k := range p.FinancialSummary {
			metrics = append(metrics, k)
		}
		sort.Strings(metrics)
		for _, k := range metrics {
			f := p.FinancialSummary[k]
			fmt.Fprintf(&sb, "| %s | %s | %.0f%% |\n", strings.ReplaceAll(k, "_", " "), f.Value, f.Confidence*100)
		}
		sb.WriteString("\n")
	}

	if len(p.KeyPeople) > 0 {
		sb.WriteString("## Key People\n\n")
		for _, kp := range p.KeyPeople {
			if kp.Title != "" {
				fmt.Fprintf(&sb, "- %s, %s\n", kp.Name, kp.Title)
			} else {
				fmt.Fprintf(&sb, "- %s\n", kp.Name)
			}
		}
		sb.WriteString("\n")
	}

	if len(p.Competitors) > 0 {
		sb.WriteString("## Competitors\n\n")
		for _, comp := range p.Competitors {
			fmt.Fprintf(&sb, "- %s\n", comp.Name)
		}
		sb.WriteString("\n")
	}

	// User-added custom fields come after the canonical sections.
	var custom []string
	for k := range p.Sections {
		if !rendered[k] {
			custom = append(custom, k)
		}
	}
	sort.Strings(custom)
	for _, k := range custom {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", titleFromKey(k), p.Sections[k])
	}

	if len(p.Sources) > 0 {
		sb.WriteString("## Sources\n\n")
		for _, src := range p.Sources {
			fmt.Fprintf(&sb, "- %s (%s)\n", src.URL, src.Kind)
		}
	}
	return sb.String()
}

// renderPlan renders the markdown for terminal display.
func renderPlan(p *types.AccountPlan) (string, error) {
	md := planMarkdown(p)
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md, nil
	}
	out, err := r.Render(md)
	if err != nil {
		return md, nil
	}
	return out, nil
}

func titleFromKey(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		if len(w) <= 3 && strings.ToLower(w) == w && (w == "ceo" || w == "cto" || w == "cfo") {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
