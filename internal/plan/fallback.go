package plan

import (
	"fmt"
	"strings"

	"planforge/internal/entities"
	"planforge/internal/types"
)

// FallbackMarker appears in every deterministic fallback section so
// downstream consumers can detect degraded output.
const FallbackMarker = "information unavailable in current research data"

// FallbackText returns the deterministic text for a section that could not
// be generated.
func FallbackText(key, company string) string {
	var lead string
	switch key {
	case types.SectionCompanyOverview:
		lead = fmt.Sprintf("%s is a company operating in the market. Based on available research, the company has established a presence in its industry.", company)
	case types.SectionMarketSummary:
		lead = fmt.Sprintf("Market analysis for %s.", company)
	case types.SectionKeyInsights:
		lead = fmt.Sprintf("Key insights for %s.", company)
	case types.SectionPainPoints:
		lead = fmt.Sprintf("Pain points and challenges identified for %s.", company)
	case types.SectionOpportunities:
		lead = fmt.Sprintf("Growth opportunities identified for %s.", company)
	case types.SectionProductsServices:
		lead = fmt.Sprintf("%s offers a range of products and services in its industry.", company)
	case types.SectionCompetitorAnalysis:
		lead = fmt.Sprintf("Competitive landscape analysis for %s.", company)
	case types.SectionStrategicRecommendations:
		lead = fmt.Sprintf("Strategic recommendations for engaging with %s.", company)
	case types.SectionFinalAccountPlan:
		lead = fmt.Sprintf("Executive summary for the %s account plan.", company)
	default:
		lead = fmt.Sprintf("%s for %s.", titleCase(strings.ReplaceAll(key, "_", " ")), company)
	}
	return lead + " Further " + FallbackMarker + "."
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// IsFallback reports whether a section text is deterministic fallback prose.
func IsFallback(text string) bool {
	return strings.Contains(text, FallbackMarker)
}

func fallbackSWOT() *types.SWOT {
	return &types.SWOT{
		Strengths:     "Key strengths identified from research.",
		Weaknesses:    "Areas for improvement noted.",
		Opportunities: "Growth opportunities available.",
		Threats:       "Potential threats to consider.",
	}
}

// FallbackPlan builds a complete plan without any LLM call, pulling what it
// can from the research text via entity extraction. Every section key is
// present and every text section ends in terminal punctuation.
func (g *Generator) FallbackPlan(company, researchContext string, ents types.Entities, sources []types.SourceReference) *types.AccountPlan {
	p := types.NewAccountPlan(company)

	if len(ents) == 0 && researchContext != "" {
		ents = entities.New().Extract(researchContext)
	}

	p.Sections[types.SectionCompanyOverview] = fallbackOverview(company, ents)
	for _, key := range []string{
		types.SectionMarketSummary,
		types.SectionKeyInsights,
		types.SectionPainPoints,
		types.SectionOpportunities,
		types.SectionProductsServices,
		types.SectionCompetitorAnalysis,
		types.SectionStrategicRecommendations,
		types.SectionFinalAccountPlan,
	} {
		p.Sections[key] = FallbackText(key, company)
	}

	p.SWOT = fallbackSWOT()
	p.FinancialSummary = financialSummary(ents, sources)
	p.KeyPeople = peopleFromEntities(ents, sources)
	p.Competitors = competitorRefs(ents, sources)
	p.Sources = sources
	p.LastUpdated = g.now().UTC()
	return p
}

// fallbackOverview folds whatever facts extraction found into the overview
// so a degraded plan still carries the concrete numbers.
func fallbackOverview(company string, ents types.Entities) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is a company operating in the market.", company)
	if founded := ents.First(types.EntityFounded); founded != "" {
		fmt.Fprintf(&b, " The company was founded in %s.", founded)
	}
	if loc := ents.First(types.EntityLocations); loc != "" {
		fmt.Fprintf(&b, " It is headquartered in %s.", loc)
	}
	if rev := ents.First(types.EntityRevenue); rev != "" {
		fmt.Fprintf(&b, " Reported revenue is %s.", rev)
	}
	if emp := ents.First(types.EntityEmployees); emp != "" {
		fmt.Fprintf(&b, " The company employs %s people.", emp)
	}
	b.WriteString(" Further " + FallbackMarker + ".")
	return b.String()
}
