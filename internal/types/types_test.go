package types

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreWeightedTotal(t *testing.T) {
	s := Score{Freshness: 1, Credibility: 1, Quality: 1, Relevance: 1, Readability: 1}
	assert.InDelta(t, 1.0, s.WeightedTotal(), 1e-9)

	s = Score{Freshness: 0.5, Credibility: 0.8, Quality: 0.6, Relevance: 0.9, Readability: 0.7}
	want := 0.5*0.15 + 0.8*0.25 + 0.6*0.20 + 0.9*0.30 + 0.7*0.10
	assert.InDelta(t, want, s.WeightedTotal(), 1e-9)
	assert.False(t, math.IsNaN(s.WeightedTotal()))
}

func TestSourceKindValid(t *testing.T) {
	assert.True(t, SourceUploadedDocument.Valid())
	assert.True(t, SourceWebSearch.Valid())
	assert.True(t, SourceFallback.Valid())
	assert.False(t, SourceKind("api").Valid())
	assert.False(t, SourceKind("").Valid())
}

func TestEntitiesAddDedup(t *testing.T) {
	e := Entities{}
	e.Add(EntityCompetitors, "Snowflake")
	e.Add(EntityCompetitors, "snowflake")
	e.Add(EntityCompetitors, "  ")
	e.Add(EntityCompetitors, "Databricks")

	assert.Equal(t, []string{"Snowflake", "Databricks"}, e[EntityCompetitors])
	assert.Equal(t, "Snowflake", e.First(EntityCompetitors))
	assert.Equal(t, "", e.First(EntityRevenue))
}

func TestEntitiesJSONTruncation(t *testing.T) {
	e := Entities{EntityRevenue: {"$10 million", "$12 million"}}
	full := e.JSON(0)
	assert.Contains(t, full, "$10 million")

	short := e.JSON(8)
	assert.Len(t, short, 8)
}

func TestAccountPlanJSONRoundTrip(t *testing.T) {
	p := NewAccountPlan("Acme Corp")
	p.Sections[SectionCompanyOverview] = "Acme makes anvils."
	p.Sections[SectionMarketSummary] = "The anvil market is stable."
	p.Sections["ceo"] = "The CEO is Jane Smith."
	p.SWOT = &SWOT{Strengths: "brand", Weaknesses: "cost", Opportunities: "export", Threats: "imports"}
	p.FinancialSummary = map[string]FinancialFact{
		"revenue": {Value: "$10M", Source: []string{"doc.pdf"}, Confidence: 0.9},
	}
	p.KeyPeople = []Person{{Name: "Jane Smith", Title: "CEO", Source: "doc.pdf"}}
	p.Competitors = []CompetitorRef{{Name: "Globex", Reason: "same market", Source: "web"}}
	p.Sources = []SourceReference{{URL: "https://acme.com", Kind: "website", ExtractedAt: "2026-08-24"}}
	p.LastUpdated = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	// Sections flatten to top-level keys on the wire.
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Acme makes anvils.", raw["company_overview"])
	assert.Equal(t, "The CEO is Jane Smith.", raw["ceo"])
	assert.Equal(t, "Acme Corp", raw["company_name"])

	var back AccountPlan
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(p.Sections, back.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, p.SWOT, back.SWOT)
	assert.Equal(t, p.FinancialSummary, back.FinancialSummary)
	assert.Equal(t, p.KeyPeople, back.KeyPeople)
	assert.True(t, p.LastUpdated.Equal(back.LastUpdated))
}

func TestAccountPlanClone(t *testing.T) {
	p := NewAccountPlan("Acme")
	p.Sections[SectionKeyInsights] = "insight"
	p.SWOT = &SWOT{Strengths: "s"}

	c := p.Clone()
	c.Sections[SectionKeyInsights] = "changed"
	c.SWOT.Strengths = "changed"

	assert.Equal(t, "insight", p.Sections[SectionKeyInsights])
	assert.Equal(t, "s", p.SWOT.Strengths)
}

func TestAccountPlanSectionKeys(t *testing.T) {
	p := NewAccountPlan("Acme")
	p.Sections["ceo"] = "x"
	p.Sections[SectionPainPoints] = "y"
	p.Sections[SectionCompanyOverview] = "z"

	keys := p.SectionKeys()
	require.Len(t, keys, 3)
	// Fixed sections come first in generation order, custom fields after.
	assert.Equal(t, SectionCompanyOverview, keys[0])
	assert.Equal(t, SectionPainPoints, keys[1])
	assert.Equal(t, "ceo", keys[2])
}

func TestSessionRecentText(t *testing.T) {
	s := &Session{Messages: []Message{
		{Role: "user", Content: "Research Acme"},
		{Role: "assistant", Content: "Done"},
		{Role: "user", Content: "Add CEO Field"},
	}}
	got := s.RecentText(2)
	assert.Equal(t, "done add ceo field", got)
	assert.Equal(t, "research acme done add ceo field", s.RecentText(10))

	var nilSession *Session
	assert.Equal(t, "", nilSession.RecentText(3))
}

func TestChunkMetaDocumentID(t *testing.T) {
	m := ChunkMeta{SourceFile: "report.pdf", URL: "https://x.com"}
	assert.Equal(t, "report.pdf", m.DocumentID())
	m.SourceFile = ""
	assert.Equal(t, "https://x.com", m.DocumentID())
}
