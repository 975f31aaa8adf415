package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/core"
	"planforge/internal/types"
)

type fakeLLM struct {
	respond   func(prompt string, opts core.GenerateOptions) (string, error)
	calls     int
	prompts   []string
	available bool
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.respond(prompt, opts)
}

func (f *fakeLLM) Available() bool { return f.available }

func proseParagraph() string {
	return strings.TrimSpace(strings.Repeat(
		"Acme Corporation has built a durable position in industrial equipment through steady product investment and disciplined pricing. ", 4))
}

const swotJSON = `{"strengths":"Strong brand and loyal customers.","weaknesses":"Concentrated supplier base.","opportunities":"Expansion into adjacent markets.","threats":"Low-cost entrants."}`

func happyResponder(prompt string, opts core.GenerateOptions) (string, error) {
	if strings.Contains(prompt, "SWOT") {
		return "Here is the analysis:\n" + swotJSON + "\nLet me know if you need more.", nil
	}
	if strings.Contains(prompt, "Extract key people") {
		return `[{"name":"Jane Doe","title":"CEO","source":"https://acme.com"}]`, nil
	}
	return proseParagraph(), nil
}

func testGenerator(llm core.LLM) *Generator {
	g := NewGenerator(llm, Config{})
	g.backoff = func(int) time.Duration { return time.Millisecond }
	return g
}

func sampleEntities() types.Entities {
	e := types.Entities{}
	e.Add(types.EntityRevenue, "$120 million")
	e.Add(types.EntityEmployees, "500")
	e.Add(types.EntityCompetitors, "Globex")
	e.Add(types.EntityCompetitors, "Initech")
	e.Add(types.EntityPeople, "Jane Doe, CEO")
	return e
}

func sampleSources() []types.SourceReference {
	return []types.SourceReference{
		{URL: "https://www.reuters.com/acme", Kind: "news", ExtractedAt: "2026-08-01T00:00:00Z"},
		{URL: "https://acme.com/about", Kind: "website", ExtractedAt: "2026-08-01T00:00:00Z"},
	}
}

func TestGenerateCompletePlan(t *testing.T) {
	llm := &fakeLLM{respond: happyResponder, available: true}
	g := testGenerator(llm)

	p := g.Generate(context.Background(), "Acme Corp", "Acme research context about anvils.", sampleEntities(), sampleSources())
	require.NotNil(t, p)
	assert.Equal(t, "Acme Corp", p.CompanyName)

	for _, key := range types.TextSectionOrder {
		text := p.Sections[key]
		require.NotEmpty(t, text, key)
		assert.False(t, IsFallback(text), key)
		last := text[len(text)-1]
		assert.Contains(t, ".!?", string(last), key)
	}

	require.NotNil(t, p.SWOT)
	assert.Equal(t, "Strong brand and loyal customers.", p.SWOT.Strengths)

	require.Contains(t, p.FinancialSummary, types.EntityRevenue)
	assert.Equal(t, "$120 million", p.FinancialSummary[types.EntityRevenue].Value)
	assert.Equal(t, 0.85, p.FinancialSummary[types.EntityRevenue].Confidence)

	require.Len(t, p.KeyPeople, 1)
	assert.Equal(t, "Jane Doe", p.KeyPeople[0].Name)
	assert.Equal(t, "CEO", p.KeyPeople[0].Title)

	require.Len(t, p.Competitors, 2)
	assert.Equal(t, "Globex", p.Competitors[0].Name)

	assert.Len(t, p.Sources, 2)
	assert.WithinDuration(t, time.Now(), p.LastUpdated, 5*time.Second)
}

func TestGenerateUnavailableLLMFallsBack(t *testing.T) {
	llm := &fakeLLM{respond: happyResponder, available: false}
	g := testGenerator(llm)

	context1 := "Acme Corp reported revenue of $85 million last year. The company has 1,200 employees and was founded in 1987. " +
		strings.Repeat("Acme continues to grow its anvil business across Europe. ", 3)
	p := g.Generate(context.Background(), "Acme Corp", context1, types.Entities{}, sampleSources())
	require.NotNil(t, p)
	assert.Equal(t, 0, llm.calls)

	for _, key := range types.TextSectionOrder {
		text := p.Sections[key]
		require.NotEmpty(t, text, key)
		assert.Contains(t, ".!?", string(text[len(text)-1]), key)
	}
	assert.True(t, IsFallback(p.Sections[types.SectionMarketSummary]))
	assert.Contains(t, p.Sections[types.SectionCompanyOverview], "$85 million")
	require.NotNil(t, p.SWOT)
	assert.NotEmpty(t, p.SWOT.Threats)
}

func TestGenerateSectionFailureIsIsolated(t *testing.T) {
	llm := &fakeLLM{available: true, respond: func(prompt string, opts core.GenerateOptions) (string, error) {
		if strings.Contains(prompt, "pain points") {
			return "", fmt.Errorf("llm: %w", core.ErrSafetyBlocked)
		}
		return happyResponder(prompt, opts)
	}}
	g := testGenerator(llm)

	p := g.Generate(context.Background(), "Acme Corp", "context", sampleEntities(), nil)
	assert.True(t, IsFallback(p.Sections[types.SectionPainPoints]))
	assert.False(t, IsFallback(p.Sections[types.SectionCompanyOverview]))
}

func TestGenerateSectionShrinksOnTruncation(t *testing.T) {
	truncated := true
	llm := &fakeLLM{available: true, respond: func(prompt string, opts core.GenerateOptions) (string, error) {
		if truncated {
			truncated = false
			return "", fmt.Errorf("llm: %w", core.ErrTruncated)
		}
		return proseParagraph(), nil
	}}
	g := testGenerator(llm)

	longContext := strings.Repeat("x", 3000)
	got, err := g.generateSection(context.Background(), textSections[0], "Acme", longContext, "{}")
	require.NoError(t, err)
	assert.False(t, IsFallback(got))
	require.Equal(t, 2, llm.calls)
	assert.Less(t, len(llm.prompts[1]), len(llm.prompts[0]), "retry prompt carries a smaller context")
}

func TestCallLLMRetrySchedules(t *testing.T) {
	t.Run("rate limit retried three times", func(t *testing.T) {
		fails := 3
		llm := &fakeLLM{available: true, respond: func(string, core.GenerateOptions) (string, error) {
			if fails > 0 {
				fails--
				return "", fmt.Errorf("llm: %w", core.ErrRateLimit)
			}
			return "recovered text", nil
		}}
		g := testGenerator(llm)
		got, err := g.callLLM(context.Background(), "p", "s", 0.7)
		require.NoError(t, err)
		assert.Equal(t, "recovered text", got)
		assert.Equal(t, 4, llm.calls)
	})

	t.Run("rate limit exhausted", func(t *testing.T) {
		llm := &fakeLLM{available: true, respond: func(string, core.GenerateOptions) (string, error) {
			return "", fmt.Errorf("llm: %w", core.ErrRateLimit)
		}}
		g := testGenerator(llm)
		_, err := g.callLLM(context.Background(), "p", "s", 0.7)
		assert.True(t, errors.Is(err, core.ErrRateLimit))
		assert.Equal(t, 4, llm.calls)
	})

	t.Run("safety block never retried", func(t *testing.T) {
		llm := &fakeLLM{available: true, respond: func(string, core.GenerateOptions) (string, error) {
			return "", fmt.Errorf("llm: %w", core.ErrSafetyBlocked)
		}}
		g := testGenerator(llm)
		_, err := g.callLLM(context.Background(), "p", "s", 0.7)
		assert.True(t, errors.Is(err, core.ErrSafetyBlocked))
		assert.Equal(t, 1, llm.calls)
	})
}

func TestRegenerateSection(t *testing.T) {
	llm := &fakeLLM{respond: happyResponder, available: true}
	g := testGenerator(llm)
	fixed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	p := types.NewAccountPlan("Acme Corp")
	p.Sections[types.SectionKeyInsights] = "Old insights."
	p.Sections[types.SectionMarketSummary] = "Untouched summary."

	err := g.RegenerateSection(context.Background(), p, types.SectionKeyInsights, "research", sampleEntities())
	require.NoError(t, err)
	assert.NotEqual(t, "Old insights.", p.Sections[types.SectionKeyInsights])
	assert.Equal(t, "Untouched summary.", p.Sections[types.SectionMarketSummary])
	assert.Equal(t, fixed, p.LastUpdated)
}

func TestRegenerateSWOT(t *testing.T) {
	llm := &fakeLLM{respond: happyResponder, available: true}
	g := testGenerator(llm)

	p := types.NewAccountPlan("Acme Corp")
	require.NoError(t, g.RegenerateSection(context.Background(), p, types.SectionSWOT, "research", nil))
	require.NotNil(t, p.SWOT)
	assert.Equal(t, "Low-cost entrants.", p.SWOT.Threats)
}

func TestGenerateField(t *testing.T) {
	llm := &fakeLLM{available: true, respond: func(prompt string, opts core.GenerateOptions) (string, error) {
		assert.Contains(t, prompt, "chief executive officer")
		return "Jane Doe is the CEO of Acme Corp", nil
	}}
	g := testGenerator(llm)

	got, err := g.GenerateField(context.Background(), "Acme Corp", "ceo", "research context")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe is the CEO of Acme Corp.", got)
}
