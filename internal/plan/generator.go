// Package plan synthesizes account plans section by section. One giant
// prompt reliably truncates at the model's output ceiling, so each section
// gets its own prompt, temperature, and context budget, with per-failure
// retry policies and deterministic fallback text.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"planforge/internal/core"
	"planforge/internal/logging"
	"planforge/internal/types"
)

// Config holds the prompt budgets.
type Config struct {
	ContextLimit       int // chars of research context per section
	WideContextLimit   int // for sections that benefit from more context
	ShrunkContextLimit int // retry budget after a truncated response
	EntityLimit        int // chars of entity JSON
	ShrunkEntityLimit  int // entity budget on the truncation retry
	MaxOutputTokens    int
}

// DefaultConfig returns the standard prompt budgets.
func DefaultConfig() Config {
	return Config{
		ContextLimit:       2000,
		WideContextLimit:   5000,
		ShrunkContextLimit: 1500,
		EntityLimit:        500,
		ShrunkEntityLimit:  300,
		MaxOutputTokens:    8000,
	}
}

// Generator produces account plans from research context and entities.
type Generator struct {
	llm     core.LLM
	cfg     Config
	backoff func(attempt int) time.Duration
	now     func() time.Time
}

// NewGenerator creates a generator, filling zero config values with defaults.
func NewGenerator(llm core.LLM, cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = def.ContextLimit
	}
	if cfg.WideContextLimit <= 0 {
		cfg.WideContextLimit = def.WideContextLimit
	}
	if cfg.ShrunkContextLimit <= 0 {
		cfg.ShrunkContextLimit = def.ShrunkContextLimit
	}
	if cfg.EntityLimit <= 0 {
		cfg.EntityLimit = def.EntityLimit
	}
	if cfg.ShrunkEntityLimit <= 0 {
		cfg.ShrunkEntityLimit = def.ShrunkEntityLimit
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	return &Generator{
		llm: llm,
		cfg: cfg,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
		now: time.Now,
	}
}

// ===== SECTION TABLE =====

type sectionSpec struct {
	key         string
	temperature float64
	wideContext bool
	requirement string
}

var textSections = []sectionSpec{
	{types.SectionCompanyOverview, 0.6, false,
		"a comprehensive, executive-ready company overview (250-350 words) covering company history and founding, core business model, current market position, key products and services, and recent developments"},
	{types.SectionMarketSummary, 0.7, false,
		"a market analysis (200-300 words) covering industry size, major trends, growth drivers, and the company's position within the market"},
	{types.SectionKeyInsights, 0.7, false,
		"3-5 key insights (250-350 words) with specific examples drawn from the research"},
	{types.SectionPainPoints, 0.7, false,
		"3-5 pain points and challenges (200-300 words) the company currently faces"},
	{types.SectionOpportunities, 0.8, false,
		"4-6 growth opportunities (250-350 words) with specific growth areas and why they matter"},
	{types.SectionProductsServices, 0.7, false,
		"a products and services overview (200-300 words) covering the main offerings and their value propositions"},
	{types.SectionCompetitorAnalysis, 0.7, true,
		"a competitive landscape analysis (250-350 words) naming the main competitors and comparing market positioning"},
	{types.SectionStrategicRecommendations, 0.8, false,
		"strategic recommendations (250-350 words) for engaging with the company as a sales account"},
}

const systemPrompt = "You are a senior business analyst with 15+ years of experience in strategic consulting. Generate production-grade, executive-ready content suitable for C-suite presentations. Synthesize information from research data, never copy raw text chunks. Write in professional business English. Return ONLY clean text, no markdown, no JSON, no artifacts."

// ===== GENERATION =====

// Generate builds a complete account plan. Every section gets a value even
// when the LLM is unavailable or a call fails: degraded sections carry
// deterministic fallback text and the plan is never nil.
func (g *Generator) Generate(ctx context.Context, company, researchContext string, ents types.Entities, sources []types.SourceReference) *types.AccountPlan {
	timer := logging.StartTimer(logging.CategoryPlan, "Generate")
	defer timer.StopWithInfo()

	if g.llm == nil || !g.llm.Available() {
		logging.Plan("LLM unavailable, building fallback plan for %s", company)
		return g.FallbackPlan(company, researchContext, ents, sources)
	}

	p := types.NewAccountPlan(company)
	entJSON := ents.JSON(g.cfg.EntityLimit)

	for _, spec := range textSections {
		text, err := g.generateSection(ctx, spec, company, researchContext, entJSON)
		if err != nil {
			logging.Get(logging.CategoryPlan).Warn("section %s failed, using fallback: %v", spec.key, err)
			text = FallbackText(spec.key, company)
		}
		p.Sections[spec.key] = text
	}

	p.Sections[types.SectionFinalAccountPlan] = g.generateFinalSection(ctx, company, p)
	p.SWOT = g.generateSWOT(ctx, company, researchContext)
	p.FinancialSummary = financialSummary(ents, sources)
	p.KeyPeople = g.keyPeople(ctx, company, researchContext, ents, sources)
	p.Competitors = competitorRefs(ents, sources)
	p.Sources = sources
	p.LastUpdated = g.now().UTC()

	g.repairTruncatedSections(ctx, p, researchContext, entJSON)
	return p
}

// generateSection runs one section prompt with the per-failure retry
// policies: truncation shrinks the context and entity budgets once, rate
// limits and network errors back off inside callLLM, safety blocks fail
// immediately.
func (g *Generator) generateSection(ctx context.Context, spec sectionSpec, company, researchContext, entJSON string) (string, error) {
	limit := g.cfg.ContextLimit
	if spec.wideContext {
		limit = g.cfg.WideContextLimit
	}
	entLimit := g.cfg.EntityLimit

	for attempt := 0; attempt < 2; attempt++ {
		prompt := g.sectionPrompt(spec, company, truncate(researchContext, limit), truncate(entJSON, entLimit))
		out, err := g.callLLM(ctx, prompt, systemPrompt, spec.temperature)
		if err != nil {
			if errors.Is(err, core.ErrTruncated) && attempt == 0 {
				logging.Plan("section %s truncated, retrying with smaller context", spec.key)
				limit = g.cfg.ShrunkContextLimit
				entLimit = g.cfg.ShrunkEntityLimit
				continue
			}
			return "", err
		}
		cleaned := CleanText(out)
		if len(cleaned) > 50 {
			return EnsureTerminal(cleaned), nil
		}
		if attempt == 0 {
			limit = g.cfg.ShrunkContextLimit
			entLimit = g.cfg.ShrunkEntityLimit
		}
	}
	return "", fmt.Errorf("plan: section %s produced no usable text", spec.key)
}

func (g *Generator) sectionPrompt(spec sectionSpec, company, researchContext, entJSON string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are generating the %s section of an account plan for %s.\n\n", strings.ReplaceAll(spec.key, "_", " "), company)
	b.WriteString("Research Context (PRIORITIZE UPLOADED DOCUMENTS):\n")
	b.WriteString(researchContext)
	b.WriteString("\n\nExtracted Entities:\n")
	b.WriteString(entJSON)
	fmt.Fprintf(&b, "\n\nGenerate %s.\n\n", spec.requirement)
	b.WriteString("Write in professional business English. Return ONLY the section text, no JSON, no markdown, no artifacts.")
	return b.String()
}

// generateFinalSection builds the executive summary from the already
// generated sections rather than the raw research context.
func (g *Generator) generateFinalSection(ctx context.Context, company string, p *types.AccountPlan) string {
	prompt := fmt.Sprintf(`Create an executive summary for the %s account plan based on the following sections:

Company Overview: %s

Key Insights: %s

Opportunities: %s

Generate a comprehensive executive summary (300-400 words) that synthesizes all key findings into a cohesive narrative. Include company positioning, market opportunity, and strategic priorities.

Return ONLY the text, no JSON, no markdown.`,
		company,
		truncate(p.Sections[types.SectionCompanyOverview], 300),
		truncate(p.Sections[types.SectionKeyInsights], 300),
		truncate(p.Sections[types.SectionOpportunities], 300))

	out, err := g.callLLM(ctx, prompt, systemPrompt, 0.7)
	if err != nil {
		logging.Get(logging.CategoryPlan).Warn("final section failed, using fallback: %v", err)
		return FallbackText(types.SectionFinalAccountPlan, company)
	}
	cleaned := CleanText(out)
	if len(cleaned) <= 50 {
		return FallbackText(types.SectionFinalAccountPlan, company)
	}
	return EnsureTerminal(cleaned)
}

// generateSWOT asks for a single JSON object with the four quadrants.
// Failures yield four filled fallback strings, never an empty struct.
func (g *Generator) generateSWOT(ctx context.Context, company, researchContext string) *types.SWOT {
	prompt := fmt.Sprintf(`Generate a SWOT analysis for %s based on the research data below.

Research Context:
%s

Return a JSON object:
{
  "strengths": "4-5 key strengths, each as a complete sentence",
  "weaknesses": "4-5 weaknesses, each as a complete sentence",
  "opportunities": "4-5 opportunities, each as a complete sentence",
  "threats": "4-5 threats, each as a complete sentence"
}

Return ONLY the JSON object, no markdown, no explanations.`, company, truncate(researchContext, g.cfg.ContextLimit))

	out, err := g.callLLM(ctx, prompt,
		"You are a strategic analyst. Return ONLY a valid JSON object, no markdown, no extra text after the JSON.", 0.7)
	if err == nil {
		if obj := firstBalancedObject(out); obj != "" {
			var swot types.SWOT
			if jsonErr := json.Unmarshal([]byte(obj), &swot); jsonErr == nil && swot.Strengths != "" {
				swot.Strengths = CleanText(swot.Strengths)
				swot.Weaknesses = CleanText(swot.Weaknesses)
				swot.Opportunities = CleanText(swot.Opportunities)
				swot.Threats = CleanText(swot.Threats)
				return &swot
			}
		}
	} else {
		logging.Get(logging.CategoryPlan).Warn("SWOT generation failed, using fallback: %v", err)
	}
	return fallbackSWOT()
}

// keyPeople prefers extracted entities; when none were found it asks the LLM
// for a JSON array of people. Capped at five either way.
func (g *Generator) keyPeople(ctx context.Context, company, researchContext string, ents types.Entities, sources []types.SourceReference) []types.Person {
	if people := peopleFromEntities(ents, sources); len(people) > 0 {
		return people
	}

	prompt := fmt.Sprintf(`Extract key people (executives, leaders) for %s from the research data below.

Research Context:
%s

Return a JSON array: [{"name": "Jane Doe", "title": "CEO", "source": "url"}]

Return ONLY the JSON array, no markdown, no explanations.`, company, truncate(researchContext, g.cfg.ContextLimit))

	out, err := g.callLLM(ctx, prompt,
		"You are a business analyst extracting executive information. Return ONLY a valid JSON array.", 0.5)
	if err != nil {
		return nil
	}
	arr := firstBalancedArray(out)
	if arr == "" {
		return nil
	}
	var people []types.Person
	if err := json.Unmarshal([]byte(arr), &people); err != nil {
		return nil
	}
	if len(people) > 5 {
		people = people[:5]
	}
	return people
}

// repairTruncatedSections regenerates any text section the truncation
// detector flags. Each regeneration fails independently; a failed repair
// keeps the truncated text rather than discarding the section.
func (g *Generator) repairTruncatedSections(ctx context.Context, p *types.AccountPlan, researchContext, entJSON string) {
	for _, spec := range textSections {
		text := p.Sections[spec.key]
		if !LooksTruncated(text, true) || IsFallback(text) {
			continue
		}
		logging.Plan("section %s looks truncated, regenerating", spec.key)
		fresh, err := g.generateSection(ctx, spec, p.CompanyName, researchContext, entJSON)
		if err != nil {
			logging.Get(logging.CategoryPlan).Warn("regeneration of %s failed, keeping original: %v", spec.key, err)
			p.Sections[spec.key] = EnsureTerminal(text)
			continue
		}
		p.Sections[spec.key] = fresh
	}
	if final := p.Sections[types.SectionFinalAccountPlan]; LooksTruncated(final, true) && !IsFallback(final) {
		p.Sections[types.SectionFinalAccountPlan] = g.generateFinalSection(ctx, p.CompanyName, p)
	}
}

// ===== LLM CALL POLICY =====

// callLLM runs one generation with per-kind retry schedules: rate limits
// back off 2s/4s/8s up to three times, network errors 2s/4s up to twice.
// Truncation and safety blocks return to the caller untouched.
func (g *Generator) callLLM(ctx context.Context, prompt, system string, temperature float64) (string, error) {
	rateRetries, netRetries := 0, 0
	for {
		out, err := g.llm.Generate(ctx, prompt, core.GenerateOptions{
			Temperature:     temperature,
			MaxOutputTokens: g.cfg.MaxOutputTokens,
			SystemPrompt:    system,
		})
		if err == nil {
			return out, nil
		}

		var wait time.Duration
		switch {
		case errors.Is(err, core.ErrRateLimit) && rateRetries < 3:
			rateRetries++
			wait = g.backoff(rateRetries)
		case errors.Is(err, core.ErrNetwork) && netRetries < 2:
			netRetries++
			wait = g.backoff(netRetries)
		default:
			return "", err
		}

		logging.LLMDebug("generation retry after %v: %v", wait, err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("plan: %w: %v", core.ErrNetwork, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// ===== STRUCTURED SECTIONS =====

// financialSummary builds the financial metrics from extracted entities.
// Absent metrics are simply omitted.
func financialSummary(ents types.Entities, sources []types.SourceReference) map[string]types.FinancialFact {
	confidences := map[string]float64{
		types.EntityRevenue:   0.85,
		types.EntityProfit:    0.80,
		types.EntityEmployees: 0.75,
		types.EntityMarketCap: 0.80,
	}
	urls := sourceURLs(sources, 3)

	out := make(map[string]types.FinancialFact)
	for _, kind := range []string{types.EntityRevenue, types.EntityProfit, types.EntityEmployees, types.EntityMarketCap} {
		if v := ents.First(kind); v != "" {
			out[kind] = types.FinancialFact{Value: v, Source: urls, Confidence: confidences[kind]}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// peopleFromEntities parses "Name, Title" entity strings into Person records.
func peopleFromEntities(ents types.Entities, sources []types.SourceReference) []types.Person {
	sourceURL := ""
	if urls := sourceURLs(sources, 1); len(urls) > 0 {
		sourceURL = urls[0]
	}

	var people []types.Person
	for _, raw := range ents[types.EntityPeople] {
		parts := strings.SplitN(raw, ",", 2)
		p := types.Person{Name: strings.TrimSpace(parts[0]), Source: sourceURL}
		if len(parts) == 2 {
			p.Title = strings.TrimSpace(parts[1])
		}
		if p.Name == "" {
			continue
		}
		people = append(people, p)
		if len(people) == 5 {
			break
		}
	}
	return people
}

func competitorRefs(ents types.Entities, sources []types.SourceReference) []types.CompetitorRef {
	sourceURL := ""
	if urls := sourceURLs(sources, 1); len(urls) > 0 {
		sourceURL = urls[0]
	}

	var refs []types.CompetitorRef
	for _, name := range ents[types.EntityCompetitors] {
		refs = append(refs, types.CompetitorRef{
			Name:   name,
			Reason: "Competitor in the same market",
			Source: sourceURL,
		})
		if len(refs) == 5 {
			break
		}
	}
	return refs
}

func sourceURLs(sources []types.SourceReference, max int) []string {
	var urls []string
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		urls = append(urls, s.URL)
		if len(urls) == max {
			break
		}
	}
	return urls
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
