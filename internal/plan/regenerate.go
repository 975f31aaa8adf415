package plan

import (
	"context"
	"fmt"

	"planforge/internal/core"
	"planforge/internal/logging"
	"planforge/internal/types"
)

// RegenerateSection rebuilds one section of an existing plan in place. The
// section gets a fresh prompt and fails independently of the rest of the
// plan; unknown custom fields get a generic field prompt.
func (g *Generator) RegenerateSection(ctx context.Context, p *types.AccountPlan, key, researchContext string, ents types.Entities) error {
	if p == nil {
		return fmt.Errorf("plan: %w: no plan to update", core.ErrInvalidInput)
	}
	if g.llm == nil || !g.llm.Available() {
		return fmt.Errorf("plan: %w: LLM unavailable for regeneration", core.ErrConfig)
	}

	entJSON := ents.JSON(g.cfg.EntityLimit)

	switch key {
	case types.SectionSWOT:
		p.SWOT = g.generateSWOT(ctx, p.CompanyName, researchContext)
	case types.SectionFinalAccountPlan:
		p.Sections[key] = g.generateFinalSection(ctx, p.CompanyName, p)
	default:
		spec, ok := findSection(key)
		if !ok {
			spec = sectionSpec{
				key:         key,
				temperature: 0.7,
				requirement: fmt.Sprintf("a concise, factual %q entry (1-3 sentences) for the account plan", key),
			}
		}
		text, err := g.generateSection(ctx, spec, p.CompanyName, researchContext, entJSON)
		if err != nil {
			return fmt.Errorf("plan: regenerate %s: %w", key, err)
		}
		p.Sections[key] = text
	}

	p.LastUpdated = g.now().UTC()
	logging.Plan("section %s regenerated for %s", key, p.CompanyName)
	return nil
}

// GenerateField produces the value for a user-added custom field such as
// "ceo" or "headquarters" from the research context.
func (g *Generator) GenerateField(ctx context.Context, company, field, researchContext string) (string, error) {
	if g.llm == nil || !g.llm.Available() {
		return "", fmt.Errorf("plan: %w: LLM unavailable", core.ErrConfig)
	}

	prompt := fmt.Sprintf(`From the research data below, answer in one short sentence: what is the %s of %s?

Research Context:
%s

If the research does not say, reply exactly: Not found in current research data.
Return ONLY the answer text.`, fieldQuestion(field), company, truncate(researchContext, g.cfg.ContextLimit))

	out, err := g.callLLM(ctx, prompt,
		"You are a precise research assistant. Answer only from the provided data.", 0.3)
	if err != nil {
		return "", err
	}
	cleaned := CleanText(out)
	if cleaned == "" {
		return "", fmt.Errorf("plan: empty field value for %s", field)
	}
	return EnsureTerminal(cleaned), nil
}

// fieldQuestion maps a field key to the phrasing used in its prompt.
func fieldQuestion(field string) string {
	switch field {
	case "ceo":
		return "chief executive officer (name)"
	case "cto":
		return "chief technology officer (name)"
	case "founder":
		return "founder (name)"
	case "revenue":
		return "most recently reported revenue"
	case "headquarters":
		return "headquarters location"
	case "employees", "headcount":
		return "employee headcount"
	default:
		return field
	}
}

func findSection(key string) (sectionSpec, bool) {
	for _, spec := range textSections {
		if spec.key == key {
			return spec, true
		}
	}
	return sectionSpec{}, false
}
