package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"planforge/internal/entities"
	"planforge/internal/logging"
	"planforge/internal/types"
)

// Aliases from conversational section names to plan keys.
var sectionAliases = map[string]string{
	"overview":                  types.SectionCompanyOverview,
	"company overview":          types.SectionCompanyOverview,
	"market":                    types.SectionMarketSummary,
	"market summary":            types.SectionMarketSummary,
	"insights":                  types.SectionKeyInsights,
	"key insights":              types.SectionKeyInsights,
	"pain points":               types.SectionPainPoints,
	"products":                  types.SectionProductsServices,
	"services":                  types.SectionProductsServices,
	"products and services":     types.SectionProductsServices,
	"opportunities":             types.SectionOpportunities,
	"competitors":               types.SectionCompetitorAnalysis,
	"competitor analysis":       types.SectionCompetitorAnalysis,
	"competition":               types.SectionCompetitorAnalysis,
	"strategy":                  types.SectionStrategicRecommendations,
	"recommendations":           types.SectionStrategicRecommendations,
	"strategic recommendations": types.SectionStrategicRecommendations,
	"swot":                      types.SectionSWOT,
	"strengths":                 types.SectionSWOT,
	"weaknesses":                types.SectionSWOT,
	"threats":                   types.SectionSWOT,
	"executive summary":         types.SectionFinalAccountPlan,
	"final plan":                types.SectionFinalAccountPlan,
	"summary":                   types.SectionFinalAccountPlan,
}

// Field keywords a user can add as custom plan entries.
var fieldKeywords = []string{
	"ceo", "cto", "founder", "revenue", "headquarters", "employees", "headcount",
}

var (
	reAddField    = regexp.MustCompile(`(?i)add (?:a |new )?(?:field|section)(?: (?:for|about|called|named))?\s+([\w ]+)`)
	reRemoveField = regexp.MustCompile(`(?i)(?:remove|delete|drop) (?:the )?(?:field|section)?\s*([\w ]+)`)
)

var regenPlanPhrases = []string{
	"regenerate the plan", "regenerate account plan", "regenerate the account plan",
	"rebuild the plan", "redo the plan", "start over",
}

// updateWorkflow edits an existing account plan: regenerate sections, add
// custom fields, or remove sections. Multiple operations may arrive in one
// message ("update the overview and remove the swot").
func (c *Controller) updateWorkflow(ctx context.Context, message, sessionID string) (*Response, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "updateWorkflow")
	defer timer.Stop()

	sess := c.cfg.Sessions.Get(sessionID)
	if sess.Plan == nil {
		return &Response{
			Text: "There's no account plan to update yet. Ask me to research a company first, for example: \"Research Acme Corporation\".",
		}, nil
	}
	lower := strings.ToLower(message)

	if containsAny(lower, regenPlanPhrases) {
		return c.buildPlan(ctx, sessionID, sess.CompanyName)
	}

	researchContext := buildResearchContext(sess.ResearchData, sess.CompanyName)
	ents := entities.New().Extract(researchContext)

	var done, failed []string
	for _, op := range splitOperations(lower) {
		target, err := c.applyUpdate(ctx, sess.Plan, op, researchContext, ents)
		if err != nil {
			logging.AgentWarn("update %q: %v", op, err)
			failed = append(failed, target)
			continue
		}
		if target != "" {
			done = append(done, target)
		}
	}

	if len(done) == 0 && len(failed) == 0 {
		return &Response{
			Text: "I couldn't tell which section to change. Try \"update the company overview\" or \"add a field for CEO\".",
			Plan: sess.Plan,
		}, nil
	}

	if len(done) > 0 {
		sess.Plan.LastUpdated = time.Now().UTC()
	}
	c.cfg.Sessions.SetAccountPlan(sessionID, sess.Plan)
	if c.cfg.PlanStore != nil {
		userID := sess.UserID
		if userID == "" {
			userID = sessionID
		}
		if err := c.cfg.PlanStore.Save(ctx, userID, sessionID, sess.Plan); err != nil {
			logging.AgentWarn("persisting updated plan: %v", err)
		}
	}

	var parts []string
	if len(done) > 0 {
		parts = append(parts, fmt.Sprintf("Updated: %s.", strings.Join(done, ", ")))
	}
	if len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("Couldn't update: %s.", strings.Join(failed, ", ")))
	}
	return &Response{Text: strings.Join(parts, " "), Plan: sess.Plan}, nil
}

// applyUpdate performs a single edit operation and returns the human-readable
// name of what it touched.
func (c *Controller) applyUpdate(ctx context.Context, p *types.AccountPlan, op, researchContext string, ents types.Entities) (string, error) {
	// Removal first: "remove the swot section".
	if containsAny(op, []string{"remove", "delete", "drop"}) {
		if key, name := resolveSection(op); key != "" {
			removeSection(p, key)
			return name + " (removed)", nil
		}
		if m := reRemoveField.FindStringSubmatch(op); m != nil {
			name := strings.TrimSpace(m[1])
			if key, resolved := resolveSection(name); key != "" {
				removeSection(p, key)
				return resolved + " (removed)", nil
			}
			delete(p.Sections, fieldKey(name))
			return name + " (removed)", nil
		}
		return op, fmt.Errorf("agent: no removable section in %q", op)
	}

	// Additions: "add a field for CEO".
	if containsAny(op, addPatterns) {
		field := ""
		if m := reAddField.FindStringSubmatch(op); m != nil {
			field = strings.TrimSpace(m[1])
		} else {
			for _, kw := range fieldKeywords {
				if strings.Contains(op, kw) {
					field = kw
					break
				}
			}
		}
		if field == "" {
			return op, fmt.Errorf("agent: no field name in %q", op)
		}
		value, err := c.cfg.Planner.GenerateField(ctx, p.CompanyName, field, researchContext)
		if err != nil {
			return field, fmt.Errorf("agent: generate field %s: %w", field, err)
		}
		p.Sections[fieldKey(field)] = value
		return field, nil
	}

	// Everything else is a regeneration of a named section.
	key, name := resolveSection(op)
	if key == "" {
		return "", fmt.Errorf("agent: no section named in %q", op)
	}
	if err := c.cfg.Planner.RegenerateSection(ctx, p, key, researchContext, ents); err != nil {
		return name, err
	}
	return name, nil
}

// splitOperations breaks a compound instruction into individual edits.
func splitOperations(msg string) []string {
	parts := []string{msg}
	for _, sep := range []string{" and ", " then ", ", ", " & "} {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}
	var out []string
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), ",.;")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveSection finds the plan key a message fragment refers to. Longer
// aliases win so "competitor analysis" is not shadowed by "analysis".
func resolveSection(op string) (key, name string) {
	best := ""
	for alias, k := range sectionAliases {
		if strings.Contains(op, alias) && len(alias) > len(best) {
			best, key = alias, k
		}
	}
	if key == "" {
		return "", ""
	}
	return key, best
}

func removeSection(p *types.AccountPlan, key string) {
	if key == types.SectionSWOT {
		p.SWOT = nil
		return
	}
	delete(p.Sections, key)
}

func fieldKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
