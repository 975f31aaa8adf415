package agent

import (
	"strings"

	"planforge/internal/types"
)

// Keyword ladders for intent classification, checked in priority order.
// Plan-editing phrasings are only meaningful once a plan exists, so the
// ladder is conditioned on session state before falling through to the
// generic research and general buckets.
var (
	addPatterns = []string{
		"add field", "add section", "add new field", "add new section",
		"add", "include", "insert field", "insert section",
	}
	addTargets     = []string{"ceo", "cto", "revenue", "field", "section", "company"}
	removePatterns = []string{
		"remove field", "remove section", "delete field", "delete section",
		"drop field", "drop section", "remove", "delete",
	}
	editPatterns = []string{
		"edit", "update", "change", "modify", "regenerate", "rewrite",
	}
	deepCheckPatterns = []string{
		"cross-check", "deeply", "verify", "check", "confirm", "prioritize",
	}
	clarifyPatterns = []string{
		"yes", "no", "clarify", "answer", "continue", "go with",
		"source a", "source b",
	}
	uploadPatterns   = []string{"uploaded", "pdf", "document", "file", "refer"}
	researchPatterns = []string{
		"research", "analyze", "company", "find", "generate", "create",
	}
	planPhrases = []string{
		"generate account plan", "account plan for", "create account plan",
		"build account plan", "make an account plan",
	}
)

// classifyIntent labels a message using keyword ladders over the message and
// the session state. Deterministic on purpose: misrouting a turn to the wrong
// workflow is worse than a slightly blunt match, and the workflows themselves
// re-parse the message for specifics.
func (c *Controller) classifyIntent(message string, sess *types.Session) types.Intent {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return types.IntentGeneral
	}

	if sess != nil && sess.State == types.StateAwaitingConflictDecision {
		return types.IntentClarify
	}

	if sess != nil && sess.Plan != nil {
		if containsAny(lower, addPatterns) && containsAny(lower, addTargets) {
			return types.IntentUpdateSection
		}
		if containsAny(lower, removePatterns) {
			return types.IntentUpdateSection
		}
		if containsAny(lower, editPatterns) {
			return types.IntentUpdateSection
		}
	}

	if sess != nil && sess.CompanyName != "" && containsAny(lower, deepCheckPatterns) {
		return types.IntentResearchCompany
	}

	if sess != nil && len(sess.Questions) > 0 && containsAny(lower, clarifyPatterns) {
		return types.IntentClarify
	}

	if containsAny(lower, uploadPatterns) && hasUploadedResearch(sess) {
		return types.IntentResearchCompany
	}

	if containsAny(lower, planPhrases) || containsAny(lower, researchPatterns) {
		return types.IntentResearchCompany
	}

	// Plan-edit verbs still route to the update workflow without an
	// existing plan; it answers with a prompt to research first.
	if containsAny(lower, editPatterns) {
		return types.IntentUpdateSection
	}
	if containsAny(lower, clarifyPatterns) {
		return types.IntentClarify
	}
	return types.IntentGeneral
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hasUploadedResearch(sess *types.Session) bool {
	if sess == nil {
		return false
	}
	for _, ch := range sess.ResearchData {
		if ch.Meta.SourceKind == types.SourceUploadedDocument {
			return true
		}
	}
	return false
}
