// Package types provides shared type definitions used across planforge packages.
// This package exists to break import cycles between the agent, the retrieval
// pipeline, and the plan generator. Types here are foundational data structures
// with no complex dependencies.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// SOURCE PROVENANCE
// =============================================================================

// SourceKind identifies where a chunk of research text came from.
// The set is closed: code switching on SourceKind should handle all three.
type SourceKind string

const (
	SourceUploadedDocument SourceKind = "uploaded_document"
	SourceWebSearch        SourceKind = "web_search"
	SourceFallback         SourceKind = "fallback"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceUploadedDocument, SourceWebSearch, SourceFallback:
		return true
	}
	return false
}

// SourceReference is a citation attached to a generated plan.
type SourceReference struct {
	URL         string `json:"url"`
	Kind        string `json:"type"` // news, pdf, website, api
	ExtractedAt string `json:"extracted_at"`
}

// =============================================================================
// CHUNKS AND SCORES
// =============================================================================

// Score holds the per-dimension quality scores for a chunk, each in [0,1],
// plus the weighted total. Total must equal the weighted sum of dimensions.
type Score struct {
	Freshness   float64 `json:"freshness"`
	Credibility float64 `json:"credibility"`
	Quality     float64 `json:"quality"`
	Relevance   float64 `json:"relevance"`
	Readability float64 `json:"readability"`
	Total       float64 `json:"total_score"`
}

// Score dimension weights. Total = sum(dimension * weight).
const (
	WeightFreshness   = 0.15
	WeightCredibility = 0.25
	WeightQuality     = 0.20
	WeightRelevance   = 0.30
	WeightReadability = 0.10
)

// WeightedTotal computes the weighted sum of the dimensions.
func (s Score) WeightedTotal() float64 {
	return s.Freshness*WeightFreshness +
		s.Credibility*WeightCredibility +
		s.Quality*WeightQuality +
		s.Relevance*WeightRelevance +
		s.Readability*WeightReadability
}

// ChunkMeta carries provenance and shape metadata for a chunk.
type ChunkMeta struct {
	URL         string     `json:"url,omitempty"`
	Title       string     `json:"title,omitempty"`
	Domain      string     `json:"domain,omitempty"`
	SourceKind  SourceKind `json:"source_kind"`
	SourceFile  string     `json:"source_file,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	Company     string     `json:"company,omitempty"`
	Query       string     `json:"query,omitempty"`
	Language    string     `json:"language,omitempty"`
	RetrievedAt time.Time  `json:"retrieved_at"`
	ChunkIndex  int        `json:"chunk_index"`
	TotalChunks int        `json:"total_chunks"`
	CharCount   int        `json:"char_count"`
	WordCount   int        `json:"word_count"`
}

// DocumentID returns the identifier used to group chunks by origin document:
// source file if present, else URL, else empty (caller assigns a synthetic id).
func (m ChunkMeta) DocumentID() string {
	if m.SourceFile != "" {
		return m.SourceFile
	}
	return m.URL
}

// Chunk is an ordered unit of retrieved text with provenance, a score, and
// optional LLM enrichment. Once written to the vector store a chunk is never
// mutated.
type Chunk struct {
	ID         string    `json:"chunk_id"`
	Text       string    `json:"text"`
	Meta       ChunkMeta `json:"metadata"`
	Score      *Score    `json:"score,omitempty"`
	Confidence float64   `json:"confidence"`
	Summary    string    `json:"summary,omitempty"`
	KeyFacts   []string  `json:"key_facts,omitempty"`
}

// =============================================================================
// ENTITIES
// =============================================================================

// Entity kinds extracted from research text.
const (
	EntityRevenue     = "revenue"
	EntityProfit      = "profit"
	EntityEmployees   = "employees"
	EntityMarketCap   = "market_cap"
	EntityProducts    = "products"
	EntityServices    = "services"
	EntityCompetitors = "competitors"
	EntityLocations   = "locations"
	EntityPeople      = "people"
	EntityCompanyName = "company_name"
	EntityFounded     = "founded"
)

// Entities maps an entity kind to its ordered, deduplicated values.
// Absent kinds map to nil; duplicates are filtered case-insensitively.
type Entities map[string][]string

// Add appends value to kind unless an equal value (case-insensitive) exists.
func (e Entities) Add(kind, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	lower := strings.ToLower(value)
	for _, v := range e[kind] {
		if strings.ToLower(v) == lower {
			return
		}
	}
	e[kind] = append(e[kind], value)
}

// First returns the first value for kind, or "".
func (e Entities) First(kind string) string {
	if vs := e[kind]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// JSON returns the entities as compact JSON, truncated to maxLen characters.
// Used to keep entity context inside prompt budgets.
func (e Entities) JSON(maxLen int) string {
	data, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	s := string(data)
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// =============================================================================
// CONFLICTS
// =============================================================================

// Severity classifies how serious a detected conflict is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ConflictSource records one document's claim for a conflicted topic.
type ConflictSource struct {
	Value      string     `json:"value"`
	DocumentID string     `json:"document_id"`
	SourceKind SourceKind `json:"source_kind"`
	Origin     string     `json:"origin"` // source file or URL
}

// Conflict is a disagreement about one factual topic across >= 2 documents.
// Invariant: len(Values) >= 2 and the sources span >= 2 distinct documents.
type Conflict struct {
	Topic    string           `json:"topic"`
	Values   []string         `json:"conflicting_values"`
	Sources  []ConflictSource `json:"sources"`
	Severity Severity         `json:"severity"`
}

// =============================================================================
// ACCOUNT PLAN
// =============================================================================

// Text section keys of an account plan, in generation order.
const (
	SectionCompanyOverview          = "company_overview"
	SectionMarketSummary            = "market_summary"
	SectionKeyInsights              = "key_insights"
	SectionPainPoints               = "pain_points"
	SectionOpportunities            = "opportunities"
	SectionProductsServices         = "products_services"
	SectionCompetitorAnalysis       = "competitor_analysis"
	SectionSWOT                     = "swot"
	SectionStrategicRecommendations = "strategic_recommendations"
	SectionFinalAccountPlan         = "final_account_plan"
)

// TextSectionOrder is the fixed generation and rendering order for the plain
// text sections. SWOT and the structured sections are handled separately.
var TextSectionOrder = []string{
	SectionCompanyOverview,
	SectionMarketSummary,
	SectionKeyInsights,
	SectionPainPoints,
	SectionOpportunities,
	SectionProductsServices,
	SectionCompetitorAnalysis,
	SectionStrategicRecommendations,
	SectionFinalAccountPlan,
}

// SWOT holds the four fixed SWOT quadrants.
type SWOT struct {
	Strengths     string `json:"strengths"`
	Weaknesses    string `json:"weaknesses"`
	Opportunities string `json:"opportunities"`
	Threats       string `json:"threats"`
}

// FinancialFact is one metric in the financial summary with provenance.
type FinancialFact struct {
	Value      string   `json:"value"`
	Source     []string `json:"source"`
	Confidence float64  `json:"confidence"`
}

// Person is an identified key individual at the researched company.
type Person struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// CompetitorRef names one competitor with the reasoning behind it.
type CompetitorRef struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// AccountPlan is the structured artifact the pipeline produces. Sections
// holds the plain text sections (including user-added custom fields) keyed by
// section name; the structured parts have dedicated fields. A section absent
// from Sections has been removed by the user.
type AccountPlan struct {
	CompanyName      string                   `json:"company_name"`
	Sections         map[string]string        `json:"-"`
	SWOT             *SWOT                    `json:"swot,omitempty"`
	FinancialSummary map[string]FinancialFact `json:"financial_summary,omitempty"`
	KeyPeople        []Person                 `json:"key_people"`
	Competitors      []CompetitorRef          `json:"competitors"`
	Sources          []SourceReference        `json:"sources"`
	LastUpdated      time.Time                `json:"last_updated"`
}

// NewAccountPlan returns a plan with an empty sections map.
func NewAccountPlan(company string) *AccountPlan {
	return &AccountPlan{
		CompanyName: company,
		Sections:    make(map[string]string),
	}
}

// Clone returns a deep copy. Update workflows mutate a copy and swap it in.
func (p *AccountPlan) Clone() *AccountPlan {
	if p == nil {
		return nil
	}
	out := &AccountPlan{
		CompanyName: p.CompanyName,
		Sections:    make(map[string]string, len(p.Sections)),
		LastUpdated: p.LastUpdated,
	}
	for k, v := range p.Sections {
		out.Sections[k] = v
	}
	if p.SWOT != nil {
		s := *p.SWOT
		out.SWOT = &s
	}
	if p.FinancialSummary != nil {
		out.FinancialSummary = make(map[string]FinancialFact, len(p.FinancialSummary))
		for k, v := range p.FinancialSummary {
			out.FinancialSummary[k] = v
		}
	}
	out.KeyPeople = append([]Person(nil), p.KeyPeople...)
	out.Competitors = append([]CompetitorRef(nil), p.Competitors...)
	out.Sources = append([]SourceReference(nil), p.Sources...)
	return out
}

// SectionKeys returns the plan's text section keys: the fixed sections that
// are present in order, then custom fields in lexicographic-insertion order.
func (p *AccountPlan) SectionKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, k := range TextSectionOrder {
		if _, ok := p.Sections[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	for k := range p.Sections {
		if !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	return keys
}

// MarshalJSON flattens the text sections into the top-level object so the
// wire format matches the stable external contract.
func (p *AccountPlan) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Sections)+8)
	for k, v := range p.Sections {
		out[k] = v
	}
	out["company_name"] = p.CompanyName
	if p.SWOT != nil {
		out["swot"] = p.SWOT
	}
	if p.FinancialSummary != nil {
		out["financial_summary"] = p.FinancialSummary
	}
	out["key_people"] = p.KeyPeople
	out["competitors"] = p.Competitors
	out["sources"] = p.Sources
	out["last_updated"] = p.LastUpdated.UTC().Format(time.RFC3339)
	return json.Marshal(out)
}

// UnmarshalJSON restores a plan from the flattened wire format.
func (p *AccountPlan) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Sections = make(map[string]string)
	for k, v := range raw {
		switch k {
		case "company_name":
			if err := json.Unmarshal(v, &p.CompanyName); err != nil {
				return err
			}
		case "swot":
			p.SWOT = &SWOT{}
			if err := json.Unmarshal(v, p.SWOT); err != nil {
				return err
			}
		case "financial_summary":
			if err := json.Unmarshal(v, &p.FinancialSummary); err != nil {
				return err
			}
		case "key_people":
			if err := json.Unmarshal(v, &p.KeyPeople); err != nil {
				return err
			}
		case "competitors":
			if err := json.Unmarshal(v, &p.Competitors); err != nil {
				return err
			}
		case "sources":
			if err := json.Unmarshal(v, &p.Sources); err != nil {
				return err
			}
		case "last_updated":
			var ts string
			if err := json.Unmarshal(v, &ts); err != nil {
				return err
			}
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				p.LastUpdated = t
			}
		default:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				// Non-string custom value: keep the raw JSON as text.
				p.Sections[k] = string(v)
				continue
			}
			p.Sections[k] = s
		}
	}
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// AgentState is the explicit conversational state machine on a session.
// The research workflow suspends in StateAwaitingConflictDecision while the
// user decides how to resolve conflicting sources.
type AgentState string

const (
	StateIdle                     AgentState = "idle"
	StateProcessing               AgentState = "processing"
	StateAwaitingConflictDecision AgentState = "awaiting_conflict_decision"
)

// Message is one conversational turn in a session.
type Message struct {
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the agent's per-session working memory. One session is a single
// consistency domain: turns within it are serialized by the owner.
type Session struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id,omitempty"`
	CompanyName  string       `json:"company_name,omitempty"`
	Messages     []Message    `json:"messages"`
	ResearchData []Chunk      `json:"research_data"`
	Conflicts    []Conflict   `json:"conflicts"`
	Plan         *AccountPlan `json:"account_plan,omitempty"`
	State        AgentState   `json:"agent_state"`
	Questions    []string     `json:"questions_asked"`
	LLMDisabled  bool         `json:"llm_disabled"` // enrichment circuit breaker tripped
	CreatedAt    time.Time    `json:"created_at"`
}

// RecentText returns the lowercased concatenation of the last n message
// contents, used by the intent classifier for conversational context.
func (s *Session) RecentText(n int) string {
	if s == nil || len(s.Messages) == 0 {
		return ""
	}
	start := len(s.Messages) - n
	if start < 0 {
		start = 0
	}
	var parts []string
	for _, m := range s.Messages[start:] {
		parts = append(parts, strings.ToLower(m.Content))
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// JOBS
// =============================================================================

// JobStatus tracks a research job through its lifecycle.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is a deduplicated research request tracked by the query router.
type Job struct {
	ID          string      `json:"job_id"`
	Query       string      `json:"query"`
	QueryHash   string      `json:"query_hash"`
	UserID      string      `json:"user_id"`
	Company     string      `json:"company_name,omitempty"`
	Status      JobStatus   `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// =============================================================================
// INTENTS
// =============================================================================

// Intent is the classifier's label for a user message.
type Intent string

const (
	IntentResearchCompany Intent = "research_company"
	IntentUpdateSection   Intent = "update_section"
	IntentClarify         Intent = "clarify"
	IntentGeneral         Intent = "general"
)
