package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/cache"
	"planforge/internal/core"
	"planforge/internal/retrieval"
	"planforge/internal/router"
	"planforge/internal/session"
	"planforge/internal/types"
)

// ===== fakes =====

type fakeRetriever struct {
	chunks   []types.Chunk
	err      error
	requests []retrieval.Request
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req retrieval.Request) ([]types.Chunk, error) {
	f.requests = append(f.requests, req)
	return f.chunks, f.err
}

type fakePlanner struct {
	generateCalls int
	regenerated   []string
	fieldValue    string
}

func (f *fakePlanner) Generate(ctx context.Context, company, researchContext string, ents types.Entities, sources []types.SourceReference) *types.AccountPlan {
	f.generateCalls++
	p := types.NewAccountPlan(company)
	for _, key := range types.TextSectionOrder {
		p.Sections[key] = fmt.Sprintf("Generated %s for %s.", key, company)
	}
	p.SWOT = &types.SWOT{Strengths: "Strong.", Weaknesses: "Weak.", Opportunities: "Open.", Threats: "Risky."}
	p.Sources = sources
	p.LastUpdated = time.Now().UTC()
	return p
}

func (f *fakePlanner) RegenerateSection(ctx context.Context, p *types.AccountPlan, key, researchContext string, ents types.Entities) error {
	f.regenerated = append(f.regenerated, key)
	if key == types.SectionSWOT {
		p.SWOT = &types.SWOT{Strengths: "Regenerated."}
		return nil
	}
	p.Sections[key] = "Regenerated " + key + "."
	return nil
}

func (f *fakePlanner) GenerateField(ctx context.Context, company, field, researchContext string) (string, error) {
	if f.fieldValue == "" {
		return "", fmt.Errorf("planner: %w", core.ErrConfig)
	}
	return f.fieldValue, nil
}

func (f *fakePlanner) FallbackPlan(company, researchContext string, ents types.Entities, sources []types.SourceReference) *types.AccountPlan {
	return types.NewAccountPlan(company)
}

type fakeConflicts struct {
	conflicts []types.Conflict
}

func (f *fakeConflicts) Detect(chunks []types.Chunk) []types.Conflict { return f.conflicts }

type fakeChatLLM struct {
	reply     string
	calls     int
	available bool
}

func (f *fakeChatLLM) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	f.calls++
	return f.reply, nil
}

func (f *fakeChatLLM) Available() bool { return f.available }

// ===== helpers =====

func webChunk(id, url, text string) types.Chunk {
	return types.Chunk{
		ID:   id,
		Text: text,
		Meta: types.ChunkMeta{
			URL:         url,
			Title:       "Acme Corp report",
			Domain:      "reuters.com",
			SourceKind:  types.SourceWebSearch,
			Company:     "acme corp",
			RetrievedAt: time.Now().UTC(),
		},
		Confidence: 0.8,
	}
}

func revenueConflict(kind types.SourceKind) types.Conflict {
	return types.Conflict{
		Topic:  "revenue",
		Values: []string{"$85 million", "$120 million"},
		Sources: []types.ConflictSource{
			{Value: "$85 million", DocumentID: "a", SourceKind: kind, Origin: "https://a.com"},
			{Value: "$120 million", DocumentID: "b", SourceKind: kind, Origin: "https://b.com"},
		},
		Severity: types.SeverityHigh,
	}
}

type fixture struct {
	controller *Controller
	sessions   *session.Memory
	retriever  *fakeRetriever
	planner    *fakePlanner
	conflicts  *fakeConflicts
	llm        *fakeChatLLM
}

func newFixture() *fixture {
	f := &fixture{
		sessions: session.NewMemory(),
		retriever: &fakeRetriever{chunks: []types.Chunk{
			webChunk("c1", "https://reuters.com/acme", "Acme Corp reported revenue of $120 million."),
			webChunk("c2", "https://acme.com/about", "Acme Corp builds industrial anvils in Ohio."),
		}},
		planner:   &fakePlanner{fieldValue: "Jane Doe is the CEO."},
		conflicts: &fakeConflicts{},
		llm:       &fakeChatLLM{reply: "I can research companies for you.", available: true},
	}
	f.controller = New(Config{
		Sessions:  f.sessions,
		Retriever: f.retriever,
		Planner:   f.planner,
		Conflicts: f.conflicts,
		Router:    router.New(cache.New(100, time.Hour), time.Hour),
		LLM:       f.llm,
	})
	return f
}

// ===== intent classification =====

func TestClassifyIntent(t *testing.T) {
	f := newFixture()
	sid := f.sessions.Create("")

	tests := []struct {
		name    string
		message string
		prep    func()
		want    types.Intent
	}{
		{"research request", "Research Acme Corporation", nil, types.IntentResearchCompany},
		{"generate plan phrase", "generate account plan for Acme", nil, types.IntentResearchCompany},
		{"greeting", "hello there", nil, types.IntentGeneral},
		{"edit verbs without plan still route to update", "update me on the latest", nil, types.IntentUpdateSection},
		{
			"edit with plan",
			"update the company overview",
			func() { f.sessions.SetAccountPlan(sid, types.NewAccountPlan("Acme")) },
			types.IntentUpdateSection,
		},
		{
			"add field with plan",
			"add a field for CEO",
			nil,
			types.IntentUpdateSection,
		},
		{
			"deep check with company set",
			"please verify those numbers",
			func() { f.sessions.SetCompanyName(sid, "Acme Corp") },
			types.IntentResearchCompany,
		},
		{
			"pending conflict decision forces clarify",
			"research something else entirely",
			func() { f.sessions.SetAgentState(sid, types.StateAwaitingConflictDecision) },
			types.IntentClarify,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prep != nil {
				tt.prep()
			}
			got := f.controller.classifyIntent(tt.message, f.sessions.Get(sid))
			assert.Equal(t, tt.want, got)
		})
	}
}

// ===== company extraction =====

func TestExtractCompanyName(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Research Acme Corporation", "Acme Corporation"},
		{"research on Globex please", "Globex"},
		{"Generate an account plan for Initech Industries", "Initech Industries"},
		{"tell me about Stark Enterprises", "Stark Enterprises"},
		{"analyze Wayne Industries and generate an account plan", "Wayne Industries"},
		{"hello", ""},
		{"research it", ""},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCompanyName(tt.message))
		})
	}
}

// ===== research workflow =====

func TestResearchBuildsPlan(t *testing.T) {
	f := newFixture()

	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	assert.Equal(t, "Acme Corp", resp.Plan.CompanyName)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 1, f.planner.generateCalls)
	assert.NotEmpty(t, resp.Progress)

	sess := f.sessions.Get(resp.SessionID)
	require.NotNil(t, sess)
	assert.Equal(t, "Acme Corp", sess.CompanyName)
	assert.NotNil(t, sess.Plan)
	assert.Equal(t, types.StateIdle, sess.State)
	assert.Len(t, sess.ResearchData, 2)
}

func TestResearchWithoutCompanyAsks(t *testing.T) {
	f := newFixture()

	resp, err := f.controller.Process(context.Background(), "research", "")
	require.NoError(t, err)
	assert.Nil(t, resp.Plan)
	assert.Contains(t, resp.Text, "Which company")
	assert.Equal(t, 0, f.planner.generateCalls)
}

func TestResearchFailureIsGraceful(t *testing.T) {
	f := newFixture()
	f.retriever.err = fmt.Errorf("search: %w", core.ErrNetwork)

	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)
	assert.Nil(t, resp.Plan)
	assert.Contains(t, resp.Text, "couldn't gather research")
	assert.Equal(t, 0, f.planner.generateCalls)
}

type blockingRetriever struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	chunks  []types.Chunk
}

func (b *blockingRetriever) Retrieve(ctx context.Context, req retrieval.Request) ([]types.Chunk, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return b.chunks, nil
}

func TestConcurrentIdenticalRetrievalsCollapse(t *testing.T) {
	f := newFixture()
	br := &blockingRetriever{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
		chunks:  f.retriever.chunks,
	}
	f.controller.cfg.Retriever = br

	req := retrieval.Request{Query: "acme corp overview", Company: "Acme Corp", UserID: "u1"}

	var wg sync.WaitGroup
	results := make([][]types.Chunk, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.controller.retrieve(context.Background(), req)
		}(i)
	}

	<-br.started
	// Let the second caller park on the in-flight execution.
	time.Sleep(100 * time.Millisecond)
	close(br.release)
	wg.Wait()

	br.mu.Lock()
	defer br.mu.Unlock()
	assert.Equal(t, 1, br.calls, "both callers share one pipeline run")
	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 2)
	}
}

func TestConflictPausesResearch(t *testing.T) {
	f := newFixture()
	f.conflicts.conflicts = []types.Conflict{revenueConflict(types.SourceWebSearch)}

	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)
	assert.Nil(t, resp.Plan)
	require.NotEmpty(t, resp.Questions)
	assert.Contains(t, resp.Questions[0], "revenue")
	assert.Equal(t, 0, f.planner.generateCalls)

	sess := f.sessions.Get(resp.SessionID)
	assert.Equal(t, types.StateAwaitingConflictDecision, sess.State)

	// "proceed" resumes and produces the plan from the existing research.
	resp2, err := f.controller.Process(context.Background(), "proceed", resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, resp2.Plan)
	assert.Equal(t, 1, f.planner.generateCalls)
	assert.Equal(t, types.StateIdle, f.sessions.Get(resp.SessionID).State)
}

func TestUploadedOnlyConflictsDoNotPause(t *testing.T) {
	f := newFixture()
	f.conflicts.conflicts = []types.Conflict{revenueConflict(types.SourceUploadedDocument)}

	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)
	assert.NotNil(t, resp.Plan)
	assert.Empty(t, resp.Questions)
}

func TestSkipConflictsCueBypassesGate(t *testing.T) {
	f := newFixture()
	f.conflicts.conflicts = []types.Conflict{revenueConflict(types.SourceWebSearch)}

	resp, err := f.controller.Process(context.Background(), "Research Acme Corp and skip conflicts", "")
	require.NoError(t, err)
	assert.NotNil(t, resp.Plan)
	assert.Empty(t, resp.Questions)
}

func TestVerifyCueTriggersSecondRetrieval(t *testing.T) {
	f := newFixture()
	f.conflicts.conflicts = []types.Conflict{revenueConflict(types.SourceWebSearch)}

	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Questions)

	resp2, err := f.controller.Process(context.Background(), "verify", resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, resp2.Plan)
	require.Len(t, f.retriever.requests, 2)
	assert.Contains(t, f.retriever.requests[1].Query, "revenue")
}

func TestCompanySwitchClearsResearch(t *testing.T) {
	f := newFixture()

	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)
	require.Len(t, f.sessions.Get(resp.SessionID).ResearchData, 2)

	f.retriever.chunks = []types.Chunk{webChunk("g1", "https://globex.com", "Globex Industries makes dynamite.")}
	_, err = f.controller.Process(context.Background(), "Research Globex Industries", resp.SessionID)
	require.NoError(t, err)

	sess := f.sessions.Get(resp.SessionID)
	assert.Equal(t, "Globex Industries", sess.CompanyName)
	assert.Len(t, sess.ResearchData, 1, "old company's research is cleared")
}

// ===== update workflow =====

func TestUpdateSection(t *testing.T) {
	f := newFixture()
	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)

	resp2, err := f.controller.Process(context.Background(), "update the company overview", resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, resp2.Plan)
	assert.Equal(t, []string{types.SectionCompanyOverview}, f.planner.regenerated)
	assert.Equal(t, "Regenerated company_overview.", resp2.Plan.Sections[types.SectionCompanyOverview])
}

func TestUpdateMultipleOperations(t *testing.T) {
	f := newFixture()
	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)

	resp2, err := f.controller.Process(context.Background(),
		"regenerate the swot and remove the competitor analysis", resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, resp2.Plan)
	assert.Equal(t, "Regenerated.", resp2.Plan.SWOT.Strengths)
	_, hasCompetitors := resp2.Plan.Sections[types.SectionCompetitorAnalysis]
	assert.False(t, hasCompetitors)
}

func TestAddCustomField(t *testing.T) {
	f := newFixture()
	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)

	resp2, err := f.controller.Process(context.Background(), "add a field for ceo", resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, resp2.Plan)
	assert.Equal(t, "Jane Doe is the CEO.", resp2.Plan.Sections["ceo"])
}

func TestRemoveSWOT(t *testing.T) {
	f := newFixture()
	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)
	require.NotNil(t, f.sessions.Get(resp.SessionID).Plan.SWOT)

	resp2, err := f.controller.Process(context.Background(), "remove the swot section", resp.SessionID)
	require.NoError(t, err)
	assert.Nil(t, resp2.Plan.SWOT)
}

func TestEditAdvancesLastUpdated(t *testing.T) {
	f := newFixture()
	resp, err := f.controller.Process(context.Background(), "Research Acme Corp", "")
	require.NoError(t, err)

	stale := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, msg := range []string{"remove the swot section", "add a field for ceo", "update the overview"} {
		f.sessions.Get(resp.SessionID).Plan.LastUpdated = stale

		resp2, err := f.controller.Process(context.Background(), msg, resp.SessionID)
		require.NoError(t, err)
		require.NotNil(t, resp2.Plan)
		assert.True(t, resp2.Plan.LastUpdated.After(stale), msg)
	}
}

func TestUpdateWithoutPlan(t *testing.T) {
	f := newFixture()
	sid := f.sessions.Create("")
	f.sessions.SetAccountPlan(sid, nil)

	resp, err := f.controller.updateWorkflow(context.Background(), "update the overview", sid)
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "no account plan")
}

// ===== general workflow =====

func TestGeneralGreeting(t *testing.T) {
	f := newFixture()
	resp, err := f.controller.Process(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "which company to research")
	assert.Equal(t, 0, f.llm.calls, "greetings answer without the LLM")
}

func TestGeneralFallsBackToLLM(t *testing.T) {
	f := newFixture()
	resp, err := f.controller.Process(context.Background(), "what's the weather like on mars", "")
	require.NoError(t, err)
	assert.Equal(t, "I can research companies for you.", resp.Text)
	assert.Equal(t, 1, f.llm.calls)
}

func TestGeneralLLMUnavailableShowsHelp(t *testing.T) {
	f := newFixture()
	f.llm.available = false
	resp, err := f.controller.Process(context.Background(), "what's the weather like on mars", "")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "account plan")
	assert.Equal(t, 0, f.llm.calls)
}

// ===== helpers =====

func TestBuildResearchContextUploadedFirst(t *testing.T) {
	web := webChunk("w1", "https://reuters.com/acme", "Acme Corp revenue grew.")
	up := types.Chunk{
		ID:   "u1",
		Text: "Internal Acme Corp strategy memo.",
		Meta: types.ChunkMeta{SourceKind: types.SourceUploadedDocument, SourceFile: "memo.pdf", Company: "acme corp"},
	}
	got := buildResearchContext([]types.Chunk{web, up}, "Acme Corp")
	assert.Less(t, strings.Index(got, "strategy memo"), strings.Index(got, "revenue grew"))
}

func TestBuildResearchContextFiltersUnrelated(t *testing.T) {
	relevant := webChunk("w1", "https://reuters.com/acme", "Acme Corp revenue grew.")
	unrelated := webChunk("w2", "https://example.com", "Totally different business news.")
	unrelated.Meta.Title = "Unrelated"
	got := buildResearchContext([]types.Chunk{relevant, unrelated}, "Acme Corp")
	assert.Contains(t, got, "revenue grew")
	assert.NotContains(t, got, "different business")
}

func TestSourcesFromChunksDeduplicates(t *testing.T) {
	chunks := []types.Chunk{
		webChunk("c1", "https://acme.com/about", "one"),
		webChunk("c2", "https://acme.com/about", "two"),
		webChunk("c3", "https://reuters.com/news/acme", "three"),
	}
	refs := sourcesFromChunks(chunks)
	require.Len(t, refs, 2)
	assert.Equal(t, "news", refs[1].Kind)
}

func TestSplitOperations(t *testing.T) {
	got := splitOperations("update the overview and remove the swot, then add a field for ceo")
	assert.Equal(t, []string{
		"update the overview", "remove the swot", "add a field for ceo",
	}, got)
}
