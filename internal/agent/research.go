package agent

import (
	"context"
	"fmt"
	"strings"

	"planforge/internal/conflict"
	"planforge/internal/entities"
	"planforge/internal/logging"
	"planforge/internal/retrieval"
	"planforge/internal/router"
	"planforge/internal/types"
)

// Phrases that resolve or pre-empt a conflict pause.
var (
	skipConflictCues = []string{
		"without conflicts", "skip conflicts", "ignore conflicts",
		"no conflicts", "proceed without",
	}
	proceedCues = []string{
		"cross-check", "deeply", "verify", "proceed", "continue", "go ahead",
	}
)

const maxConflictsShown = 3

// researchWorkflow runs the full research path: resolve the company, fetch
// and rank research, surface conflicts, then generate the account plan.
func (c *Controller) researchWorkflow(ctx context.Context, message, sessionID string) (*Response, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "researchWorkflow")
	defer timer.Stop()

	sess := c.cfg.Sessions.Get(sessionID)
	lower := strings.ToLower(message)

	company := extractCompanyName(message)
	if company == "" {
		company = sess.CompanyName
	}
	if company == "" && containsAny(lower, uploadPatterns) {
		company = companyFromUploads(sess)
	}
	if company == "" {
		return &Response{
			Text: "Which company should I research? For example: \"Research Acme Corporation\".",
		}, nil
	}

	// Switching companies invalidates prior research and any pending plan.
	if sess.CompanyName != "" && !strings.EqualFold(sess.CompanyName, company) {
		logging.Agent("session %s switching company %q -> %q", sessionID, sess.CompanyName, company)
		c.cfg.Sessions.ClearResearch(sessionID)
	}
	c.cfg.Sessions.SetCompanyName(sessionID, company)

	userID := sess.UserID
	if userID == "" {
		userID = sessionID
	}

	var progress []string
	query := fmt.Sprintf("%s company overview financials products competitors", company)

	if c.cfg.Router != nil {
		routed := c.cfg.Router.Route(query, userID, company)
		if !routed.Valid {
			return &Response{Text: fmt.Sprintf("I can't research that: %s", routed.Err)}, nil
		}
		if routed.Cached {
			if p, ok := routed.Value.(*types.AccountPlan); ok && p != nil {
				c.cfg.Sessions.SetAccountPlan(sessionID, p)
				return &Response{
					Text:     fmt.Sprintf("I already have a recent account plan for %s. Ask me to regenerate a section if you want fresh research.", company),
					Plan:     p,
					Progress: []string{"Reused cached research"},
				}, nil
			}
		}
		if routed.Duplicate {
			return &Response{
				Text: fmt.Sprintf("Research on %s is already in progress. I'll have results shortly.", company),
			}, nil
		}
	}

	progress = append(progress, fmt.Sprintf("Researching %s", company))
	chunks, err := c.retrieve(ctx, retrieval.Request{
		Query:   query,
		Company: company,
		UserID:  userID,
		Session: sess,
	})
	if err != nil {
		c.markFailed(query, userID, company, err)
		logging.AgentError("research for %s failed: %v", company, err)
		return &Response{
			Text:     fmt.Sprintf("I couldn't gather research on %s right now (%v). Please try again in a moment.", company, err),
			Progress: progress,
		}, nil
	}
	if len(chunks) == 0 {
		c.markFailed(query, userID, company, fmt.Errorf("no research data"))
		return &Response{
			Text:     fmt.Sprintf("I couldn't find any usable information about %s. Try a more specific name, or upload a document about the company.", company),
			Progress: progress,
		}, nil
	}
	progress = append(progress, fmt.Sprintf("Collected %d research chunks", len(chunks)))

	c.cfg.Sessions.AddResearchData(sessionID, chunks)
	sess = c.cfg.Sessions.Get(sessionID)

	// Conflict gate. Uploaded-only conflicts resolve silently in favor of
	// the user's own documents; explicit skip cues bypass the pause.
	if c.cfg.Conflicts != nil && !containsAny(lower, skipConflictCues) && !containsAny(lower, proceedCues) {
		conflicts := c.cfg.Conflicts.Detect(sess.ResearchData)
		if len(conflicts) > 0 && !conflict.AllUploaded(conflicts) {
			for _, cf := range conflicts {
				c.cfg.Sessions.AddConflict(sessionID, cf)
			}
			shown := conflict.HighSeverity(conflicts, maxConflictsShown)
			if len(shown) == 0 {
				shown = conflicts
				if len(shown) > maxConflictsShown {
					shown = shown[:maxConflictsShown]
				}
			}
			questions := conflictQuestions(shown)
			for _, q := range questions {
				c.cfg.Sessions.AddQuestion(sessionID, q)
			}
			c.cfg.Sessions.SetAgentState(sessionID, types.StateAwaitingConflictDecision)
			c.markFailed(query, userID, company, fmt.Errorf("awaiting conflict decision"))
			progress = append(progress, fmt.Sprintf("Found %d data conflicts", len(conflicts)))
			return &Response{
				Text: fmt.Sprintf("I found conflicting information about %s in the sources.\n\n%s\n\nShould I dig deeper to verify this information, or would you like me to proceed with the most authoritative source?",
					company, strings.Join(questions, "\n")),
				Questions: questions,
				Progress:  progress,
			}, nil
		}
	}

	progress = append(progress, "Generating account plan")
	resp, err := c.buildPlan(ctx, sessionID, company)
	if err != nil {
		c.markFailed(query, userID, company, err)
		return nil, err
	}
	if c.cfg.Router != nil && resp.Plan != nil {
		c.cfg.Router.MarkComplete(routeHash(query, userID, company), resp.Plan)
	}
	resp.Progress = append(progress, resp.Progress...)
	return resp, nil
}

// buildPlan turns the session's accumulated research into an account plan and
// persists it. Shared by the research and clarify workflows.
func (c *Controller) buildPlan(ctx context.Context, sessionID, company string) (*Response, error) {
	sess := c.cfg.Sessions.Get(sessionID)

	researchContext := buildResearchContext(sess.ResearchData, company)
	ents := entities.New().Extract(researchContext)
	sources := sourcesFromChunks(sess.ResearchData)

	p := c.cfg.Planner.Generate(ctx, company, researchContext, ents, sources)
	if p == nil {
		return nil, fmt.Errorf("agent: plan generation returned nothing for %s", company)
	}

	c.cfg.Sessions.SetAccountPlan(sessionID, p)
	c.cfg.Sessions.SetAgentState(sessionID, types.StateIdle)

	if c.cfg.PlanStore != nil {
		userID := sess.UserID
		if userID == "" {
			userID = sessionID
		}
		if err := c.cfg.PlanStore.Save(ctx, userID, sessionID, p); err != nil {
			logging.AgentWarn("persisting plan for %s: %v", company, err)
		}
	}

	return &Response{
		Text: fmt.Sprintf("Here is the account plan for %s, built from %d research sources. Ask me to update or regenerate any section.",
			company, len(sources)),
		Plan: p,
	}, nil
}

// retrieve runs the research pipeline through the router's singleflight
// group so concurrent identical queries share one execution. Without a
// router the pipeline is called directly.
func (c *Controller) retrieve(ctx context.Context, req retrieval.Request) ([]types.Chunk, error) {
	if c.cfg.Router == nil {
		return c.cfg.Retriever.Retrieve(ctx, req)
	}
	v, err := c.cfg.Router.Execute(routeHash(req.Query, req.UserID, req.Company), func() (interface{}, error) {
		return c.cfg.Retriever.Retrieve(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	chunks, _ := v.([]types.Chunk)
	return chunks, nil
}

func (c *Controller) markFailed(query, userID, company string, err error) {
	if c.cfg.Router != nil {
		c.cfg.Router.MarkFailed(routeHash(query, userID, company), err)
	}
}

func routeHash(query, userID, company string) string {
	return router.Hash(query, company, userID)
}

// buildResearchContext concatenates chunk texts, uploaded documents first so
// the user's own material anchors the prompt context.
func buildResearchContext(chunks []types.Chunk, company string) string {
	var uploaded, web []string
	for _, ch := range chunks {
		text := strings.TrimSpace(ch.Text)
		if text == "" {
			continue
		}
		if ch.Meta.SourceKind != types.SourceUploadedDocument && !mentionsCompany(text, company) && !mentionsCompany(ch.Meta.Title, company) {
			continue
		}
		if ch.Summary != "" {
			text = ch.Summary + "\n" + text
		}
		if ch.Meta.SourceKind == types.SourceUploadedDocument {
			uploaded = append(uploaded, text)
		} else {
			web = append(web, text)
		}
	}
	return strings.Join(append(uploaded, web...), "\n\n")
}

// sourcesFromChunks collects one reference per distinct origin URL.
func sourcesFromChunks(chunks []types.Chunk) []types.SourceReference {
	seen := make(map[string]bool)
	var refs []types.SourceReference
	for _, ch := range chunks {
		url := ch.Meta.URL
		if url == "" {
			url = ch.Meta.SourceFile
		}
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		kind := "website"
		switch {
		case ch.Meta.SourceKind == types.SourceUploadedDocument:
			kind = "pdf"
		case strings.Contains(ch.Meta.Domain, "news") || strings.Contains(url, "/news"):
			kind = "news"
		}
		refs = append(refs, types.SourceReference{
			URL:         url,
			Kind:        kind,
			ExtractedAt: ch.Meta.RetrievedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return refs
}

// conflictQuestions renders the top conflicts as numbered choices.
func conflictQuestions(conflicts []types.Conflict) []string {
	var out []string
	for i, cf := range conflicts {
		var claims []string
		for _, src := range cf.Sources {
			claims = append(claims, fmt.Sprintf("%s (%s)", src.Value, src.Origin))
		}
		out = append(out, fmt.Sprintf(
			"%d. %s differs across sources: %s. Reply 'verify' to dig deeper, 'proceed' to use the most credible value, or 'skip conflicts' to ignore.",
			i+1, cf.Topic, strings.Join(claims, " vs ")))
	}
	return out
}
