package agent

import (
	"context"
	"fmt"
	"strings"

	"planforge/internal/logging"
	"planforge/internal/retrieval"
	"planforge/internal/types"
)

var verifyCues = []string{"verify", "dig deeper", "cross-check", "source a", "source b"}

// clarifyWorkflow resumes a paused workflow with the user's answer, most
// commonly the conflict decision raised by researchWorkflow.
func (c *Controller) clarifyWorkflow(ctx context.Context, message, sessionID string) (*Response, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "clarifyWorkflow")
	defer timer.Stop()

	sess := c.cfg.Sessions.Get(sessionID)
	lower := strings.ToLower(message)

	if sess.State != types.StateAwaitingConflictDecision {
		if sess.CompanyName != "" && len(sess.ResearchData) > 0 && sess.Plan == nil {
			return c.buildPlan(ctx, sessionID, sess.CompanyName)
		}
		return &Response{
			Text: "There's nothing pending to clarify. Ask me to research a company or update the current plan.",
		}, nil
	}

	switch {
	case containsAny(lower, verifyCues):
		// Fetch a second round of targeted research before deciding.
		topics := conflictTopics(sess.Conflicts)
		userID := sess.UserID
		if userID == "" {
			userID = sessionID
		}
		chunks, err := c.retrieve(ctx, retrieval.Request{
			Query:   fmt.Sprintf("%s %s official figures", sess.CompanyName, strings.Join(topics, " ")),
			Company: sess.CompanyName,
			UserID:  userID,
			Session: sess,
		})
		if err != nil {
			logging.AgentWarn("verification research failed: %v", err)
		} else {
			c.cfg.Sessions.AddResearchData(sessionID, chunks)
		}
		resp, err := c.buildPlan(ctx, sessionID, sess.CompanyName)
		if err != nil {
			return nil, err
		}
		resp.Progress = append([]string{"Gathered additional sources to verify conflicting data"}, resp.Progress...)
		return resp, nil

	case containsAny(lower, skipConflictCues),
		containsAny(lower, []string{"proceed", "continue", "go ahead", "yes"}):
		return c.buildPlan(ctx, sessionID, sess.CompanyName)

	case strings.Contains(lower, "no") || strings.Contains(lower, "cancel"):
		c.cfg.Sessions.SetAgentState(sessionID, types.StateIdle)
		return &Response{
			Text: "Okay, I've put the research on hold. Ask me to proceed whenever you're ready, or research a different company.",
		}, nil
	}

	return &Response{
		Text: "Should I 'verify' the conflicting data with more research, 'proceed' with the most credible values, or 'skip conflicts' entirely?",
	}, nil
}

func conflictTopics(conflicts []types.Conflict) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, cf := range conflicts {
		if !seen[cf.Topic] {
			seen[cf.Topic] = true
			topics = append(topics, cf.Topic)
		}
	}
	return topics
}
