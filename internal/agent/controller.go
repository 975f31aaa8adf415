// Package agent is the conversational orchestrator: it classifies each
// message's intent and drives the research, section-update, clarify, and
// general workflows over the session's working memory.
package agent

import (
	"context"

	"planforge/internal/core"
	"planforge/internal/logging"
	"planforge/internal/retrieval"
	"planforge/internal/router"
	"planforge/internal/session"
	"planforge/internal/types"
)

// Retriever runs the research pipeline. Implemented by retrieval.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]types.Chunk, error)
}

// Planner produces and edits account plans. Implemented by plan.Generator.
type Planner interface {
	Generate(ctx context.Context, company, researchContext string, ents types.Entities, sources []types.SourceReference) *types.AccountPlan
	RegenerateSection(ctx context.Context, p *types.AccountPlan, key, researchContext string, ents types.Entities) error
	GenerateField(ctx context.Context, company, field, researchContext string) (string, error)
	FallbackPlan(company, researchContext string, ents types.Entities, sources []types.SourceReference) *types.AccountPlan
}

// ConflictDetector finds cross-document factual disagreements.
type ConflictDetector interface {
	Detect(chunks []types.Chunk) []types.Conflict
}

// Response is what one processed message returns to the transport.
type Response struct {
	Text      string             `json:"response"`
	SessionID string             `json:"session_id"`
	Plan      *types.AccountPlan `json:"account_plan,omitempty"`
	Questions []string           `json:"questions,omitempty"`
	Progress  []string           `json:"progress_updates,omitempty"`
}

// Config carries the controller's collaborators. Sessions, Retriever, and
// Planner are required; the rest degrade gracefully when nil.
type Config struct {
	Sessions  *session.Memory
	Retriever Retriever
	Planner   Planner
	Conflicts ConflictDetector
	Router    *router.Router
	Store     core.VectorStore
	PlanStore core.PlanStore
	LLM       core.LLM
}

// Controller processes user messages. One session's turns are serialized by
// the caller; distinct sessions may run concurrently.
type Controller struct {
	cfg Config
}

// New creates a controller.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Process handles one user message end to end and returns the reply.
func (c *Controller) Process(ctx context.Context, message, sessionID string) (*Response, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "Process")
	defer timer.Stop()

	sess := c.cfg.Sessions.GetOrCreate(sessionID)
	sessionID = sess.ID
	c.cfg.Sessions.AddMessage(sessionID, "user", message)

	intent := c.classifyIntent(message, sess)
	logging.Agent("session %s intent=%s", sessionID, intent)

	var resp *Response
	var err error
	switch intent {
	case types.IntentResearchCompany:
		resp, err = c.researchWorkflow(ctx, message, sessionID)
	case types.IntentUpdateSection:
		resp, err = c.updateWorkflow(ctx, message, sessionID)
	case types.IntentClarify:
		resp, err = c.clarifyWorkflow(ctx, message, sessionID)
	default:
		resp, err = c.generalWorkflow(ctx, message, sessionID)
	}
	if err != nil {
		return nil, err
	}

	resp.SessionID = sessionID
	c.cfg.Sessions.AddMessage(sessionID, "assistant", resp.Text)
	return resp, nil
}
