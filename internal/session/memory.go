// Package session holds the agent's per-session working memory: conversation
// history, gathered research, detected conflicts and the current account
// plan. Single process, concurrency-safe; durable persistence belongs to an
// external chat store.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"planforge/internal/logging"
	"planforge/internal/types"
)

// Memory maps session ids to sessions.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

// NewMemory returns an empty session store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*types.Session)}
}

// Create registers a new session. An empty id gets a generated UUID. Creating
// an id that already exists returns the existing session's id unchanged.
func (m *Memory) Create(id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		m.sessions[id] = &types.Session{
			ID:        id,
			State:     types.StateIdle,
			CreatedAt: time.Now(),
		}
		logging.Session("created session %s", id)
	}
	return id
}

// Get returns the session, or nil when unknown. The returned pointer is the
// live session; callers within one session turn may mutate it directly, which
// matches the one-turn-at-a-time session model.
func (m *Memory) Get(id string) *types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// GetOrCreate returns the session for id, creating it first if needed.
func (m *Memory) GetOrCreate(id string) *types.Session {
	id = m.Create(id)
	return m.Get(id)
}

// AddMessage appends a conversational turn.
func (m *Memory) AddMessage(id, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.Messages = append(s.Messages, types.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// SetCompanyName records the company under research.
func (m *Memory) SetCompanyName(id, company string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.CompanyName = company
	}
}

// AddResearchData appends gathered chunks.
func (m *Memory) AddResearchData(id string, chunks []types.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ResearchData = append(s.ResearchData, chunks...)
	}
}

// ClearResearch drops research data and conflicts, used when the researched
// company changes mid-session.
func (m *Memory) ClearResearch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ResearchData = nil
		s.Conflicts = nil
		logging.Session("cleared research data for session %s", id)
	}
}

// SetAccountPlan replaces the session's plan.
func (m *Memory) SetAccountPlan(id string, plan *types.AccountPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Plan = plan
	}
}

// AddConflict appends a detected conflict.
func (m *Memory) AddConflict(id string, c types.Conflict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Conflicts = append(s.Conflicts, c)
	}
}

// AddQuestion records a question the agent asked the user.
func (m *Memory) AddQuestion(id, question string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Questions = append(s.Questions, question)
	}
}

// SetAgentState moves the session's state machine.
func (m *Memory) SetAgentState(id string, state types.AgentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.State = state
		logging.SessionDebug("session %s -> %s", id, state)
	}
}

// SetLLMDisabled trips or resets the per-session enrichment circuit breaker.
func (m *Memory) SetLLMDisabled(id string, disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LLMDisabled = disabled
	}
}

// GetHistory returns the last limit messages in insertion order. limit <= 0
// defaults to 10.
func (m *Memory) GetHistory(id string, limit int) []types.Message {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	start := len(s.Messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]types.Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// Delete removes a session.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
