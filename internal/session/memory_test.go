package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/types"
)

func TestCreateAndGet(t *testing.T) {
	m := NewMemory()
	id := m.Create("")
	require.NotEmpty(t, id)

	s := m.Get(id)
	require.NotNil(t, s)
	assert.Equal(t, types.StateIdle, s.State)
	assert.False(t, s.CreatedAt.IsZero())

	assert.Nil(t, m.Get("unknown"))
}

func TestCreateExistingIsIdempotent(t *testing.T) {
	m := NewMemory()
	id := m.Create("fixed")
	m.AddMessage(id, "user", "hello")

	again := m.Create("fixed")
	assert.Equal(t, id, again)
	require.Len(t, m.Get(id).Messages, 1)
}

func TestMessagesPreserveOrder(t *testing.T) {
	m := NewMemory()
	id := m.Create("")
	for i := 0; i < 15; i++ {
		m.AddMessage(id, "user", fmt.Sprintf("msg %d", i))
	}

	hist := m.GetHistory(id, 10)
	require.Len(t, hist, 10)
	assert.Equal(t, "msg 5", hist[0].Content)
	assert.Equal(t, "msg 14", hist[9].Content)

	all := m.GetHistory(id, 100)
	assert.Len(t, all, 15)
}

func TestSetAccountPlanLastWriteWins(t *testing.T) {
	m := NewMemory()
	id := m.Create("")

	p1 := types.NewAccountPlan("Acme")
	p2 := types.NewAccountPlan("Globex")
	m.SetAccountPlan(id, p1)
	m.SetAccountPlan(id, p2)

	assert.Same(t, p2, m.Get(id).Plan)
}

func TestClearResearch(t *testing.T) {
	m := NewMemory()
	id := m.Create("")
	m.AddResearchData(id, []types.Chunk{{ID: "c1", Text: "text"}})
	m.AddConflict(id, types.Conflict{Topic: "revenue"})
	m.SetCompanyName(id, "Acme")

	m.ClearResearch(id)
	s := m.Get(id)
	assert.Empty(t, s.ResearchData)
	assert.Empty(t, s.Conflicts)
	assert.Equal(t, "Acme", s.CompanyName, "company survives a research reset")
}

func TestStateAndCircuitBreaker(t *testing.T) {
	m := NewMemory()
	id := m.Create("")

	m.SetAgentState(id, types.StateAwaitingConflictDecision)
	assert.Equal(t, types.StateAwaitingConflictDecision, m.Get(id).State)

	m.SetLLMDisabled(id, true)
	assert.True(t, m.Get(id).LLMDisabled)
}

func TestOperationsOnUnknownSessionAreNoOps(t *testing.T) {
	m := NewMemory()
	m.AddMessage("nope", "user", "x")
	m.SetCompanyName("nope", "Acme")
	m.SetAccountPlan("nope", types.NewAccountPlan("Acme"))
	assert.Nil(t, m.Get("nope"))
	assert.Nil(t, m.GetHistory("nope", 5))
}

func TestConcurrentSessions(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := m.Create(fmt.Sprintf("s%d", g))
			for i := 0; i < 50; i++ {
				m.AddMessage(id, "user", "m")
				m.GetHistory(id, 10)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 10, m.Len())
	assert.Len(t, m.Get("s3").Messages, 50)
}
