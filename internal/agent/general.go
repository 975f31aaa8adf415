package agent

import (
	"context"
	"fmt"
	"strings"

	"planforge/internal/core"
	"planforge/internal/logging"
)

const helpText = `I build structured account plans from live company research. Things you can ask:
- "Research Acme Corporation" to build a full account plan
- "Update the company overview" or "regenerate the SWOT" to revise sections
- "Add a field for CEO" or "remove the competitor analysis" to reshape the plan
- Upload a document and say "use the uploaded file" to research from it`

var (
	greetingCues = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}
	thanksCues   = []string{"thank", "thanks", "appreciate"}
	helpCues     = []string{"help", "what can you do", "how do you work", "how does this work"}
)

const chatSystemPrompt = "You are a concise business-research assistant. " +
	"Answer in plain professional prose without emoji. If the user seems to want " +
	"company research, suggest phrasing like: Research <company name>."

// generalWorkflow handles small talk and anything the classifier couldn't
// place. Common cases answer deterministically; the rest go to the LLM with
// recent history for context.
func (c *Controller) generalWorkflow(ctx context.Context, message, sessionID string) (*Response, error) {
	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case containsAny(lower, helpCues):
		return &Response{Text: helpText}, nil
	case containsAny(lower, thanksCues):
		return &Response{Text: "You're welcome. Let me know if you'd like me to research another company or refine the current plan."}, nil
	case containsAny(lower, greetingCues):
		return &Response{Text: "Hello! Tell me which company to research and I'll put together an account plan."}, nil
	}

	if c.cfg.LLM == nil || !c.cfg.LLM.Available() {
		return &Response{Text: helpText}, nil
	}

	var sb strings.Builder
	for _, m := range c.cfg.Sessions.GetHistory(sessionID, 6) {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&sb, "user: %s\nassistant:", message)

	out, err := c.cfg.LLM.Generate(ctx, sb.String(), core.GenerateOptions{
		Temperature:     0.7,
		MaxOutputTokens: 1024,
		SystemPrompt:    chatSystemPrompt,
	})
	if err != nil {
		logging.AgentWarn("general chat generation failed: %v", err)
		return &Response{Text: helpText}, nil
	}
	return &Response{Text: strings.TrimSpace(out)}, nil
}
