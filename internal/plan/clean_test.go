package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"urls stripped", "Acme grew fast https://acme.com/q2?utm_source=x this year.", "Acme grew fast this year."},
		{"www stripped", "See www.acme.com for details.", "See for details."},
		{"protocol relative", "Mirror at //cdn.acme.com/report kept growing.", "Mirror at kept growing."},
		{"web source label", "WEB SOURCE: Acme expanded into Asia.", "Acme expanded into Asia."},
		{"hex id", "Tracking d41d8cd98f00b204e9800998ecf8427e inline noise.", "Tracking inline noise."},
		{"percent encoding", "Path io%2F artifacts removed.", "Path io artifacts removed."},
		{"markdown image", "Before ![logo](img.png) after.", "Before after."},
		{"code fence", "```json\nvalue\n``` done.", "value done."},
		{"whitespace collapse", "Too   many\n\nspaces.", "Too many spaces."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	in := "Acme https://a.co grew ![x](y) 15% this year with utm_campaign=q2 noise."
	once := CleanText(in)
	assert.Equal(t, once, CleanText(once))
}

func TestEnsureTerminal(t *testing.T) {
	assert.Equal(t, "Done.", EnsureTerminal("Done."))
	assert.Equal(t, "Done.", EnsureTerminal("Done"))
	assert.Equal(t, "Done!", EnsureTerminal("Done!  "))
	assert.Equal(t, "", EnsureTerminal("   "))
}

func TestLooksTruncated(t *testing.T) {
	tests := []struct {
		name string
		text string
		long bool
		want bool
	}{
		{"complete sentence", "Acme Corporation is expanding into new regions with strong momentum.", true, false},
		{"no terminal punctuation", "Acme Corporation is expanding into new", true, true},
		{"known incomplete tail", "The company aims to stay relev.", false, true},
		{"cut mid focus", "Operational excellence, with a focu.", false, true},
		{"short long section", "Too short.", true, true},
		{"short but not long section", "Acme leads.", false, false},
		{"empty", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksTruncated(tt.text, tt.long))
		})
	}
}

func TestFirstBalanced(t *testing.T) {
	assert.Equal(t, `{"a":1}`, firstBalancedObject(`noise {"a":1} ] trailing.`))
	assert.Equal(t, `[{"a":"}"}]`, firstBalancedArray(`[{"a":"}"}] garbage`))
	assert.Equal(t, "", firstBalancedObject("no json here"))
	assert.Equal(t, "", firstBalancedArray(`[1, 2`), "unbalanced input yields nothing")
}

func TestFallbackText(t *testing.T) {
	got := FallbackText("market_summary", "Acme Corp")
	assert.Contains(t, got, "Acme Corp")
	assert.True(t, IsFallback(got))
	assert.Equal(t, byte('.'), got[len(got)-1])

	custom := FallbackText("custom_field", "Acme Corp")
	assert.Contains(t, custom, "Custom Field")
	assert.True(t, IsFallback(custom))
}
