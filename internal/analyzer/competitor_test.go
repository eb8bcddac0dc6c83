package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompetitorMentions(t *testing.T) {
	r := DefaultRegistry()

	mentions := r.CompetitorMentions([]string{
		"",
		"We are moving to a COMPETITOR next month",
		"Great product",
	})

	require.Len(t, mentions, 1)
	m := mentions[0]
	assert.Equal(t, "competitor", m.Snippet)
	assert.Equal(t, "generic", m.CompetitorType)
	assert.Equal(t, 1, m.ResponseIndex)
	assert.Equal(t, "We are moving to a COMPETITOR next month", m.Context)
}

func TestCompetitorMentionPatterns(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		text    string
		snippet string
	}{
		{"I switched to another tool", "switched to"},
		{"maybe another vendor", ""},
		{"we found a better option elsewhere", "better option"},
		{"we are evaluating Acme instead", "evaluating acme instead"},
		{"the other provider was cheaper", "other provider"},
		{"are there alternatives", "alternatives"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			mentions := r.CompetitorMentions([]string{tt.text})
			if tt.snippet == "" {
				assert.Empty(t, mentions)
				return
			}
			var snippets []string
			for _, m := range mentions {
				snippets = append(snippets, m.Snippet)
			}
			assert.Contains(t, snippets, tt.snippet)
		})
	}
}

func TestCompetitorContextWindow(t *testing.T) {
	prefix := strings.Repeat("a", 80)
	suffix := strings.Repeat("b", 80)
	text := prefix + " competitor " + suffix

	mentions := DefaultRegistry().CompetitorMentions([]string{text})
	require.Len(t, mentions, 1)

	ctx := mentions[0].Context
	assert.True(t, strings.HasPrefix(ctx, "..."))
	assert.True(t, strings.HasSuffix(ctx, "..."))
	assert.Equal(t, 3+50+len("competitor")+50+3, len(ctx))
}

func TestCompetitorContextWindowMultibyte(t *testing.T) {
	text := strings.Repeat("é", 60) + " competitor"
	mentions := DefaultRegistry().CompetitorMentions([]string{text})
	require.Len(t, mentions, 1)

	ctx := mentions[0].Context
	assert.True(t, strings.HasPrefix(ctx, "..."))
	assert.Equal(t, strings.Repeat("é", 49)+" competitor", strings.TrimPrefix(ctx, "..."))
}

func TestCompetitorMentionsDeduplicateContexts(t *testing.T) {
	text := "Thinking about a competitor"
	mentions := DefaultRegistry().CompetitorMentions([]string{text, text})

	require.Len(t, mentions, 1)
	assert.Equal(t, 0, mentions[0].ResponseIndex)
}
