package leadgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryGenerator_Generate(t *testing.T) {
	llm := &scriptedLLM{replies: []string{`["top mining suppliers in Sydney", "best mining companies in Perth"]`}}
	g := NewQueryGenerator(llm, "claude-haiku-4-5-20251001", 0, "Australia", []string{"Sydney", "Perth"})

	queries, err := g.Generate(context.Background(), "mining suppliers", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"top mining suppliers in Sydney",
		"best mining companies in Perth",
	}, queries)

	require.Len(t, llm.requests, 1)
	prompt := llm.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "mining suppliers")
	assert.Contains(t, prompt, "Australia, Sydney, Perth")
	assert.Contains(t, prompt, "Generate 2 diverse")
}

func TestQueryGenerator_Guidance(t *testing.T) {
	llm := &scriptedLLM{replies: []string{`["q one"]`}}
	g := NewQueryGenerator(llm, "claude-haiku-4-5-20251001", 0, "", nil)

	_, err := g.Generate(context.Background(), "solar installers", "prefer commercial projects", 1)
	require.NoError(t, err)
	assert.Contains(t, llm.requests[0].Messages[0].Content, "prefer commercial projects")
}

func TestQueryGenerator_CountBounds(t *testing.T) {
	g := NewQueryGenerator(&scriptedLLM{}, "claude-haiku-4-5-20251001", 0, "", nil)

	_, err := g.Generate(context.Background(), "anything", "", 0)
	require.Error(t, err)
	_, err = g.Generate(context.Background(), "anything", "", MaxQueries+1)
	require.Error(t, err)
	_, err = g.Generate(context.Background(), "   ", "", 5)
	require.Error(t, err)
}

func TestParseQueryList(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr bool
	}{
		{
			"plain array",
			`["a b c", "d e f"]`,
			[]string{"a b c", "d e f"}, false,
		},
		{
			"fenced with prose",
			"Sure!\n```json\n[\"top solar companies in Brisbane\"]\n```",
			[]string{"top solar companies in Brisbane"}, false,
		},
		{
			"strips quote artifacts",
			`[" 'query one' ", "\"query two\""]`,
			[]string{"query one", "query two"}, false,
		},
		{
			"drops empties",
			`["", "  ", "real query"]`,
			[]string{"real query"}, false,
		},
		{"all empty", `["", ""]`, nil, true},
		{"no array", "no queries today", nil, true},
		{"malformed", `["a", 3]`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQueryList(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
