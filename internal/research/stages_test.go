// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/pkg/types"
)

// --- Summarizer ---

func TestSummarizeParsesJSON(t *testing.T) {
	s := scripted(`{"summary_markdown": "  - Go is fast [1]  ", "key_points": ["fast", "", 42, {"x": 1}, " typed "]}`)
	sum := &Summarizer{Session: s, Logger: quietLogger()}
	results := []types.SearchResultRecord{{Title: "Go", URL: "https://go.dev", Content: "The Go language"}}

	batch, err := sum.Summarize(context.Background(), "golang", results)
	require.NoError(t, err)

	assert.Equal(t, types.ResearchBatch{
		Query:           "golang",
		Sources:         results,
		SummaryMarkdown: "- Go is fast [1]",
		KeyPoints:       []string{"fast", "42", "typed"},
	}, batch)
	assert.Equal(t, 0.1, *s.requests[0].Temperature)
	assert.Equal(t, 1000, s.requests[0].MaxTokens)
}

func TestSummarizeFallsBackToRawText(t *testing.T) {
	tests := []string{
		"Go is a programming language [1].",
		`["not", "an", "object"]`,
		`Summary: the config looks like {"timeout": 30} in most setups [1].`,
		`{"summary_markdown": "   ", "key_points": ["x"]}`,
		`{"summary_markdown": 42}`,
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			sum := &Summarizer{Session: scripted("  " + raw + "\n"), Logger: quietLogger()}
			batch, err := sum.Summarize(context.Background(), "q", nil)
			require.NoError(t, err)
			assert.Equal(t, raw, batch.SummaryMarkdown)
			assert.Empty(t, batch.KeyPoints)
		})
	}
}

func TestSummarizeTransportError(t *testing.T) {
	boom := errors.New("503 from server")
	sum := &Summarizer{Session: &fakeSession{respond: func(string) (string, error) { return "", boom }}, Logger: quietLogger()}
	_, err := sum.Summarize(context.Background(), "q", nil)
	assert.ErrorIs(t, err, boom)
}

func TestDigest(t *testing.T) {
	var results []types.SearchResultRecord
	for i := 1; i <= 10; i++ {
		results = append(results, types.SearchResultRecord{
			Title:   fmt.Sprintf("T%d", i),
			URL:     fmt.Sprintf("http://%d", i),
			Content: strings.Repeat("word ", 400),
		})
	}
	results[1].Title = ""

	d := Digest(results)

	assert.Contains(t, d, "[1] T1\nURL: http://1\nExcerpt: word word")
	assert.Contains(t, d, "[2] Untitled\n")
	assert.Contains(t, d, "[8] T8")
	assert.NotContains(t, d, "[9]")
	for _, entry := range strings.Split(d, "\n\n") {
		excerpt := entry[strings.Index(entry, "Excerpt: ")+len("Excerpt: "):]
		assert.LessOrEqual(t, len([]rune(excerpt)), excerptWidth)
		assert.True(t, strings.HasSuffix(excerpt, "word…"), "excerpt ends %q", excerpt[len(excerpt)-10:])
	}
}

func TestShorten(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"  lots   of\n\tspace  ", 20, "lots of space"},
		{"hello world again", 12, "hello world…"},
		{"hello world again", 11, "hello…"},
		{"supercalifragilistic", 6, "super…"},
		{"anything", 1, "…"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shorten(tt.in, tt.width), "shorten(%q, %d)", tt.in, tt.width)
	}
}

// --- Evaluator ---

func TestEvaluateUnparsable(t *testing.T) {
	for _, raw := range []string{"", "yes, looks good", `["sufficient"]`, `true`, `{"foo": 1}`, `{"reason": "unsure"}`} {
		t.Run(raw, func(t *testing.T) {
			e := &Evaluator{Session: scripted(raw), Logger: quietLogger()}
			v, err := e.Evaluate(context.Background(), question, nil)
			require.NoError(t, err)
			assert.False(t, v.Sufficient)
			assert.Equal(t, UnparsedVerdictReason, v.Reason)
			assert.NotNil(t, v.AdditionalQueries)
			assert.Empty(t, v.AdditionalQueries)
		})
	}
}

func TestEvaluateParsesVerdict(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want types.SufficiencyVerdict
	}{
		{
			name: "bool",
			raw:  `{"sufficient": true, "reason": " enough ", "additional_queries": []}`,
			want: types.SufficiencyVerdict{Sufficient: true, Reason: "enough", AdditionalQueries: []string{}},
		},
		{
			name: "string and truncation",
			raw:  `{"sufficient": "false", "reason": "gaps", "additional_queries": ["a", " ", "b", "c", "d"]}`,
			want: types.SufficiencyVerdict{Reason: "gaps", AdditionalQueries: []string{"a", "b", "c"}},
		},
		{
			name: "numeric true, missing queries",
			raw:  "```json\n{\"sufficient\": 1, \"reason\": \"ok\"}\n```",
			want: types.SufficiencyVerdict{Sufficient: true, Reason: "ok", AdditionalQueries: []string{}},
		},
		{
			name: "prose around object",
			raw:  `Verdict: {"sufficient": false, "reason": "thin"} overall.`,
			want: types.SufficiencyVerdict{Reason: "thin", AdditionalQueries: []string{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Evaluator{Session: scripted(tt.raw), Logger: quietLogger()}
			v, err := e.Evaluate(context.Background(), question, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEvaluatePromptBounds(t *testing.T) {
	var batches []types.ResearchBatch
	for i := 0; i < 5; i++ {
		var points []string
		for j := 0; j < 6; j++ {
			points = append(points, fmt.Sprintf("point-%d-%d", i, j))
		}
		batches = append(batches, types.ResearchBatch{
			Query:           fmt.Sprintf("q%d", i),
			SummaryMarkdown: strings.Repeat("summary text ", 200),
			KeyPoints:       points,
		})
	}

	s := scripted(`{"sufficient": false, "reason": "r", "additional_queries": []}`)
	e := &Evaluator{Session: s, Logger: quietLogger()}
	_, err := e.Evaluate(context.Background(), question, batches)
	require.NoError(t, err)

	prompt := s.prompts()[0]
	assert.Equal(t, 20, strings.Count(prompt, "\n- point-"))
	assert.Contains(t, prompt, "- point-3-1")
	assert.NotContains(t, prompt, "point-3-2")

	summaries := prompt[strings.Index(prompt, "Summaries (markdown with citations):\n")+len("Summaries (markdown with citations):\n"):]
	assert.LessOrEqual(t, len([]rune(summaries)), summariesWidth)
	assert.True(t, strings.HasSuffix(summaries, "…"))
	assert.Equal(t, 0.0, *s.requests[0].Temperature)
	assert.Equal(t, 500, s.requests[0].MaxTokens)
}

// --- Compiler ---

func TestCompile(t *testing.T) {
	s := scripted("# Report\n\n## Executive Summary\nDone [1] [3] [7].")
	c := &Compiler{Session: s, Logger: quietLogger()}
	batches := []types.ResearchBatch{
		{Query: "q1", Sources: []types.SearchResultRecord{{Title: "A", URL: "http://a"}, {Title: "B", URL: "http://b"}}, SummaryMarkdown: "- a [1] b [2]"},
		{Query: "q2", Sources: []types.SearchResultRecord{{Title: "C", URL: "http://c"}}, SummaryMarkdown: "- c [1]"},
		{Query: "q3"},
	}

	got, err := c.Compile(context.Background(), question, batches)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\n## Executive Summary\nDone [1] [3] [7].", got)

	prompt := s.prompts()[0]
	assert.Contains(t, prompt, "Executive Summary, Findings (with subheadings), Limitations, and References")
	assert.Contains(t, prompt, "### Query: q1\n\n- a [1] b [2]")
	assert.Contains(t, prompt, "### Query: q2\n\n- c [3]")
	assert.Contains(t, prompt, "### Query: q3 — (no summary)")
	assert.Contains(t, prompt, "- [1] A — http://a\n- [2] B — http://b\n- [3] C — http://c")
	assert.Equal(t, 1800, s.requests[0].MaxTokens)
}

func TestCompileTransportError(t *testing.T) {
	boom := errors.New("timeout")
	c := &Compiler{Session: &fakeSession{respond: func(string) (string, error) { return "", boom }}, Logger: quietLogger()}
	_, err := c.Compile(context.Background(), question, nil)
	assert.ErrorIs(t, err, boom)
}
