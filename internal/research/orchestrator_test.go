// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/pkg/types"
)

const (
	sufficient   = `{"sufficient": true, "reason": "covered", "additional_queries": []}`
	insufficient = `{"sufficient": false, "reason": "gaps remain", "additional_queries": ["x1", "x2"]}`
)

func newTestOrchestrator(s *fakeSession, searcher *fakeSearcher, cfg types.ResearchConfig) (*Orchestrator, *fakeClient) {
	client := &fakeClient{session: s}
	return New(client, searcher, cfg, quietLogger()), client
}

func TestRunSufficientAfterFirstRound(t *testing.T) {
	m := model{
		initial: `["great work habits", "paul graham great work", "deliberate practice"]`,
		verdict: sufficient,
		report:  "## Executive Summary\nWork hard [1].",
	}
	s := m.session()
	searcher := &fakeSearcher{}
	o, client := newTestOrchestrator(s, searcher, types.DefaultResearchConfig())

	result, err := o.Run(context.Background(), question)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RoundsExecuted)
	require.Len(t, result.Batches, 3)
	assert.Equal(t, question, result.Question)
	assert.Equal(t, "## Executive Summary\nWork hard [1].", result.ReportMarkdown)
	assert.NotEmpty(t, result.ID)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
	assert.Equal(t, 1, client.opened)

	assert.Equal(t, []string{"great work habits", "paul graham great work", "deliberate practice"}, searcher.calls)
	for i, b := range result.Batches {
		assert.Equal(t, searcher.calls[i], b.Query)
		assert.Len(t, b.Sources, 2)
		assert.Equal(t, "- about "+b.Query+" [1]", b.SummaryMarkdown)
	}
	assert.Equal(t, 6, result.SourceCount())

	var stages []string
	for _, p := range s.prompts() {
		stages = append(stages, stage(p))
	}
	assert.Equal(t, []string{"initial", "summary", "summary", "summary", "evaluate", "report"}, stages)
}

func TestRunRoundBound(t *testing.T) {
	tests := []struct {
		maxExtra   int
		wantRounds int
	}{
		{-3, 1},
		{0, 1},
		{1, 2},
		{2, 3},
		{4, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("max_extra_rounds=%d", tt.maxExtra), func(t *testing.T) {
			m := model{
				initial:    `["i1", "i2", "i3"]`,
				refinement: `["r1", "r2", "r3"]`,
				verdict:    insufficient,
				report:     "report",
			}
			s := m.session()
			o, _ := newTestOrchestrator(s, &fakeSearcher{}, types.ResearchConfig{MaxExtraRounds: tt.maxExtra})

			result, err := o.Run(context.Background(), question)
			require.NoError(t, err)

			assert.Equal(t, tt.wantRounds, result.RoundsExecuted)
			assert.Len(t, result.Batches, tt.wantRounds*QueriesPerRound)

			counts := map[string]int{}
			for _, p := range s.prompts() {
				counts[stage(p)]++
			}
			assert.Equal(t, 1, counts["initial"])
			assert.Equal(t, tt.wantRounds-1, counts["refinement"])
			assert.Equal(t, tt.wantRounds, counts["evaluate"])
			assert.Equal(t, 1, counts["report"])
		})
	}
}

func TestRunUnparsableVerdictsStillTerminate(t *testing.T) {
	m := model{initial: "garbage", refinement: "garbage", verdict: "no idea", report: "r"}
	s := m.session()
	o, _ := newTestOrchestrator(s, &fakeSearcher{}, types.ResearchConfig{MaxExtraRounds: 1})

	result, err := o.Run(context.Background(), question)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RoundsExecuted)
	require.Len(t, result.Batches, 6)

	fallback := FallbackQueries(question)
	for i, b := range result.Batches {
		assert.Equal(t, fallback[i%3], b.Query)
	}
}

func TestRunStateTransitions(t *testing.T) {
	m := model{initial: `["a", "b", "c"]`, refinement: `["d", "e", "f"]`, verdict: insufficient, report: "r"}
	o, _ := newTestOrchestrator(m.session(), &fakeSearcher{}, types.ResearchConfig{MaxExtraRounds: 1})

	type transition struct {
		round int
		state State
	}
	var got []transition
	o.OnState = func(round int, s State) { got = append(got, transition{round, s}) }

	_, err := o.Run(context.Background(), question)
	require.NoError(t, err)

	var want []transition
	for round := 1; round <= 2; round++ {
		want = append(want, transition{round, StatePlanning})
		for i := 0; i < 3; i++ {
			want = append(want, transition{round, StateSearching}, transition{round, StateSummarizing})
		}
		want = append(want, transition{round, StateEvaluating})
	}
	want = append(want, transition{2, StateCompiling}, transition{2, StateDone})
	assert.Equal(t, want, got)
}

func TestRunEmptyQuestion(t *testing.T) {
	s := scripted()
	o, client := newTestOrchestrator(s, &fakeSearcher{}, types.DefaultResearchConfig())

	for _, q := range []string{"", "   \n\t"} {
		_, err := o.Run(context.Background(), q)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	}
	assert.Zero(t, client.opened)
	assert.Empty(t, s.requests)
}

func TestRunPropagatesTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("session", func(t *testing.T) {
		o := New(&fakeClient{err: boom}, &fakeSearcher{}, types.DefaultResearchConfig(), quietLogger())
		_, err := o.Run(context.Background(), question)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "opening chat session")
	})

	t.Run("search", func(t *testing.T) {
		m := model{initial: `["a", "b", "c"]`, verdict: sufficient, report: "r"}
		s := m.session()
		o, _ := newTestOrchestrator(s, &fakeSearcher{err: boom}, types.DefaultResearchConfig())
		_, err := o.Run(context.Background(), question)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), `searching "a"`)
		assert.Len(t, s.prompts(), 1, "no stage runs after the failed search")
	})

	for _, failing := range []string{"initial", "summary", "evaluate", "report"} {
		t.Run(failing, func(t *testing.T) {
			m := model{initial: `["a", "b", "c"]`, verdict: sufficient, report: "r"}
			inner := m.session().respond
			s := &fakeSession{respond: func(prompt string) (string, error) {
				if stage(prompt) == failing {
					return "", boom
				}
				return inner(prompt)
			}}
			o, _ := newTestOrchestrator(s, &fakeSearcher{}, types.DefaultResearchConfig())

			result, err := o.Run(context.Background(), question)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestRunParallelPreservesOrder(t *testing.T) {
	m := model{initial: `["slow", "medium", "fast"]`, refinement: `["r-slow", "r-fast", "r-medium"]`, verdict: insufficient, report: "r"}
	searcher := &fakeSearcher{delays: map[string]time.Duration{
		"slow":     60 * time.Millisecond,
		"medium":   30 * time.Millisecond,
		"r-slow":   60 * time.Millisecond,
		"r-medium": 30 * time.Millisecond,
	}}
	o, _ := newTestOrchestrator(m.session(), searcher, types.ResearchConfig{MaxExtraRounds: 1, Parallel: true})

	result, err := o.Run(context.Background(), question)
	require.NoError(t, err)

	var queries []string
	for _, b := range result.Batches {
		queries = append(queries, b.Query)
		assert.Equal(t, "- about "+b.Query+" [1]", b.SummaryMarkdown)
	}
	assert.Equal(t, []string{"slow", "medium", "fast", "r-slow", "r-fast", "r-medium"}, queries)
	assert.Equal(t, 2, result.RoundsExecuted)
}

func TestRunParallelErrorCancelsRound(t *testing.T) {
	boom := errors.New("search down")
	m := model{initial: `["a", "b", "c"]`, verdict: sufficient, report: "r"}
	o, _ := newTestOrchestrator(m.session(), &fakeSearcher{err: boom}, types.ResearchConfig{Parallel: true})

	_, err := o.Run(context.Background(), question)
	assert.ErrorIs(t, err, boom)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PLANNING", StatePlanning.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "State(42)", State(42).String())
}
