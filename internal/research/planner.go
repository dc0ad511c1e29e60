// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdiddy/deep-research/internal/chat"
	"github.com/pdiddy/deep-research/internal/structured"
)

// QueriesPerRound is the number of search queries planned per round.
const QueriesPerRound = 3

// Planner proposes search queries for a question.
type Planner struct {
	Session chat.Session
	Logger  *slog.Logger
}

// InitialQueries asks the model for three diverse search queries. Malformed
// output falls back to FallbackQueries; only chat transport errors are
// returned.
func (p *Planner) InitialQueries(ctx context.Context, question string) ([]string, error) {
	prompt, err := render(initialQueriesTmpl, struct{ Question string }{question})
	if err != nil {
		return nil, fmt.Errorf("rendering query prompt: %w", err)
	}

	p.Logger.Info("generating diverse queries")
	raw, err := p.Session.Chat(ctx, chat.User(prompt, queriesTemperature, queriesMaxTokens))
	if err != nil {
		return nil, err
	}

	queries, ok, parseErr := structured.Parse(raw, toQueries, func(error) []string {
		return FallbackQueries(question)
	})
	if !ok {
		p.Logger.Warn("could not parse queries, using heuristic fallback", "error", parseErr)
		return queries, nil
	}
	p.Logger.Info("planned queries", "queries", queries)
	return queries, nil
}

// RefinementQueries asks for three queries that fill gaps left by earlier
// rounds. When the output is malformed it re-runs InitialQueries, which
// costs one more chat call.
func (p *Planner) RefinementQueries(ctx context.Context, question string) ([]string, error) {
	prompt, err := render(refinementQueriesTmpl, struct{ Question string }{question})
	if err != nil {
		return nil, fmt.Errorf("rendering refinement prompt: %w", err)
	}

	raw, err := p.Session.Chat(ctx, chat.User(prompt, refinementTemperature, refinementMaxTokens))
	if err != nil {
		return nil, err
	}

	queries, ok, parseErr := structured.Parse(raw, toQueries, func(error) []string { return nil })
	if !ok {
		p.Logger.Warn("could not parse refinement queries, falling back to initial planning", "error", parseErr)
		return p.InitialQueries(ctx, question)
	}
	return queries, nil
}

// FallbackQueries is the deterministic plan used when the model's output
// cannot be parsed.
func FallbackQueries(question string) []string {
	return []string{
		question,
		question + " site:wikipedia.org overview",
		question + " latest developments",
	}
}

// toQueries accepts exactly QueriesPerRound non-blank strings.
func toQueries(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON array, got %s", structured.Kind(v))
	}
	if len(items) != QueriesPerRound {
		return nil, fmt.Errorf("expected exactly %d queries, got %d", QueriesPerRound, len(items))
	}
	queries := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("query %d is %s, not a string", i, structured.Kind(item))
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("query %d is blank", i)
		}
		queries = append(queries, s)
	}
	return queries, nil
}
