// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdiddy/deep-research/internal/chat"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/internal/structured"
	"github.com/pdiddy/deep-research/pkg/types"
)

// excerptWidth bounds each source's content in the digest, in characters.
const excerptWidth = 900

// Summarizer condenses one query's results into a cited batch.
type Summarizer struct {
	Session chat.Session
	Logger  *slog.Logger
}

type summaryOutput struct {
	markdown  string
	keyPoints []string
}

// Summarize builds a digest of the first report.MaxSourcesPerBatch results
// and asks the model for {summary_markdown, key_points}. Output that is not a
// JSON object with a non-blank summary_markdown becomes the summary verbatim
// with no key points.
func (s *Summarizer) Summarize(ctx context.Context, query string, results []types.SearchResultRecord) (types.ResearchBatch, error) {
	prompt, err := render(summaryTmpl, struct{ Query, Digest string }{query, Digest(results)})
	if err != nil {
		return types.ResearchBatch{}, fmt.Errorf("rendering summary prompt: %w", err)
	}

	s.Logger.Info("summarizing results", "query", query, "results", len(results))
	raw, err := s.Session.Chat(ctx, chat.User(prompt, summaryTemperature, summaryMaxTokens))
	if err != nil {
		return types.ResearchBatch{}, err
	}

	out, ok, parseErr := structured.Parse(raw, toSummary, func(error) summaryOutput {
		return summaryOutput{markdown: strings.TrimSpace(raw)}
	})
	if !ok {
		s.Logger.Warn("could not parse summary JSON, using raw text", "query", query, "error", parseErr)
	}

	return types.ResearchBatch{
		Query:           query,
		Sources:         results,
		SummaryMarkdown: out.markdown,
		KeyPoints:       out.keyPoints,
	}, nil
}

// Digest renders results as numbered source entries for the summary prompt.
func Digest(results []types.SearchResultRecord) string {
	if len(results) > report.MaxSourcesPerBatch {
		results = results[:report.MaxSourcesPerBatch]
	}
	parts := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = types.UntitledSource
		}
		parts = append(parts, fmt.Sprintf("[%d] %s\nURL: %s\nExcerpt: %s",
			i+1, title, r.URL, shorten(r.Content, excerptWidth)))
	}
	return strings.Join(parts, "\n\n")
}

func toSummary(v any) (summaryOutput, error) {
	obj, err := structured.Object(v)
	if err != nil {
		return summaryOutput{}, err
	}
	md, ok := obj["summary_markdown"].(string)
	if md = strings.TrimSpace(md); !ok || md == "" {
		return summaryOutput{}, errors.New("summary_markdown missing or blank")
	}
	return summaryOutput{
		markdown:  md,
		keyPoints: structured.Strings(obj["key_points"]),
	}, nil
}
