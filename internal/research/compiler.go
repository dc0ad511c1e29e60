// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pdiddy/deep-research/internal/chat"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Compiler writes the final cited report.
type Compiler struct {
	Session chat.Session
	Logger  *slog.Logger
}

// Compile prompts for a markdown report over every batch. The model output
// is returned as-is; citations outside the reference list are only logged.
func (c *Compiler) Compile(ctx context.Context, question string, batches []types.ResearchBatch) (string, error) {
	refs, offsets := report.BuildReferences(batches)

	prompt, err := render(reportTmpl, struct{ Question, Summaries, References string }{
		question,
		report.FormatSummaries(batches, offsets),
		report.FormatReferences(refs),
	})
	if err != nil {
		return "", fmt.Errorf("rendering report prompt: %w", err)
	}

	c.Logger.Info("compiling final report", "batches", len(batches), "references", len(refs))
	text, err := c.Session.Chat(ctx, chat.User(prompt, reportTemperature, reportMaxTokens))
	if err != nil {
		return "", err
	}

	if bad := report.CheckCitations(text, len(refs)); len(bad) > 0 {
		c.Logger.Warn("report cites unknown references", "citations", bad, "references", len(refs))
	}
	c.Logger.Info("report generated", "chars", len(text))
	return text, nil
}
