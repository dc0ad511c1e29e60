// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pdiddy/deep-research/internal/chat"
	"github.com/pdiddy/deep-research/internal/structured"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Evaluator input bounds.
const (
	maxEvaluatorKeyPoints = 20
	summariesWidth        = 5000
)

// UnparsedVerdictReason is the reason given when the model's verdict cannot
// be parsed.
const UnparsedVerdictReason = "Could not parse sufficiency analysis."

// Evaluator judges whether the accumulated batches answer the question.
type Evaluator struct {
	Session chat.Session
	Logger  *slog.Logger
}

// Evaluate asks the model for {sufficient, reason, additional_queries}.
// Unparsable output is treated as not yet sufficient.
func (e *Evaluator) Evaluate(ctx context.Context, question string, batches []types.ResearchBatch) (types.SufficiencyVerdict, error) {
	var keyPoints, summaries []string
	for _, b := range batches {
		keyPoints = append(keyPoints, b.KeyPoints...)
		summaries = append(summaries, b.SummaryMarkdown)
	}
	if len(keyPoints) > maxEvaluatorKeyPoints {
		keyPoints = keyPoints[:maxEvaluatorKeyPoints]
	}

	prompt, err := render(sufficiencyTmpl, struct {
		Question  string
		KeyPoints []string
		Summaries string
	}{question, keyPoints, shorten(strings.Join(summaries, "\n"), summariesWidth)})
	if err != nil {
		return types.SufficiencyVerdict{}, fmt.Errorf("rendering sufficiency prompt: %w", err)
	}

	e.Logger.Info("evaluating sufficiency of collected information", "batches", len(batches))
	raw, err := e.Session.Chat(ctx, chat.User(prompt, sufficiencyTemperature, sufficiencyMaxTokens))
	if err != nil {
		return types.SufficiencyVerdict{}, err
	}

	verdict, ok, parseErr := structured.Parse(raw, toVerdict, func(error) types.SufficiencyVerdict {
		return types.SufficiencyVerdict{Reason: UnparsedVerdictReason, AdditionalQueries: []string{}}
	})
	if !ok {
		e.Logger.Warn("could not parse sufficiency JSON, assuming insufficient", "error", parseErr)
		return verdict, nil
	}
	e.Logger.Info("sufficiency verdict", "sufficient", verdict.Sufficient, "reason", verdict.Reason)
	return verdict, nil
}

func toVerdict(v any) (types.SufficiencyVerdict, error) {
	obj, err := structured.Object(v)
	if err != nil {
		return types.SufficiencyVerdict{}, err
	}
	sufficient, ok := obj["sufficient"]
	if !ok {
		return types.SufficiencyVerdict{}, errors.New("sufficient missing")
	}
	reason, _ := structured.String(obj["reason"])
	queries := structured.Strings(obj["additional_queries"])
	if queries == nil {
		queries = []string{}
	}
	if len(queries) > types.MaxAdditionalQueries {
		queries = queries[:types.MaxAdditionalQueries]
	}
	return types.SufficiencyVerdict{
		Sufficient:        truthy(sufficient),
		Reason:            strings.TrimSpace(reason),
		AdditionalQueries: queries,
	}, nil
}

// truthy interprets a decoded JSON value as a boolean: bools as-is, numbers
// as non-zero, strings via strconv.ParseBool. Anything else is false.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	default:
		return false
	}
}
