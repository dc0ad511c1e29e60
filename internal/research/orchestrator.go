// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research drives the deep-research loop: plan queries, search and
// summarize each one, judge sufficiency, repeat for a bounded number of
// rounds, and compile a cited report.
//
// Every stage talks to the model through one chat.Session opened per run.
// Malformed model output is recovered inside the stage that produced it;
// chat and search transport errors abort the run.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-research/internal/chat"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/internal/telemetry"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrEmptyQuestion is returned by Run for a blank question.
var ErrEmptyQuestion = errors.New("research question is empty")

// loggedHits is how many results per query are logged at info.
const loggedHits = 5

// State is a step of the research loop.
type State int

const (
	StatePlanning State = iota
	StateSearching
	StateSummarizing
	StateEvaluating
	StateCompiling
	StateDone
)

var stateNames = [...]string{"PLANNING", "SEARCHING", "SUMMARIZING", "EVALUATING", "COMPILING", "DONE"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Orchestrator runs research loops. It holds no per-run state, so one
// Orchestrator may serve sequential runs; each Run opens its own session.
type Orchestrator struct {
	Chat     chat.Client
	Searcher search.Searcher
	Config   types.ResearchConfig
	Logger   *slog.Logger

	// OnState, when set, observes every state transition. With
	// Config.Parallel it is called from several goroutines, serialized.
	OnState func(round int, state State)

	stateMu sync.Mutex
}

// New returns an orchestrator over the given collaborators.
func New(client chat.Client, searcher search.Searcher, cfg types.ResearchConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Chat:     client,
		Searcher: searcher,
		Config:   cfg,
		Logger:   logger.With("component", "research"),
	}
}

// stages bundles the per-run stage implementations sharing one session.
type stages struct {
	planner    *Planner
	summarizer *Summarizer
	evaluator  *Evaluator
	compiler   *Compiler
}

// Run executes the loop for question. At most Config.MaxExtraRounds+1 rounds
// run, and at least one. Batches are appended in planned order, and a
// round's batches are complete before that round is evaluated.
func (o *Orchestrator) Run(ctx context.Context, question string) (result *types.ResearchResult, err error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	id := uuid.NewString()
	logger := o.logger().With("run_id", id)
	started := time.Now().UTC()

	ctx, span := telemetry.Tracer().Start(ctx, "research.run",
		trace.WithAttributes(attribute.String("run.id", id), attribute.String("question", question)))
	defer func() { telemetry.End(span, err) }()

	logger.Info("user question", "question", question)

	session, err := o.Chat.NewSession(ctx, "deep_search_"+id[:8])
	if err != nil {
		return nil, fmt.Errorf("opening chat session: %w", err)
	}
	st := stages{
		planner:    &Planner{Session: session, Logger: logger},
		summarizer: &Summarizer{Session: session, Logger: logger},
		evaluator:  &Evaluator{Session: session, Logger: logger},
		compiler:   &Compiler{Session: session, Logger: logger},
	}

	maxExtra := max(o.Config.MaxExtraRounds, 0)
	batches := []types.ResearchBatch{}
	round := 0

	for {
		round++
		queries, err := o.plan(ctx, logger, st.planner, round, question)
		if err != nil {
			return nil, fmt.Errorf("planning round %d: %w", round, err)
		}
		logger.Info("round queries", "round", round, "queries", queries)

		roundBatches, err := o.runQueries(ctx, logger, st.summarizer, round, queries)
		if err != nil {
			return nil, err
		}
		batches = append(batches, roundBatches...)

		o.enter(round, StateEvaluating)
		verdict, err := o.evaluate(ctx, st.evaluator, round, question, batches)
		if err != nil {
			return nil, fmt.Errorf("evaluating round %d: %w", round, err)
		}

		if verdict.Sufficient {
			logger.Info("decision: sufficient", "round", round, "reason", verdict.Reason)
			break
		}
		if round-1 >= maxExtra {
			logger.Info("decision: reached max augmentation rounds", "round", round, "max_extra_rounds", maxExtra)
			break
		}
		// Follow-up queries come from a fresh refinement prompt; the
		// verdict's suggestions are only logged.
		logger.Info("decision: insufficient",
			"round", round,
			"reason", verdict.Reason,
			"suggested_queries", verdict.AdditionalQueries)
	}

	o.enter(round, StateCompiling)
	cctx, cspan := telemetry.Tracer().Start(ctx, "research.compile",
		trace.WithAttributes(attribute.Int("batches", len(batches))))
	reportMD, err := st.compiler.Compile(cctx, question, batches)
	telemetry.End(cspan, err)
	if err != nil {
		return nil, fmt.Errorf("compiling report: %w", err)
	}
	o.enter(round, StateDone)

	span.SetAttributes(attribute.Int("rounds", round), attribute.Int("batches", len(batches)))
	return &types.ResearchResult{
		ID:             id,
		Question:       question,
		RoundsExecuted: round,
		Batches:        batches,
		ReportMarkdown: reportMD,
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) plan(ctx context.Context, logger *slog.Logger, p *Planner, round int, question string) (queries []string, err error) {
	o.enter(round, StatePlanning)
	ctx, span := telemetry.Tracer().Start(ctx, "research.plan", trace.WithAttributes(attribute.Int("round", round)))
	defer func() { telemetry.End(span, err) }()

	logger.Info("planning queries", "round", round)
	if round == 1 {
		return p.InitialQueries(ctx, question)
	}
	return p.RefinementQueries(ctx, question)
}

func (o *Orchestrator) evaluate(ctx context.Context, e *Evaluator, round int, question string, batches []types.ResearchBatch) (verdict types.SufficiencyVerdict, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "research.evaluate", trace.WithAttributes(attribute.Int("round", round)))
	defer func() { telemetry.End(span, err) }()

	verdict, err = e.Evaluate(ctx, question, batches)
	if err == nil {
		span.SetAttributes(attribute.Bool("sufficient", verdict.Sufficient))
	}
	return verdict, err
}

// runQueries searches and summarizes each query, returning batches in query
// order. With Config.Parallel the queries run concurrently; the first error
// cancels the rest.
func (o *Orchestrator) runQueries(ctx context.Context, logger *slog.Logger, s *Summarizer, round int, queries []string) ([]types.ResearchBatch, error) {
	out := make([]types.ResearchBatch, len(queries))

	if !o.Config.Parallel {
		for i, q := range queries {
			b, err := o.searchAndSummarize(ctx, logger, s, round, q)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			b, err := o.searchAndSummarize(gctx, logger, s, round, q)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) searchAndSummarize(ctx context.Context, logger *slog.Logger, s *Summarizer, round int, query string) (batch types.ResearchBatch, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "research.query",
		trace.WithAttributes(attribute.Int("round", round), attribute.String("query", query)))
	defer func() { telemetry.End(span, err) }()

	o.enter(round, StateSearching)
	results, err := o.Searcher.Search(ctx, query, o.maxResults())
	if err != nil {
		return types.ResearchBatch{}, fmt.Errorf("searching %q: %w", query, err)
	}
	logger.Info("found results for query", "query", query, "results", len(results))
	for _, r := range results[:min(len(results), loggedHits)] {
		logger.Info("hit", "title", r.Title, "url", r.URL)
	}
	span.SetAttributes(attribute.Int("results", len(results)))

	o.enter(round, StateSummarizing)
	batch, err = s.Summarize(ctx, query, results)
	if err != nil {
		return types.ResearchBatch{}, fmt.Errorf("summarizing %q: %w", query, err)
	}
	return batch, nil
}

func (o *Orchestrator) enter(round int, state State) {
	o.logger().Debug("state transition", "round", round, "state", state.String())
	if o.OnState == nil {
		return
	}
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.OnState(round, state)
}

func (o *Orchestrator) maxResults() int {
	if o.Config.MaxResults > 0 {
		return o.Config.MaxResults
	}
	return types.DefaultMaxResults
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
