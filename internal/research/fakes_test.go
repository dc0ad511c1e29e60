// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/deep-research/internal/chat"
	"github.com/pdiddy/deep-research/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession records every request and answers through respond.
type fakeSession struct {
	mu       sync.Mutex
	respond  func(prompt string) (string, error)
	requests []chat.Request
}

func (f *fakeSession) ID() string { return "fake-session" }

func (f *fakeSession) Chat(_ context.Context, req chat.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req.Messages[len(req.Messages)-1].Content)
}

func (f *fakeSession) prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Messages[len(r.Messages)-1].Content
	}
	return out
}

// scripted answers calls in order with the given outputs.
func scripted(outputs ...string) *fakeSession {
	var mu sync.Mutex
	i := 0
	return &fakeSession{respond: func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(outputs) {
			return "", fmt.Errorf("unexpected chat call %d", i+1)
		}
		out := outputs[i]
		i++
		return out, nil
	}}
}

// stage names the prompt a request belongs to.
func stage(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "You will generate exactly three"):
		return "initial"
	case strings.HasPrefix(prompt, "Based on the user's question"):
		return "refinement"
	case strings.HasPrefix(prompt, "You are given multiple web search results"):
		return "summary"
	case strings.HasPrefix(prompt, "Consider the user's question"):
		return "evaluate"
	case strings.HasPrefix(prompt, "Write a concise, well-structured report"):
		return "report"
	}
	return "unknown"
}

var summaryQuery = regexp.MustCompile(`for the query: "([^"]*)"`)

// model is a stage-aware fake model.
type model struct {
	initial    string
	refinement string
	verdict    string
	report     string
}

func (m model) session() *fakeSession {
	return &fakeSession{respond: func(prompt string) (string, error) {
		switch stage(prompt) {
		case "initial":
			return m.initial, nil
		case "refinement":
			return m.refinement, nil
		case "summary":
			q := summaryQuery.FindStringSubmatch(prompt)[1]
			return fmt.Sprintf(`{"summary_markdown": "- about %s [1]", "key_points": ["%s point"]}`, q, q), nil
		case "evaluate":
			return m.verdict, nil
		case "report":
			return m.report, nil
		}
		return "", errors.New("unrecognized prompt")
	}}
}

type fakeClient struct {
	session *fakeSession
	err     error
	opened  int
}

func (c *fakeClient) NewSession(context.Context, string) (chat.Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.opened++
	return c.session, nil
}

// fakeSearcher returns two results per query, optionally after a per-query
// delay.
type fakeSearcher struct {
	mu     sync.Mutex
	calls  []string
	err    error
	delays map[string]time.Duration
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(ctx context.Context, query string, _ int) ([]types.SearchResultRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if d := f.delays[query]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []types.SearchResultRecord{
		{Title: query + " one", URL: "http://" + query + "/1", Content: "first"},
		{Title: query + " two", URL: "http://" + query + "/2", Content: "second"},
	}, nil
}
