// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search runs web searches through a tool endpoint and normalizes
// its schema-unstable responses into uniform result records.
//
// Backends (the Llama Stack tool runtime, Tavily) return whatever shape their
// provider emits; Normalize is the single place that understands them.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrMissingAPIKey is returned by backends that need a key and have none.
var ErrMissingAPIKey = errors.New("search API key is missing")

// Searcher runs one web search and returns normalized results. Transport
// failures are returned as errors; malformed payloads are not.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]types.SearchResultRecord, error)
}

// ResultQuery is a compiled jq expression that projects a raw payload before
// normalization, for providers whose results hide under keys the normalizer
// does not search.
type ResultQuery struct {
	expr string
	code *gojq.Code
}

// CompileResultQuery parses and compiles a jq expression. An empty
// expression yields a nil query, which Apply treats as identity.
func CompileResultQuery(expr string) (*ResultQuery, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	parsed, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing result query %q: %w", expr, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("compiling result query %q: %w", expr, err)
	}
	return &ResultQuery{expr: expr, code: code}, nil
}

// Apply runs the query over raw and returns its outputs as a list. When the
// query errors or emits nothing, Apply returns raw unchanged so normalization
// still sees the original payload.
func (q *ResultQuery) Apply(ctx context.Context, raw any, logger *slog.Logger) any {
	if q == nil {
		return raw
	}
	var outputs []any
	iter := q.code.RunWithContext(ctx, raw)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			logger.Debug("result query failed, using raw payload", "query", q.expr, "error", err)
			return raw
		}
		outputs = append(outputs, v)
	}
	if len(outputs) == 0 {
		return raw
	}
	return outputs
}

// String returns the source expression.
func (q *ResultQuery) String() string {
	if q == nil {
		return ""
	}
	return q.expr
}

// normalizePayload applies the optional result query, normalizes, and logs
// a shape hint when nothing was recognized.
func normalizePayload(ctx context.Context, raw any, rq *ResultQuery, maxResults int, logger *slog.Logger) []types.SearchResultRecord {
	records := Normalize(rq.Apply(ctx, raw, logger), maxResults)

	if len(records) == 0 {
		logger.Info("search response had no results", shapeHint(raw)...)
		return records
	}
	logger.Debug("first result preview", "title", records[0].Title, "content", runePrefix(records[0].Content, previewRunes))
	return records
}

// FormatTable writes results as a human-readable table to w.
func FormatTable(results []types.SearchResultRecord, w io.Writer) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-50s  %s\n", "#", "Title", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for i, r := range results {
		fmt.Fprintf(w, "%-4d  %-50s  %s\n", i+1, truncate(r.Title, 50), r.URL)
	}

	fmt.Fprintf(w, "\n%d results\n", len(results))
}

// FormatJSON writes results as indented JSON to w.
func FormatJSON(results []types.SearchResultRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

const previewRunes = 200

// runePrefix returns at most n runes of s.
func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
