// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// tavilySearchURL is the Tavily search endpoint. Declared as a var so tests
// can substitute an httptest server.
var tavilySearchURL = "https://api.tavily.com/search"

// Tavily calls the Tavily search API directly, bypassing the tool runtime.
// The decoded body goes through the same normalizer as tool responses.
type Tavily struct {
	Client *http.Client
	Config types.SearchConfig
	Query  *ResultQuery
	Logger *slog.Logger
}

// NewTavily constructs a Tavily searcher from cfg.
func NewTavily(cfg types.SearchConfig, rq *ResultQuery, logger *slog.Logger) *Tavily {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tavily{
		Client: &http.Client{Timeout: cfg.Timeout},
		Config: cfg,
		Query:  rq,
		Logger: logger.With("component", "search", "backend", "tavily"),
	}
}

// Name returns the backend identifier.
func (t *Tavily) Name() string { return "tavily" }

// Search posts the query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResultRecord, error) {
	if strings.TrimSpace(t.Config.APIKey) == "" {
		return nil, fmt.Errorf("tavily: %w", ErrMissingAPIKey)
	}
	t.Logger.Info("searching (tavily)", "query", query)

	depth := t.Config.Depth
	if depth == "" {
		depth = defaultDepth
	}
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"max_results":  maxResults,
		"search_depth": depth,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilySearchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.Config.APIKey)
	if t.Config.UserAgent != "" {
		req.Header.Set("User-Agent", t.Config.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, t.Client, req, t.Config.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var raw any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Logger.Warn("tavily returned a non-JSON body", "error", err)
		return []types.SearchResultRecord{}, nil
	}
	return normalizePayload(ctx, raw, t.Query, maxResults, t.Logger), nil
}
