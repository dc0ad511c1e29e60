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
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

const (
	defaultToolGroup = "builtin::websearch"
	defaultToolName  = "builtin::websearch/web_search"
	defaultDepth     = "advanced"
)

// ToolRuntime invokes a Llama Stack websearch tool through the server's tool
// runtime API. The tool identifier is discovered once per ToolRuntime from
// the configured tool group, falling back to the builtin web_search tool.
type ToolRuntime struct {
	Client *http.Client
	Config types.SearchConfig
	Query  *ResultQuery
	Logger *slog.Logger

	resolveOnce sync.Once
	toolName    string
}

// NewToolRuntime constructs a tool runtime searcher from cfg.
func NewToolRuntime(cfg types.SearchConfig, rq *ResultQuery, logger *slog.Logger) *ToolRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRuntime{
		Client: &http.Client{Timeout: cfg.Timeout},
		Config: cfg,
		Query:  rq,
		Logger: logger.With("component", "search", "backend", "tool"),
	}
}

// Name returns the backend identifier.
func (t *ToolRuntime) Name() string { return "tool" }

// Search invokes the websearch tool and normalizes its response content and
// metadata.
func (t *ToolRuntime) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResultRecord, error) {
	t.Logger.Info("searching (web tool)", "query", query)

	t.resolveOnce.Do(func() { t.toolName = t.discoverTool(ctx) })

	depth := t.Config.Depth
	if depth == "" {
		depth = defaultDepth
	}
	body := toolInvokeRequest{
		ToolName: t.toolName,
		Kwargs: map[string]any{
			"query":        query,
			"max_results":  maxResults,
			"search_depth": depth,
		},
	}

	var resp map[string]any
	if err := t.post(ctx, "/v1/tool-runtime/invoke", body, &resp); err != nil {
		return nil, fmt.Errorf("invoking %s: %w", t.toolName, err)
	}
	if msg, _ := resp["error_message"].(string); msg != "" {
		t.Logger.Warn("web tool reported an error", "tool", t.toolName, "error", msg)
	}

	// Some runtimes leave content empty and put results at the top level
	// (output, results, data); the rest of the response is searched then.
	var first any = resp["content"]
	if isEmptyValue(first) {
		first = withoutKeys(resp, "content", "metadata")
	}
	payload := []any{first}
	if meta, ok := resp["metadata"]; ok && meta != nil {
		payload = append(payload, meta)
	}
	return normalizePayload(ctx, payload, t.Query, maxResults, t.Logger), nil
}

func withoutKeys(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if !slices.Contains(keys, k) {
			out[k] = v
		}
	}
	return out
}

// isEmptyValue reports whether a decoded JSON value carries nothing: null, a
// blank string, or an empty list or object.
func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

type toolInvokeRequest struct {
	ToolName string         `json:"tool_name"`
	Kwargs   map[string]any `json:"kwargs"`
}

// discoverTool lists the configured tool group and returns the first tool
// identifier. Failures are not fatal: the builtin name is used instead.
func (t *ToolRuntime) discoverTool(ctx context.Context) string {
	group := t.Config.ToolGroup
	if group == "" {
		group = defaultToolGroup
	}

	var listed any
	path := "/v1/tools?" + url.Values{"toolgroup_id": {group}}.Encode()
	if err := t.get(ctx, path, &listed); err != nil {
		t.Logger.Debug("tool discovery failed, using default", "group", group, "error", err)
		return defaultToolName
	}

	// Older servers return a bare list; newer ones wrap it in {"data": [...]}.
	tools, _ := listed.([]any)
	if m, ok := listed.(map[string]any); ok {
		tools, _ = m["data"].([]any)
	}
	for _, tool := range tools {
		m, _ := tool.(map[string]any)
		if id, _ := m["identifier"].(string); id != "" {
			t.Logger.Debug("discovered web tool", "identifier", id)
			return id
		}
	}
	return defaultToolName
}

func (t *ToolRuntime) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint(path), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return t.do(ctx, req, out)
}

func (t *ToolRuntime) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(ctx, req, out)
}

func (t *ToolRuntime) do(ctx context.Context, req *http.Request, out any) error {
	if t.Config.UserAgent != "" {
		req.Header.Set("User-Agent", t.Config.UserAgent)
	}
	if t.Config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.Config.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, t.Client, req, t.Config.MaxRetries)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (t *ToolRuntime) endpoint(path string) string {
	return strings.TrimRight(t.Config.BaseURL, "/") + path
}
