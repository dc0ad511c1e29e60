// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pdiddy/deep-research/internal/structured"
	"github.com/pdiddy/deep-research/pkg/types"
)

// maxWalkDepth bounds recursion into nested payloads and embedded JSON strings.
const maxWalkDepth = 64

var (
	// collectionKeys hold lists (or single objects) of results.
	collectionKeys = []string{"results", "data", "items", "hits", "top_k", "json"}

	// wrapperKeys wrap the interesting payload one level down.
	wrapperKeys = []string{"content", "output", "message", "messages"}

	// identityKeys mark a mapping as a result on their own.
	identityKeys = []string{"url", "title", "snippet", "description"}

	titleKeys   = []string{"title", "source"}
	urlKeys     = []string{"url", "source_url", "link"}
	contentKeys = []string{"text", "content", "snippet", "description"}
)

// Normalize walks an arbitrarily shaped search tool payload and returns the
// result records found in it, at most maxResults of them (all when
// maxResults <= 0). It never fails: unrecognized shapes contribute nothing.
func Normalize(raw any, maxResults int) (records []types.SearchResultRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Debug("search payload normalization aborted", "panic", r)
			records = nil
		}
	}()

	leaves := gather(raw, 0)
	if maxResults > 0 && len(leaves) > maxResults {
		leaves = leaves[:maxResults]
	}

	records = make([]types.SearchResultRecord, 0, len(leaves))
	for _, leaf := range leaves {
		records = append(records, project(leaf))
	}
	return records
}

// NormalizeJSON decodes a JSON document and normalizes it. Invalid JSON
// yields no records.
func NormalizeJSON(data []byte, maxResults int) []types.SearchResultRecord {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return []types.SearchResultRecord{}
	}
	return Normalize(v, maxResults)
}

// gather collects result leaves depth-first, children before their parent.
func gather(v any, depth int) []map[string]any {
	if depth > maxWalkDepth {
		return nil
	}

	switch x := v.(type) {
	case map[string]any:
		return gatherMap(x, depth)
	case []any:
		var out []map[string]any
		for _, el := range x {
			out = append(out, gather(el, depth+1)...)
		}
		return out
	case string:
		if parsed, ok := decodeEmbedded(x); ok {
			return gather(parsed, depth+1)
		}
		return nil
	case json.RawMessage:
		return gather(string(x), depth)
	case []byte:
		return gather(string(x), depth)
	case []map[string]any:
		var out []map[string]any
		for _, el := range x {
			out = append(out, gatherMap(el, depth+1)...)
		}
		return out
	default:
		return nil
	}
}

func gatherMap(m map[string]any, depth int) []map[string]any {
	var out []map[string]any
	leaf := isLeaf(m)

	for _, key := range collectionKeys {
		if val, ok := m[key]; ok {
			out = append(out, gather(val, depth+1)...)
		}
	}

	for _, key := range wrapperKeys {
		switch val := m[key].(type) {
		case map[string]any, []any:
			out = append(out, gather(val, depth+1)...)
		case string:
			if !leaf {
				out = append(out, gather(val, depth+1)...)
			}
		}
	}

	if text, ok := m["text"].(string); ok && !hasAny(m, identityKeys) {
		out = append(out, gather(text, depth+1)...)
	}

	if leaf {
		out = append(out, m)
	}
	return out
}

// isLeaf reports whether m looks like a single search result: it names a
// url, title, snippet, or description, or carries text or content that is
// not itself an embedded JSON container.
func isLeaf(m map[string]any) bool {
	if hasAny(m, identityKeys) {
		return true
	}
	for _, key := range []string{"text", "content"} {
		if s, ok := m[key].(string); ok {
			if _, embedded := decodeEmbedded(s); !embedded {
				return true
			}
		}
	}
	return false
}

func hasAny(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// decodeEmbedded parses s as a JSON object or array. Scalars and invalid
// JSON are rejected so plain text is never mistaken for a payload.
func decodeEmbedded(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	return v, true
}

// project maps a result leaf onto a record using first-available precedence.
func project(m map[string]any) types.SearchResultRecord {
	title := firstString(m, titleKeys)
	if title == "" {
		title = types.UntitledSource
	}
	return types.SearchResultRecord{
		Title:   title,
		URL:     firstString(m, urlKeys),
		Content: firstString(m, contentKeys),
	}
}

// firstString returns the first non-empty scalar among keys, stringified.
func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := structured.String(m[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

// shapeHint describes a payload's top level for the "no results" diagnostic.
func shapeHint(raw any) []any {
	switch x := raw.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		return []any{"top_level_keys", keys}
	case []any:
		if len(x) == 0 {
			return []any{"content_type", "empty array"}
		}
		if first, ok := x[0].(map[string]any); ok {
			keys := make([]string, 0, len(first))
			for k := range first {
				keys = append(keys, k)
			}
			return []any{"first_item_keys", keys}
		}
		return []any{"first_item_type", structured.Kind(x[0])}
	default:
		return []any{"content_type", structured.Kind(raw)}
	}
}
