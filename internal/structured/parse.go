// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structured parses JSON out of free-form language-model output.
//
// Models asked for "JSON only" still wrap answers in code fences, prepend
// prose, emit <think> blocks, or truncate the closing bracket. Parse strips
// that noise, decodes strictly, repairs syntax errors with jsonrepair, and
// hands the decoded value to a stage-specific converter. Any failure along the
// way yields the stage's fallback instead of an error.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeBlock  = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n(.*?)\n?```")
)

// ErrNoJSON is returned by Decode when the output holds nothing decodable.
var ErrNoJSON = errors.New("no JSON value in model output")

// StripThinkBlocks removes <think>...</think> reasoning blocks that some
// models (qwen3, deepseek-r1) put ahead of their answer.
func StripThinkBlocks(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}

// Extract returns the most likely JSON text inside raw: the body of the first
// fenced code block, else the span from the first '{' or '[' to the last
// matching closer, else the trimmed input.
func Extract(raw string) string {
	text := StripThinkBlocks(raw)
	if m := codeBlock.FindStringSubmatch(text); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		// Unterminated; leave the tail for the repair step.
		return text[start:]
	}
	return text[start : end+1]
}

// Decode extracts and decodes a JSON value from raw model output. Syntax
// errors get one repair attempt before Decode gives up.
func Decode(raw string) (any, error) {
	text := Extract(raw)
	if text == "" {
		return nil, ErrNoJSON
	}

	var v any
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		return v, nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return nil, err
	}

	fixed, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return nil, fmt.Errorf("%w (repair failed: %v)", err, repairErr)
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil, fmt.Errorf("decoding repaired JSON: %w", err)
	}
	return v, nil
}

// Converter validates a decoded JSON value and projects it into T.
type Converter[T any] func(v any) (T, error)

// Parse decodes raw, converts it with convert, and returns the result with
// ok set. When decoding or conversion fails, Parse returns fallback(err) with
// ok unset and err describing the failure for diagnostics; callers log it and
// carry on with the fallback value.
func Parse[T any](raw string, convert Converter[T], fallback func(error) T) (value T, ok bool, err error) {
	v, err := Decode(raw)
	if err != nil {
		return fallback(err), false, err
	}
	value, err = convert(v)
	if err != nil {
		return fallback(err), false, err
	}
	return value, true, nil
}

// Object asserts that v is a JSON object.
func Object(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", Kind(v))
	}
	return m, nil
}

// Kind names the JSON kind of a decoded value for diagnostics.
func Kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// String renders a decoded scalar as text. Strings pass through; numbers and
// booleans are formatted; null and containers yield "" and false.
func String(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return fmt.Sprint(x), true
	case json.Number:
		return x.String(), true
	case bool:
		return fmt.Sprint(x), true
	default:
		return "", false
	}
}

// Strings converts a JSON array into trimmed, non-blank strings. Scalars are
// stringified; a non-array yields nil.
func Strings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		s, ok := String(el)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
