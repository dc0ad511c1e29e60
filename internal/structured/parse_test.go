// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structured

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare array", `["a","b"]`, `["a","b"]`},
		{"fenced json", "Sure:\n```json\n{\"x\": 1}\n```\nDone.", `{"x": 1}`},
		{"fenced without language", "```\n[1, 2]\n```", `[1, 2]`},
		{"prose around object", `Here you go: {"ok": true} hope it helps`, `{"ok": true}`},
		{"think block stripped", "<think>maybe [1]</think>\n[\"q\"]", `["q"]`},
		{"unterminated keeps tail", `Answer: ["a", "b"`, `["a", "b"`},
		{"no json", "  just words  ", "just words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.raw))
		})
	}
}

func TestDecode(t *testing.T) {
	v, err := Decode("```json\n{\"sufficient\": true}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sufficient": true}, v)

	v, err = Decode(`["a", "b", "c"`)
	require.NoError(t, err, "missing closing bracket should be repaired")
	assert.Equal(t, []any{"a", "b", "c"}, v)

	_, err = Decode("   ")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestParseFallsBack(t *testing.T) {
	convert := func(v any) (int, error) {
		list, ok := v.([]any)
		if !ok || len(list) != 2 {
			return 0, errors.New("want two elements")
		}
		return len(list), nil
	}
	fallback := func(error) int { return -1 }

	got, ok, err := Parse(`[1, 2]`, convert, fallback)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 2, got)

	got, ok, err = Parse(`[1, 2, 3]`, convert, fallback)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, -1, got)

	got, ok, _ = Parse(``, convert, fallback)
	assert.False(t, ok)
	assert.Equal(t, -1, got)
}

func TestObject(t *testing.T) {
	m, err := Object(map[string]any{"a": 1.0})
	require.NoError(t, err)
	assert.Len(t, m, 1)

	_, err = Object([]any{})
	assert.ErrorContains(t, err, "got array")

	_, err = Object("text")
	assert.ErrorContains(t, err, "got string")
}

func TestStrings(t *testing.T) {
	got := Strings([]any{" one ", "", 2.0, true, nil, map[string]any{}, "  "})
	assert.Equal(t, []string{"one", "2", "true"}, got)
	assert.Nil(t, Strings("not a list"))
}
