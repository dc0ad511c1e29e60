// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// shorten collapses whitespace in s and, if the result is longer than width
// characters, cuts it at a word boundary and appends an ellipsis so the
// total stays within width. A first word longer than the budget is cut
// mid-word.
func shorten(s string, width int) string {
	words := strings.Fields(s)
	text := strings.Join(words, " ")
	if utf8.RuneCountInString(text) <= width {
		return text
	}
	if width <= 1 {
		return ellipsis
	}

	budget := width - 1
	var b strings.Builder
	n := 0
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		sep := 0
		if n > 0 {
			sep = 1
		}
		if n+sep+wl > budget {
			break
		}
		if sep == 1 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		n += sep + wl
	}
	if n == 0 {
		return string([]rune(words[0])[:budget]) + ellipsis
	}
	return b.String() + ellipsis
}
