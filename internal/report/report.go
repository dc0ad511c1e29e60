// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report assembles the reference list and per-query summaries that
// feed the final report prompt, and validates the [n] citations in the
// report that comes back.
//
// Each batch summary cites its own digest positionally ([1] is the batch's
// first source). The report uses one reference list for the whole run, so
// batch-local markers are shifted by the number of references that precede
// the batch.
package report

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// MaxSourcesPerBatch bounds how many of a batch's sources are listed as
// references. It matches the summarizer's digest size, so every marker a
// summary can legitimately use has a reference.
const MaxSourcesPerBatch = 8

// citationPattern matches numeric citations, including comma or semicolon
// lists such as [1, 3] or [2; 5]. The second group captures an opening
// parenthesis so markdown links can be skipped.
var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*[,;]\s*\d+)*)\](\(?)`)

// Reference is one numbered entry in the run-wide reference list.
type Reference struct {
	Number int    `json:"number" yaml:"number"`
	Title  string `json:"title" yaml:"title"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Query  string `json:"query" yaml:"query"`
}

// BuildReferences numbers the first MaxSourcesPerBatch sources of every batch
// sequentially across the run. offsets[i] is the number of references that
// precede batch i.
func BuildReferences(batches []types.ResearchBatch) (refs []Reference, offsets []int) {
	offsets = make([]int, len(batches))
	for i, b := range batches {
		offsets[i] = len(refs)
		sources := b.Sources
		if len(sources) > MaxSourcesPerBatch {
			sources = sources[:MaxSourcesPerBatch]
		}
		for _, s := range sources {
			title := s.Title
			if title == "" {
				title = types.UntitledSource
			}
			refs = append(refs, Reference{
				Number: len(refs) + 1,
				Title:  title,
				URL:    s.URL,
				Query:  b.Query,
			})
		}
	}
	return refs, offsets
}

// FormatReferences renders the list as "- [n] Title — URL" lines.
func FormatReferences(refs []Reference) string {
	var b strings.Builder
	for i, r := range refs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- [%d] %s — %s", r.Number, r.Title, r.URL)
	}
	return b.String()
}

// FormatSummaries renders one "### Query:" section per batch, with citations
// renumbered to the run-wide reference list.
func FormatSummaries(batches []types.ResearchBatch, offsets []int) string {
	sections := make([]string, 0, len(batches))
	for i, b := range batches {
		if strings.TrimSpace(b.SummaryMarkdown) == "" {
			sections = append(sections, fmt.Sprintf("### Query: %s — (no summary)", b.Query))
			continue
		}
		count := min(len(b.Sources), MaxSourcesPerBatch)
		summary := RenumberCitations(b.SummaryMarkdown, offsets[i], count)
		sections = append(sections, fmt.Sprintf("### Query: %s\n\n%s", b.Query, summary))
	}
	return strings.Join(sections, "\n\n")
}

// RenumberCitations shifts every batch-local marker [k] with 1 <= k <= count
// to [k+offset]. Markers outside that range are left untouched for
// CheckCitations to report. Markdown links ([1](url)) are not citations.
func RenumberCitations(markdown string, offset, count int) string {
	if offset == 0 {
		return markdown
	}
	return replaceCitations(markdown, func(n int) int {
		if n >= 1 && n <= count {
			return n + offset
		}
		return n
	})
}

// CheckCitations returns the distinct citation numbers in markdown that do
// not name one of the count references, in ascending order.
func CheckCitations(markdown string, count int) []int {
	seen := make(map[int]bool)
	for _, n := range citationNumbers(markdown) {
		if n < 1 || n > count {
			seen[n] = true
		}
	}
	bad := make([]int, 0, len(seen))
	for n := range seen {
		bad = append(bad, n)
	}
	sort.Ints(bad)
	return bad
}

// citationNumbers extracts every number cited in markdown, in order of
// appearance, splitting multi-citations.
func citationNumbers(markdown string) []int {
	var nums []int
	for _, m := range citationPattern.FindAllStringSubmatch(markdown, -1) {
		if m[2] != "" {
			continue
		}
		for _, part := range splitCitation(m[1]) {
			if n, err := strconv.Atoi(part); err == nil {
				nums = append(nums, n)
			}
		}
	}
	return nums
}

func replaceCitations(markdown string, mapNum func(int) int) string {
	var b strings.Builder
	last := 0
	for _, loc := range citationPattern.FindAllStringSubmatchIndex(markdown, -1) {
		innerStart, innerEnd := loc[2], loc[3]
		if loc[5] > loc[4] {
			b.WriteString(markdown[last:loc[1]])
			last = loc[1]
			continue
		}
		b.WriteString(markdown[last:innerStart])

		parts := splitCitation(markdown[innerStart:innerEnd])
		for i, part := range parts {
			if i > 0 {
				b.WriteString(", ")
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				b.WriteString(part)
				continue
			}
			b.WriteString(strconv.Itoa(mapNum(n)))
		}
		last = innerEnd
	}
	b.WriteString(markdown[last:])
	return b.String()
}

func splitCitation(inner string) []string {
	parts := strings.FieldsFunc(inner, func(r rune) bool { return r == ',' || r == ';' })
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
