// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-research loop:
// normalized search results, per-query batches, sufficiency verdicts, and the
// terminal result of one research run.
package types

import "time"

// UntitledSource is the title given to a search result that carries none.
const UntitledSource = "Untitled"

// SearchResultRecord is one web search hit after normalization. Records are
// produced only by the search normalizer and are read-only downstream.
type SearchResultRecord struct {
	// Title is the page title, or UntitledSource when the tool supplied none.
	Title string `json:"title" yaml:"title"`

	// URL is the page location. Empty means the tool supplied no URL.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Content is the excerpt or body text returned by the tool.
	Content string `json:"content" yaml:"content"`
}

// ResearchBatch is the summarized result of searching one query.
type ResearchBatch struct {
	// Query is the search query that produced Sources.
	Query string `json:"query" yaml:"query"`

	// Sources lists the normalized results in tool order. Citation markers
	// [n] in SummaryMarkdown refer to Sources[n-1].
	Sources []SearchResultRecord `json:"sources" yaml:"sources"`

	// SummaryMarkdown is the model's cited summary of Sources.
	SummaryMarkdown string `json:"summary_markdown" yaml:"summary_markdown"`

	// KeyPoints are short standalone facts drawn from Sources.
	KeyPoints []string `json:"key_points" yaml:"key_points"`
}

// MaxAdditionalQueries caps the follow-up queries a verdict may carry.
const MaxAdditionalQueries = 3

// SufficiencyVerdict is the evaluator's decision for one round.
type SufficiencyVerdict struct {
	Sufficient        bool     `json:"sufficient" yaml:"sufficient"`
	Reason            string   `json:"reason" yaml:"reason"`
	AdditionalQueries []string `json:"additional_queries" yaml:"additional_queries"`
}

// ResearchResult is the terminal output of one research run.
type ResearchResult struct {
	// ID identifies the run in the archive.
	ID string `json:"id" yaml:"id"`

	// Question is the user's original question, never rewritten.
	Question string `json:"question" yaml:"question"`

	// RoundsExecuted counts planning→evaluation cycles; always at least 1.
	RoundsExecuted int `json:"rounds_executed" yaml:"rounds_executed"`

	// Batches holds every batch of every round in the order queries were planned.
	Batches []ResearchBatch `json:"batches" yaml:"batches"`

	// ReportMarkdown is the compiled, cited report.
	ReportMarkdown string `json:"report_markdown" yaml:"report_markdown"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// SourceCount returns the number of sources across all batches.
func (r *ResearchResult) SourceCount() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Sources)
	}
	return n
}
