// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"bytes"
	"text/template"
)

// Sampling parameters per stage: temperature, then the output token cap.
const (
	queriesTemperature     = 0.3
	queriesMaxTokens       = 300
	refinementTemperature  = 0.4
	refinementMaxTokens    = 300
	summaryTemperature     = 0.1
	summaryMaxTokens       = 1000
	sufficiencyTemperature = 0.0
	sufficiencyMaxTokens   = 500
	reportTemperature      = 0.2
	reportMaxTokens        = 1800
)

var initialQueriesTmpl = template.Must(template.New("initial").Parse(`You will generate exactly three diverse Google search queries that would help answer the user's question.
Return ONLY a compact JSON array of strings like ["query1", "query2", "query3"]. Do not add any other text.

User question: "{{.Question}}"`))

var refinementQueriesTmpl = template.Must(template.New("refinement").Parse(`Based on the user's question and the existing summaries, produce three refined Google search queries
optimized to fill remaining gaps. Return ONLY a JSON array of strings.

User question: "{{.Question}}"`))

var summaryTmpl = template.Must(template.New("summary").Parse(`You are given multiple web search results for the query: "{{.Query}}".
Write a concise, objective summary (8-12 bullets) capturing key facts, definitions, trends, and differing viewpoints.
- Cite sources inline using reference markers like [1], [2], etc., corresponding to the numbered sources below.
- Avoid speculation; prefer verifiable facts.
- Return JSON with the following shape only:
  {
    "summary_markdown": "markdown bullets with [n] citations",
    "key_points": ["point 1", "point 2", …]
  }

Sources:
{{.Digest}}`))

var sufficiencyTmpl = template.Must(template.New("sufficiency").Parse(`Consider the user's question and the summaries/key points below. Decide if we have enough information to answer thoroughly.
Return ONLY JSON of the form:
{
  "sufficient": true | false,
  "reason": "short explanation",
  "additional_queries": ["q1", "q2", "q3"]
}

User question: "{{.Question}}"

Key points:
{{- range .KeyPoints}}
- {{.}}
{{- end}}

Summaries (markdown with citations):
{{.Summaries}}`))

var reportTmpl = template.Must(template.New("report").Parse(`Write a concise, well-structured report answering the user's question using the collected research below.
Requirements:
- Include sections: Executive Summary, Findings (with subheadings), Limitations, and References.
- Use markdown.
- Use numeric citations like [1], [2] that map to the References list provided.
- Be precise and avoid speculation; prefer verifiable facts.

User question: "{{.Question}}"

Research summaries:
{{.Summaries}}

References (map [n] to these):
{{.References}}`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
