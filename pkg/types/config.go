// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by backends that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries bounds retries on HTTP 429/503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ChatBackend identifies the language-model endpoint flavor.
type ChatBackend string

const (
	ChatLlamaStack ChatBackend = "llamastack"
	ChatOpenAI     ChatBackend = "openai"
)

// ChatConfig holds settings for the chat/turn endpoint.
type ChatConfig struct {
	HTTPConfig `yaml:",inline"`

	// Backend selects the wire protocol: llamastack or openai.
	Backend ChatBackend `json:"backend" yaml:"backend"`

	// BaseURL is the server root (e.g. "http://localhost:8321").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the model identifier passed to the endpoint.
	Model string `json:"model" yaml:"model"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Instructions is the agent-level system prompt.
	Instructions string `json:"instructions" yaml:"instructions"`

	// ToolGroups are attached to Llama Stack agents (e.g. "builtin::websearch").
	ToolGroups []string `json:"tool_groups,omitempty" yaml:"tool_groups,omitempty"`
}

// SearchBackend identifies the web search tool endpoint.
type SearchBackend string

const (
	SearchToolRuntime SearchBackend = "tool"
	SearchTavily      SearchBackend = "tavily"
)

// SearchConfig holds settings for the web search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Backend selects the search endpoint: tool (Llama Stack tool runtime) or tavily.
	Backend SearchBackend `json:"backend" yaml:"backend"`

	// BaseURL is the Llama Stack server root for the tool backend.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// ToolGroup is the tool group searched for a websearch tool identifier.
	ToolGroup string `json:"tool_group" yaml:"tool_group"`

	// APIKey authenticates against the search endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxResults is the number of results requested per query (default 6).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Depth is passed as search_depth (default "advanced").
	Depth string `json:"depth" yaml:"depth"`

	// ResultQuery is an optional jq expression applied to the raw payload
	// before normalization.
	ResultQuery string `json:"result_query,omitempty" yaml:"result_query,omitempty"`
}

// ResearchConfig controls the orchestration loop.
type ResearchConfig struct {
	// MaxExtraRounds bounds rounds after the first; total rounds ≤ MaxExtraRounds+1.
	MaxExtraRounds int `json:"max_extra_rounds" yaml:"max_extra_rounds"`

	// MaxResults is the number of results requested per query.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Parallel searches and summarizes a round's queries concurrently.
	Parallel bool `json:"parallel" yaml:"parallel"`
}

// DefaultMaxExtraRounds is the refinement round budget when none is configured.
const DefaultMaxExtraRounds = 2

// DefaultMaxResults is the per-query result count when none is configured.
const DefaultMaxResults = 6

// DefaultResearchConfig returns the loop settings used by the CLI defaults.
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		MaxExtraRounds: DefaultMaxExtraRounds,
		MaxResults:     DefaultMaxResults,
	}
}

// ArchiveConfig holds settings for the SQLite run archive.
type ArchiveConfig struct {
	// Path is the database file. Empty disables archiving.
	Path string `json:"path" yaml:"path"`
}

// RunConfig groups all settings for one CLI invocation.
type RunConfig struct {
	Chat     ChatConfig     `json:"chat" yaml:"chat"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Research ResearchConfig `json:"research" yaml:"research"`
	Archive  ArchiveConfig  `json:"archive" yaml:"archive"`

	// Output is an optional result file (.yaml, .yml, or .json).
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// Trace enables OpenTelemetry span output on stderr.
	Trace bool `json:"trace" yaml:"trace"`
}
