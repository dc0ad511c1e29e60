// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/pkg/types"
)

// LlamaStack talks to the Llama Stack Agents API. Each session registers its
// own agent with persistence disabled, so nothing outlives the process.
//
// The Agents API fixes sampling parameters when the agent is created; the
// per-request Temperature and MaxTokens are logged but not sent.
type LlamaStack struct {
	cfg    types.ChatConfig
	client *http.Client
	logger *slog.Logger
}

// NewLlamaStack returns a Llama Stack agents client for cfg.
func NewLlamaStack(cfg types.ChatConfig, opts ...Option) *LlamaStack {
	o := buildOptions(&http.Client{Timeout: cfg.Timeout}, opts)
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	return &LlamaStack{
		cfg:    cfg,
		client: o.httpClient,
		logger: o.logger.With("component", "chat", "backend", "llamastack"),
	}
}

type agentConfig struct {
	Model                    string   `json:"model"`
	Instructions             string   `json:"instructions"`
	Toolgroups               []string `json:"toolgroups"`
	EnableSessionPersistence bool     `json:"enable_session_persistence"`
}

type turnRequest struct {
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// NewSession registers an agent and opens a session named name on it.
func (l *LlamaStack) NewSession(ctx context.Context, name string) (Session, error) {
	toolgroups := l.cfg.ToolGroups
	if toolgroups == nil {
		toolgroups = []string{}
	}

	var agent struct {
		AgentID string `json:"agent_id"`
	}
	err := l.post(ctx, "/v1/agents", map[string]any{
		"agent_config": agentConfig{
			Model:        l.cfg.Model,
			Instructions: l.cfg.Instructions,
			Toolgroups:   toolgroups,
		},
	}, &agent)
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	if agent.AgentID == "" {
		return nil, fmt.Errorf("creating agent: response has no agent_id")
	}

	var session struct {
		SessionID string `json:"session_id"`
	}
	path := "/v1/agents/" + url.PathEscape(agent.AgentID) + "/session"
	if err := l.post(ctx, path, map[string]string{"session_name": name}, &session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if session.SessionID == "" {
		return nil, fmt.Errorf("creating session: response has no session_id")
	}

	l.logger.Info("agent session created", "agent_id", agent.AgentID, "session_id", session.SessionID)
	return &llamaSession{parent: l, agentID: agent.AgentID, sessionID: session.SessionID}, nil
}

type llamaSession struct {
	parent    *LlamaStack
	agentID   string
	sessionID string
}

func (s *llamaSession) ID() string { return s.sessionID }

// Chat sends one non-streaming turn and returns the assistant text.
func (s *llamaSession) Chat(ctx context.Context, req Request) (string, error) {
	l := s.parent
	l.logger.Debug("sending turn",
		"session_id", s.sessionID,
		"temperature", req.temperature(),
		"max_tokens", req.maxTokens())

	path := fmt.Sprintf("/v1/agents/%s/session/%s/turn",
		url.PathEscape(s.agentID), url.PathEscape(s.sessionID))

	var turn map[string]any
	if err := l.post(ctx, path, turnRequest{Messages: req.Messages, Stream: false}, &turn); err != nil {
		return "", fmt.Errorf("agent turn: %w", err)
	}

	text := clean(turnText(turn))
	l.logger.Debug("agent output", "text", preview(text, 300))
	return text, nil
}

// turnText extracts assistant text from a turn: output_message.content as a
// string or a list of text items, then output_message.text, then the whole
// turn serialized.
func turnText(turn map[string]any) string {
	if msg, ok := turn["output_message"].(map[string]any); ok {
		if text := contentText(msg["content"]); text != "" {
			return text
		}
		if text, ok := msg["text"].(string); ok && text != "" {
			return text
		}
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Sprint(turn)
	}
	return string(data)
}

func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case map[string]any:
		text, _ := c["text"].(string)
		return text
	case []any:
		var parts []string
		for _, item := range c {
			if text := contentText(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "")
	}
	return ""
}

func (l *LlamaStack) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	endpoint := strings.TrimRight(l.cfg.BaseURL, "/") + path
	l.logger.Log(ctx, logging.LevelTrace, "request", "url", endpoint, "body", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", l.cfg.UserAgent)
	}
	if l.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, l.client, req, l.cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	l.logger.Log(ctx, logging.LevelTrace, "response", "url", endpoint, "status", resp.StatusCode, "body", string(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, preview(strings.TrimSpace(string(data)), 512))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
