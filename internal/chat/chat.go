// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chat is the language-model primitive shared by every research
// stage: role+content messages in, assistant text out.
//
// A Client opens Sessions. A Session is the explicit per-run conversation
// handle; nothing in this package keeps process-wide client state.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/deep-research/internal/structured"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultInstructions is the agent-level system prompt used when none is
// configured.
const DefaultInstructions = "You are a research planner and summarizer. When asked to output JSON, return only valid JSON."

// Defaults applied when a Request leaves a field unset.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1200
)

// ErrEmptyResponse is returned when the endpoint answers without any
// assistant content.
var ErrEmptyResponse = errors.New("chat endpoint returned no content")

// Message is one role+content turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single non-streaming chat call. A nil Temperature or a zero
// MaxTokens selects the defaults.
type Request struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Temperature returns a pointer to t for use in Request.
func Temperature(t float64) *float64 { return &t }

// User builds a request holding a single user message.
func User(prompt string, temperature float64, maxTokens int) Request {
	return Request{
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: Temperature(temperature),
		MaxTokens:   maxTokens,
	}
}

func (r Request) temperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

// Session sends turns within one conversation. Implementations return
// transport failures (unreachable endpoint, non-2xx, timeout) as errors.
type Session interface {
	ID() string
	Chat(ctx context.Context, req Request) (string, error)
}

// Client opens sessions against a chat endpoint.
type Client interface {
	NewSession(ctx context.Context, name string) (Session, error)
}

// New returns the client for cfg.Backend.
func New(cfg types.ChatConfig, opts ...Option) (Client, error) {
	switch cfg.Backend {
	case types.ChatLlamaStack, "":
		return NewLlamaStack(cfg, opts...), nil
	case types.ChatOpenAI:
		return NewOpenAI(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("unknown chat backend %q (valid: llamastack, openai)", cfg.Backend)
	}
}

// clean strips reasoning blocks from assistant text.
func clean(text string) string {
	return structured.StripThinkBlocks(text)
}
