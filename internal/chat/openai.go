// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/pkg/types"
)

// OpenAI talks to any OpenAI-compatible chat completion endpoint. Sessions
// are stateless: every turn sends the system instructions plus the request's
// messages.
type OpenAI struct {
	cfg    types.ChatConfig
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAI returns an OpenAI-compatible client for cfg. An empty BaseURL
// selects the SDK default endpoint.
func NewOpenAI(cfg types.ChatConfig, opts ...Option) *OpenAI {
	o := buildOptions(&http.Client{Timeout: cfg.Timeout}, opts)
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(o.httpClient),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.UserAgent != "" {
		reqOpts = append(reqOpts, option.WithHeader("User-Agent", cfg.UserAgent))
	}
	client := openai.NewClient(reqOpts...)

	return &OpenAI{
		cfg:    cfg,
		client: &client,
		logger: o.logger.With("component", "chat", "backend", "openai"),
	}
}

// NewSession returns a stateless session handle.
func (c *OpenAI) NewSession(_ context.Context, name string) (Session, error) {
	id := name + "-" + uuid.NewString()
	c.logger.Info("chat session created", "session_id", id, "model", c.cfg.Model)
	return &openAISession{parent: c, id: id}, nil
}

type openAISession struct {
	parent *OpenAI
	id     string
}

func (s *openAISession) ID() string { return s.id }

// Chat sends one chat completion and returns the first choice's content.
func (s *openAISession) Chat(ctx context.Context, req Request) (string, error) {
	c := s.parent

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(c.cfg.Instructions)}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(req.temperature()),
		MaxTokens:   openai.Int(int64(req.maxTokens())),
	}
	c.logger.Log(ctx, logging.LevelTrace, "request", "session_id", s.id, "messages", len(messages))

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := clean(resp.Choices[0].Message.Content)
	c.logger.Debug("chat output",
		"session_id", s.id,
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"text", preview(text, 300))
	return text, nil
}
