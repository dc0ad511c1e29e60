// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string, backend types.ChatBackend) types.ChatConfig {
	return types.ChatConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 10 * time.Second},
		Backend:    backend,
		BaseURL:    baseURL,
		Model:      "test-model",
		ToolGroups: []string{"builtin::websearch"},
	}
}

// llamaServer fakes the three Agents API routes. turnBody is returned
// verbatim for every turn.
type llamaServer struct {
	agentBody   map[string]any
	sessionBody map[string]any
	turns       []turnRequest
	turnBody    string
}

func (s *llamaServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/v1/agents":
		json.NewDecoder(r.Body).Decode(&s.agentBody)
		fmt.Fprint(w, `{"agent_id": "agent-1"}`)
	case r.URL.Path == "/v1/agents/agent-1/session":
		json.NewDecoder(r.Body).Decode(&s.sessionBody)
		fmt.Fprint(w, `{"session_id": "sess-1"}`)
	case r.URL.Path == "/v1/agents/agent-1/session/sess-1/turn":
		var tr turnRequest
		json.NewDecoder(r.Body).Decode(&tr)
		s.turns = append(s.turns, tr)
		fmt.Fprint(w, s.turnBody)
	default:
		http.NotFound(w, r)
	}
}

func TestLlamaStackSessionAndTurn(t *testing.T) {
	fake := &llamaServer{turnBody: `{"turn_id": "t1", "output_message": {"role": "assistant", "content": "<think>plan</think>[\"a\", \"b\", \"c\"]"}}`}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	client := NewLlamaStack(testConfig(ts.URL, types.ChatLlamaStack), WithLogger(quietLogger()))
	session, err := client.NewSession(context.Background(), "deep_search_test")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID())

	cfg := fake.agentBody["agent_config"].(map[string]any)
	assert.Equal(t, "test-model", cfg["model"])
	assert.Equal(t, DefaultInstructions, cfg["instructions"])
	assert.Equal(t, []any{"builtin::websearch"}, cfg["toolgroups"])
	assert.Equal(t, false, cfg["enable_session_persistence"])
	assert.Equal(t, "deep_search_test", fake.sessionBody["session_name"])

	text, err := session.Chat(context.Background(), User("plan queries", 0.3, 300))
	require.NoError(t, err)
	assert.Equal(t, `["a", "b", "c"]`, text)

	require.Len(t, fake.turns, 1)
	assert.False(t, fake.turns[0].Stream)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "plan queries"}}, fake.turns[0].Messages)
}

func TestTurnText(t *testing.T) {
	tests := []struct {
		name string
		turn string
		want string
	}{
		{"string content", `{"output_message": {"content": "hello"}}`, "hello"},
		{"content items", `{"output_message": {"content": [{"type": "text", "text": "hel"}, {"type": "image"}, {"type": "text", "text": "lo"}]}}`, "hello"},
		{"text field", `{"output_message": {"content": "", "text": "from text"}}`, "from text"},
		{"stringified fallback", `{"turn_id": "t9"}`, `{"turn_id":"t9"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var turn map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.turn), &turn))
			assert.Equal(t, tt.want, turnText(turn))
		})
	}
}

func TestLlamaStackTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewLlamaStack(testConfig(ts.URL, types.ChatLlamaStack), WithLogger(quietLogger()))
	_, err := client.NewSession(context.Background(), "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating agent")
	assert.Contains(t, err.Error(), "400")
}

func TestLlamaStackBearerToken(t *testing.T) {
	var auth []string
	fake := &llamaServer{turnBody: `{"output_message": {"content": "ok"}}`}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		fake.ServeHTTP(w, r)
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL+"/", types.ChatLlamaStack)
	cfg.APIKey = "k"
	session, err := NewLlamaStack(cfg, WithLogger(quietLogger())).NewSession(context.Background(), "s")
	require.NoError(t, err)
	_, err = session.Chat(context.Background(), User("hi", 0, 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer k", "Bearer k", "Bearer k"}, auth)
}

func TestOpenAIChat(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 0, "model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "<think>x</think>  report"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
		}`)
	}))
	defer ts.Close()

	client, err := New(testConfig(ts.URL+"/v1/", types.ChatOpenAI), WithLogger(quietLogger()))
	require.NoError(t, err)
	session, err := client.NewSession(context.Background(), "deep_search")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.ID(), "deep_search-"))

	text, err := session.Chat(context.Background(), User("write it", 0.0, 1800))
	require.NoError(t, err)
	assert.Equal(t, "report", text)

	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, 0.0, body["temperature"])
	assert.Equal(t, 1800.0, body["max_tokens"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAIEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "c", "object": "chat.completion", "created": 0, "model": "m", "choices": []}`)
	}))
	defer ts.Close()

	session, err := NewOpenAI(testConfig(ts.URL+"/v1/", types.ChatOpenAI), WithLogger(quietLogger())).
		NewSession(context.Background(), "s")
	require.NoError(t, err)
	_, err = session.Chat(context.Background(), User("hi", 0.2, 10))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(types.ChatConfig{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRequestDefaults(t *testing.T) {
	var r Request
	assert.Equal(t, DefaultTemperature, r.temperature())
	assert.Equal(t, DefaultMaxTokens, r.maxTokens())

	r = User("p", 0.0, 0)
	assert.Equal(t, 0.0, r.temperature())
	assert.Equal(t, DefaultMaxTokens, r.maxTokens())
}
