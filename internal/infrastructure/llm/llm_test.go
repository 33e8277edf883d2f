package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsIngest/internal/config"
	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/ports"
)

func TestChatGPTClientComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}],"usage":{"prompt_tokens":120,"completion_tokens":30}}`)
	}))
	defer server.Close()

	client := NewChatGPTClient(config.AIConfig{Endpoint: server.URL, Model: "gpt-4o-mini", APIKey: "sk-test"})
	out, err := client.Complete(context.Background(), ports.CompletionRequest{
		System: "be brief",
		Messages: []ports.ChatMessage{
			{Role: "user", Content: "taxonomy"},
			{Role: "assistant", Content: "ok"},
			{Role: "user", Content: "article"},
		},
		MaxTokens: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, out.Content)
	assert.Equal(t, 120, out.PromptTokens)
	assert.Equal(t, 30, out.CompletionTokens)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
}

func TestChatGPTClientErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewChatGPTClient(config.AIConfig{Endpoint: server.URL, Model: "m", APIKey: "k"})
	_, err := client.Complete(context.Background(), ports.CompletionRequest{Messages: []ports.ChatMessage{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorAI, crawlerr.TypeOf(err))
	assert.Contains(t, err.Error(), "rate limited")

	_, err = NewChatGPTClient(config.AIConfig{Model: "m"}).Complete(context.Background(), ports.CompletionRequest{})
	assert.ErrorContains(t, err, "misconfigured")
}

func TestAnthropicClientComplete(t *testing.T) {
	t.Parallel()

	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "first "}, {"type": "text", "text": "second"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 40, "output_tokens": 9}
		}`)
	}))
	defer server.Close()

	client := NewAnthropicClient(config.AIConfig{Endpoint: server.URL, Model: "claude-test", APIKey: "key"})
	out, err := client.Complete(context.Background(), ports.CompletionRequest{
		System:   "system prompt",
		Messages: []ports.ChatMessage{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi"}, {Role: "user", Content: "score"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "first second", out.Content)
	assert.Equal(t, 40, out.PromptTokens)
	assert.Equal(t, 9, out.CompletionTokens)
	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, defaultAnthropicMaxTokens, body["max_tokens"])
	assert.Len(t, body["messages"], 3)
}

func TestNewCompleterSelectsProvider(t *testing.T) {
	t.Parallel()

	c, err := NewCompleter(config.AIConfig{Provider: "Anthropic"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)

	c, err = NewCompleter(config.AIConfig{})
	require.NoError(t, err)
	assert.IsType(t, &ChatGPTClient{}, c)

	_, err = NewCompleter(config.AIConfig{Provider: "bard"})
	assert.Error(t, err)
}
