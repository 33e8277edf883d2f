package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NewsIngest/internal/config"
	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/ports"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// ChatGPTClient implements ports.Completer against OpenAI-compatible chat-completions APIs.
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.Completer = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.AIConfig) *ChatGPTClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatGPTClient{
		endpoint:   endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends the conversation and returns the first choice with token usage.
func (c *ChatGPTClient) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	if c == nil {
		return ports.Completion{}, crawlerr.AI("chatgpt", errors.New("client is nil"))
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	if c.apiKey == "" || c.endpoint == "" || model == "" {
		return ports.Completion{}, crawlerr.AI("chatgpt", errors.New("client misconfigured"))
	}

	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if prompt := strings.TrimSpace(req.System); prompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, MaxTokens: req.MaxTokens})
	if err != nil {
		return ports.Completion{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.Completion{}, crawlerr.AI("chatgpt request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ports.Completion{}, crawlerr.AI("chatgpt", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(payload))))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.Completion{}, crawlerr.AI("decode chatgpt response", err)
	}
	if len(decoded.Choices) == 0 {
		return ports.Completion{}, crawlerr.AI("chatgpt", errors.New("no choices in response"))
	}

	return ports.Completion{
		Content:          decoded.Choices[0].Message.Content,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
	}, nil
}
