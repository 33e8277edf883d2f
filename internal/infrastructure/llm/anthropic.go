package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"NewsIngest/internal/config"
	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/ports"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements ports.Completer with the Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

var _ ports.Completer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client; Endpoint overrides the API base URL.
func NewAnthropicClient(cfg config.AIConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), model: cfg.Model}
}

// Complete maps the conversation onto a Messages call and joins the text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return ports.Completion{}, crawlerr.AI("anthropic", errors.New("model not configured"))
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return ports.Completion{}, crawlerr.AI("anthropic request", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ports.Completion{
		Content:          text.String(),
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, nil
}
