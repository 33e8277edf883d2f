package llm

import (
	"fmt"
	"strings"

	"NewsIngest/internal/config"
	"NewsIngest/internal/ports"
)

// NewCompleter selects the provider named in configuration.
func NewCompleter(cfg config.AIConfig) (ports.Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai", "chatgpt":
		return NewChatGPTClient(cfg), nil
	case "anthropic", "claude":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
