package tokenstream

import (
	"context"
	"fmt"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
)

// Connect selects and dials a Client per cfg.TokenStreamProvider
// (SPEC_FULL §4.14).
func Connect(ctx context.Context, logger commons.Logger, cfg *config.AppConfig) (Client, error) {
	switch cfg.TokenStreamProvider {
	case "openai":
		return NewOpenAIClient(logger, cfg.OpenAIAPIKey, "gpt-4o-mini"), nil
	case "anthropic":
		return NewAnthropicClient(logger, cfg.AnthropicAPIKey, "claude-3-5-sonnet-latest"), nil
	case "rpc", "":
		return Dial(ctx, logger, cfg.TokenStreamingServerURL)
	default:
		return nil, fmt.Errorf("tokenstream: unknown provider %q", cfg.TokenStreamProvider)
	}
}
