package tts

import (
	"context"
	"fmt"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
)

// New selects a Client per cfg.TTSProvider (SPEC_FULL §4.15).
func New(ctx context.Context, logger commons.Logger, cfg *config.AppConfig) (Client, error) {
	switch cfg.TTSProvider {
	case "google":
		return NewGoogleTTSClient(ctx, logger)
	case "elevenlabs", "":
		return NewElevenLabsClient(logger, cfg.ElevenLabsAPIKey), nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", cfg.TTSProvider)
	}
}
