package transcription

import (
	"context"
	"fmt"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
)

// Connect selects and dials a Client per cfg.TranscriptionProvider
// (SPEC_FULL §4.13), mirroring tokenstream.Connect's provider switch.
func Connect(ctx context.Context, logger commons.Logger, cfg *config.AppConfig) (Client, error) {
	switch cfg.TranscriptionProvider {
	case "deepgram":
		return NewDeepgramClient(logger, cfg.DeepgramAPIKey), nil
	case "rpc", "":
		return Dial(ctx, logger, cfg.TranscriptionServerURL)
	default:
		return nil, fmt.Errorf("transcription: unknown provider %q", cfg.TranscriptionProvider)
	}
}
