// Package transcription implements C7: the RPC client for the
// external streaming ASR service (spec §4.7). Client is an interface
// with two backends (SPEC_FULL §4.13): the generic JSON-RPC transport
// (default) and a direct Deepgram SDK backend.
package transcription

import (
	"context"
	"time"
)

// Timeout is the deadline for the finalizing Transcribe call (spec §4.7).
const Timeout = 10 * time.Second

// Client is the C7 contract the segmenter drives.
type Client interface {
	// AudioData streams one chunk of an in-progress utterance (notify).
	AudioData(ctx context.Context, utteranceID string, samples []int16) error
	// CancelTranscription abandons an utterance without finalizing it (notify).
	CancelTranscription(ctx context.Context, utteranceID string) error
	// Transcribe finalizes an utterance and returns its text (request, Timeout deadline).
	Transcribe(ctx context.Context, utteranceID string, sampleRate int) (string, error)
}
