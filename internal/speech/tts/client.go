// Package tts implements the streaming synthesis backends C10 drives
// (SPEC_FULL §4.15): output is always 48 kHz stereo int16 PCM chunks,
// regardless of which provider produced them.
package tts

import "context"

// Client synthesizes one sentence of speech into a sequence of PCM
// chunks, delivered to onChunk as they become available. Synthesize
// blocks until the sentence is fully delivered or ctx is cancelled —
// C10 calls it strictly sequentially, one sentence at a time.
type Client interface {
	Synthesize(ctx context.Context, voiceID, text string, onChunk func(pcm []int16)) error
}
