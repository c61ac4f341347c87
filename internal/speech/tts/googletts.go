package tts

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/orbitalk/agent/internal/audio/resample"
	"github.com/orbitalk/agent/internal/commons"
)

// googleTTSClient is the batch C10 backend selected by TTS_PROVIDER=google
// (SPEC_FULL §4.15), for deployments without an ElevenLabs credential.
// Google's API is not natively streaming; the whole utterance is
// synthesized before onChunk is invoked in fixed-size frames so the
// rest of C10 sees the same incremental delivery shape either way.
type googleTTSClient struct {
	logger     commons.Logger
	client     *texttospeech.Client
	chunkSize  int
	languageCode string
}

// NewGoogleTTSClient constructs a Client backed by Google Cloud
// Text-to-Speech. chunkSize is the number of int16 samples delivered
// per onChunk call (960 samples/channel * 2 channels matches the
// 20ms synthetic-track frame size).
func NewGoogleTTSClient(ctx context.Context, logger commons.Logger) (Client, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("tts: google texttospeech client: %w", err)
	}
	return &googleTTSClient{logger: logger, client: client, chunkSize: 1920, languageCode: "en-US"}, nil
}

func (c *googleTTSClient) Synthesize(ctx context.Context, voiceID, text string, onChunk func(pcm []int16)) error {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: text}},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: c.languageCode,
			Name:         voiceID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: 48000,
		},
	}

	resp, err := c.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return fmt.Errorf("tts: google synthesize: %w", err)
	}

	mono := bytesToInt16(resp.AudioContent)
	stereo, err := resample.Stereo(duplicateMono(mono), 48000, 48000)
	if err != nil {
		return fmt.Errorf("tts: google resample: %w", err)
	}

	for offset := 0; offset < len(stereo); offset += c.chunkSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		end := offset + c.chunkSize
		if end > len(stereo) {
			end = len(stereo)
		}
		onChunk(stereo[offset:end])
	}
	return nil
}
