package transcription

import (
	"context"
	"fmt"
	"sync"

	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces/v1"
	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/orbitalk/agent/internal/commons"
)

// deepgramClient is the direct-to-Deepgram C7 backend (SPEC_FULL
// §4.13), selected by TRANSCRIPTION_PROVIDER=deepgram for deployments
// that skip a bridging RPC server. Deepgram streams one live
// connection per utterance the way this spec's audio_data/transcribe
// pair implies a per-utterance lifecycle; a fresh connection is opened
// on the first AudioData call and finalized in Transcribe.
type deepgramClient struct {
	logger commons.Logger
	apiKey string

	mu          sync.Mutex
	connections map[string]*deepgramUtterance
}

type deepgramUtterance struct {
	conn   *client.WSChannel
	mu     sync.Mutex
	text   string
	closed bool
}

// NewDeepgramClient constructs a Client backed directly by Deepgram's
// streaming API.
func NewDeepgramClient(logger commons.Logger, apiKey string) Client {
	return &deepgramClient{
		logger:      logger,
		apiKey:      apiKey,
		connections: make(map[string]*deepgramUtterance),
	}
}

func (d *deepgramClient) getOrOpen(ctx context.Context, utteranceID string, sampleRate int) (*deepgramUtterance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.connections[utteranceID]; ok {
		return u, nil
	}

	u := &deepgramUtterance{}
	cOptions := &interfaces.ClientOptions{APIKey: d.apiKey}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:      "nova-2",
		Language:   "en-US",
		Encoding:   "linear16",
		SampleRate: sampleRate,
		Channels:   1,
		Punctuate:  true,
		SmartFormat: true,
	}

	callback := &deepgramCallback{utterance: u}
	conn, err := client.NewWSUsingCallback(ctx, d.apiKey, cOptions, tOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("transcription: deepgram connect: %w", err)
	}
	if !conn.Connect() {
		return nil, fmt.Errorf("transcription: deepgram connect failed for utterance %s", utteranceID)
	}
	u.conn = conn
	d.connections[utteranceID] = u
	return u, nil
}

func (d *deepgramClient) AudioData(ctx context.Context, utteranceID string, samples []int16) error {
	u, err := d.getOrOpen(ctx, utteranceID, 16000)
	if err != nil {
		return err
	}
	return u.write(samples)
}

func (u *deepgramUtterance) write(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[2*i] = byte(s)
		buf[2*i+1] = byte(s >> 8)
	}
	if _, err := u.conn.Write(buf); err != nil {
		return fmt.Errorf("transcription: deepgram write: %w", err)
	}
	return nil
}

func (d *deepgramClient) CancelTranscription(ctx context.Context, utteranceID string) error {
	d.mu.Lock()
	u, ok := d.connections[utteranceID]
	delete(d.connections, utteranceID)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	u.conn.Stop()
	return nil
}

func (d *deepgramClient) Transcribe(ctx context.Context, utteranceID string, sampleRate int) (string, error) {
	d.mu.Lock()
	u, ok := d.connections[utteranceID]
	delete(d.connections, utteranceID)
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("transcription: no active deepgram utterance %s", utteranceID)
	}
	u.conn.Stop()

	u.mu.Lock()
	defer u.mu.Unlock()
	return u.text, nil
}

// deepgramCallback accumulates transcript fragments as Deepgram
// streams interim and final results for one utterance's connection.
type deepgramCallback struct {
	utterance *deepgramUtterance
}

func (c *deepgramCallback) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	c.utterance.mu.Lock()
	if mr.IsFinal {
		if c.utterance.text != "" {
			c.utterance.text += " "
		}
		c.utterance.text += transcript
	}
	c.utterance.mu.Unlock()
	return nil
}

func (c *deepgramCallback) Open(*api.OpenResponse) error             { return nil }
func (c *deepgramCallback) Metadata(*api.MetadataResponse) error     { return nil }
func (c *deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }
func (c *deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error   { return nil }
func (c *deepgramCallback) Close(*api.CloseResponse) error           { return nil }
func (c *deepgramCallback) Error(*api.ErrorResponse) error           { return nil }
func (c *deepgramCallback) UnhandledEvent([]byte) error              { return nil }
