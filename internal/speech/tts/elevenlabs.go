package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/orbitalk/agent/internal/audio/resample"
	"github.com/orbitalk/agent/internal/commons"
)

const elevenLabsDefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// elevenLabsClient streams synthesis over ElevenLabs'
// multi-stream-input websocket endpoint. ElevenLabs streams
// pcm_16000 mono; output is upsampled to the 48 kHz stereo contract
// every tts.Client promises.
type elevenLabsClient struct {
	logger commons.Logger
	apiKey string
}

// NewElevenLabsClient constructs a Client backed by ElevenLabs.
func NewElevenLabsClient(logger commons.Logger, apiKey string) Client {
	return &elevenLabsClient{logger: logger, apiKey: apiKey}
}

func connectionString(voiceID string) string {
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoiceID
	}
	q := url.Values{}
	q.Set("output_format", "pcm_16000")
	q.Set("enable_ssml_parsing", "true")
	return fmt.Sprintf("wss://api.elevenlabs.io/v1/text-to-speech/%s/multi-stream-input?%s", voiceID, q.Encode())
}

type elevenLabsOutbound struct {
	Text    string `json:"text"`
	XiAPIKey string `json:"xi_api_key,omitempty"`
	Flush   bool   `json:"flush,omitempty"`
}

type elevenLabsInbound struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}

func (c *elevenLabsClient) Synthesize(ctx context.Context, voiceID, text string, onChunk func(pcm []int16)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, connectionString(voiceID), nil)
	if err != nil {
		return fmt.Errorf("tts: elevenlabs dial: %w", err)
	}
	defer conn.Close()

	init, _ := json.Marshal(elevenLabsOutbound{Text: " ", XiAPIKey: c.apiKey})
	if err := conn.WriteMessage(websocket.TextMessage, init); err != nil {
		return fmt.Errorf("tts: elevenlabs init: %w", err)
	}
	body, _ := json.Marshal(elevenLabsOutbound{Text: text})
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return fmt.Errorf("tts: elevenlabs send text: %w", err)
	}
	flush, _ := json.Marshal(elevenLabsOutbound{Text: "", Flush: true})
	if err := conn.WriteMessage(websocket.TextMessage, flush); err != nil {
		return fmt.Errorf("tts: elevenlabs flush: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("tts: elevenlabs read: %w", err)
		}
		var msg elevenLabsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnw("tts: elevenlabs dropping malformed message", "error", err)
			continue
		}
		if msg.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				c.logger.Warnw("tts: elevenlabs bad base64 audio", "error", err)
				continue
			}
			mono := bytesToInt16(raw)
			stereo, err := resample.Stereo(duplicateMono(mono), 16000, 48000)
			if err != nil {
				c.logger.Warnw("tts: elevenlabs resample failed", "error", err)
				continue
			}
			onChunk(stereo)
		}
		if msg.IsFinal {
			return nil
		}
	}
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

// duplicateMono interleaves a mono stream into stereo so the shared
// resample.Stereo helper (which expects interleaved L/R) can upsample
// it; both channels carry identical samples.
func duplicateMono(mono []int16) []int16 {
	out := make([]int16, len(mono)*2)
	for i, s := range mono {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}
