package transcription

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/rpc"
)

// rpcClient is the default C7 backend: JSON-RPC over a websocket to
// TRANSCRIPTION_SERVER_URL (spec §6). Samples are serialized as a
// JSON array of int16 values per spec §4.7's implementation note.
type rpcClient struct {
	logger commons.Logger
	conn   *websocket.Conn
	framer *rpc.Framer
}

// audioDataParams mirrors the wire shape in spec §6:
// audio_data{id, data:int16[]}.
type audioDataParams struct {
	ID   string  `json:"id"`
	Data []int16 `json:"data"`
}

type cancelParams struct {
	ID string `json:"id"`
}

type transcribeParams struct {
	ID         string `json:"id"`
	SampleRate int    `json:"sample_rate"`
}

type transcribeResult struct {
	Text string `json:"text"`
}

// Dial connects to the transcription server over websocket and wires
// a Framer for request/notify traffic.
func Dial(ctx context.Context, logger commons.Logger, url string) (Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transcription: dial %s: %w", url, err)
	}

	c := &rpcClient{logger: logger, conn: conn}
	c.framer = rpc.NewFramer(logger, func(data []byte) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	})

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.framer.HandleMessage(ctx, data)
		}
	}()

	return c, nil
}

func (c *rpcClient) AudioData(ctx context.Context, utteranceID string, samples []int16) error {
	_, err := c.framer.Call(ctx, "audio_data", audioDataParams{ID: utteranceID, Data: samples}, false, 0)
	return err
}

func (c *rpcClient) CancelTranscription(ctx context.Context, utteranceID string) error {
	_, err := c.framer.Call(ctx, "cancel_transcription", cancelParams{ID: utteranceID}, false, 0)
	return err
}

func (c *rpcClient) Transcribe(ctx context.Context, utteranceID string, sampleRate int) (string, error) {
	raw, err := c.framer.Call(ctx, "transcribe", transcribeParams{ID: utteranceID, SampleRate: sampleRate}, true, Timeout)
	if err != nil {
		return "", err
	}
	var result transcribeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("transcription: decode transcribe result: %w", err)
	}
	return result.Text, nil
}

// Close releases the underlying websocket connection.
func (c *rpcClient) Close() error { return c.conn.Close() }
