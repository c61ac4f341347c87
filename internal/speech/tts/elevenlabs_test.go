package tts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionString_DefaultVoice(t *testing.T) {
	connStr := connectionString("")
	assert.Contains(t, connStr, "wss://api.elevenlabs.io/v1/text-to-speech/")
	assert.Contains(t, connStr, elevenLabsDefaultVoiceID)
	assert.Contains(t, connStr, "output_format=pcm_16000")
	assert.Contains(t, connStr, "enable_ssml_parsing=true")
}

func TestConnectionString_CustomVoice(t *testing.T) {
	connStr := connectionString("custom-voice-id")
	assert.Contains(t, connStr, "/custom-voice-id/multi-stream-input?")
	assert.NotContains(t, connStr, elevenLabsDefaultVoiceID)
}

func TestBytesToInt16_RoundTrip(t *testing.T) {
	raw := []byte{0x01, 0x00, 0xFF, 0xFF}
	got := bytesToInt16(raw)
	assert.Equal(t, []int16{1, -1}, got)
}

func TestDuplicateMono_InterleavesIdenticalChannels(t *testing.T) {
	mono := []int16{10, 20, 30}
	got := duplicateMono(mono)
	assert.Equal(t, []int16{10, 10, 20, 20, 30, 30}, got)
}
