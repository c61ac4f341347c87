// Package codec encodes the synthetic track's 20ms PCM frames to Opus
// immediately before they're handed to the WebRTC media track, and
// decodes inbound Opus RTP payloads back to PCM for the audio tap.
// pion/webrtc media tracks carry encoded samples, not raw PCM (spec
// §4.4 implementation note, SPEC_FULL §4).
package codec

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"
)

// Encoder wraps an Opus encoder fixed to the synthetic track's format:
// 48kHz stereo, one 20ms frame (960 samples/channel) per call.
type Encoder struct {
	enc *opus.Encoder
}

// NewEncoder constructs an Opus encoder tuned for voice (VoIP
// application profile trades bandwidth for speech clarity).
func NewEncoder(sampleRate, channels int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("codec: new opus encoder: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// Encode compresses one interleaved PCM frame into an Opus packet.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	// Opus packets for a 20ms voice frame are comfortably under 4000
	// bytes even at the highest bitrate profiles.
	buf := make([]byte, 4000)
	n, err := e.enc.Encode(pcm, buf)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encode: %w", err)
	}
	return buf[:n], nil
}

// Decoder wraps an Opus decoder for the inbound audio tap.
type Decoder struct {
	dec      *opus.Decoder
	channels int
}

// NewDecoder constructs an Opus decoder for the given format.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: new opus decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

// Decode expands one Opus packet back into interleaved PCM.
func (d *Decoder) Decode(packet []byte, frameSamplesPerChannel int) ([]int16, error) {
	pcm := make([]int16, frameSamplesPerChannel*d.channels)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decode: %w", err)
	}
	return pcm[:n*d.channels], nil
}
