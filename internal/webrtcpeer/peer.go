// Package webrtcpeer implements C3: one peer's WebRTC session, with
// no protobuf envelope — just subscribable Go callbacks, and a single
// outbound Opus track driven by audiotrack.Track.
package webrtcpeer

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/orbitalk/agent/internal/audio/codec"
	"github.com/orbitalk/agent/internal/commons"
)

const (
	opusSampleRate       = 48000
	opusChannels         = 2
	maxConsecutiveErrors = 10
	rtpBufferSize        = 1500
	opusFrameSamples     = 960
)

// State mirrors spec §4.3's state machine.
type State string

const (
	StateNew          State = "new"
	StateNegotiating  State = "negotiating"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
)

// SDP is the wire shape for offers/answers exchanged with the
// signaling server.
type SDP struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// ICECandidate is the wire shape relayed between peers via the room
// supervisor.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           string  `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment string  `json:"usernameFragment,omitempty"`
}

// Peer is one participant's WebRTC session.
type Peer struct {
	logger commons.Logger
	peerID string

	mu    sync.Mutex
	pc    *webrtc.PeerConnection
	dc    *webrtc.DataChannel
	state State

	onAudioData           func(pcm []int16, sampleRate int)
	onDataChannelStatus   func(connected bool)
	onDataChannelMessage  func(text string)
	onConnectionStatus    func(state State)
	onICECandidate        func(candidate ICECandidate)
}

// New creates a Peer in StateNew. The caller wires event callbacks
// via the On* setters before calling CreateOffer/SetRemoteDescription.
func New(logger commons.Logger, peerID string) (*Peer, error) {
	p := &Peer{logger: logger, peerID: peerID, state: StateNew}
	if err := p.createPeerConnection(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Peer) OnAudioData(fn func(pcm []int16, sampleRate int))    { p.onAudioData = fn }
func (p *Peer) OnDataChannelStatus(fn func(connected bool))         { p.onDataChannelStatus = fn }
func (p *Peer) OnDataChannelMessage(fn func(text string))           { p.onDataChannelMessage = fn }
func (p *Peer) OnConnectionStatus(fn func(state State))             { p.onConnectionStatus = fn }
func (p *Peer) OnICECandidate(fn func(candidate ICECandidate))      { p.onICECandidate = fn }

func (p *Peer) createPeerConnection() error {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: opusSampleRate,
			Channels:  opusChannels,
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("webrtcpeer: register opus codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return fmt.Errorf("webrtcpeer: register interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("webrtcpeer: new peer connection: %w", err)
	}

	p.mu.Lock()
	p.pc = pc
	p.mu.Unlock()

	p.setupEventHandlers()

	// Every peer owns one bidirectional data channel regardless of
	// whether it ends up offering or answering — the SCTP association
	// is only negotiated if at least one side creates a channel before
	// CreateOffer/CreateAnswer, and the control-plane protocol (§6)
	// needs it on both sides of the room.
	dc, err := pc.CreateDataChannel("chat", nil)
	if err != nil {
		return fmt.Errorf("webrtcpeer: create data channel: %w", err)
	}
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()
	p.wireDataChannel(dc)

	return nil
}

// wireDataChannel attaches the subscriber callbacks to a data channel,
// whether it was created locally or received via OnDataChannel.
func (p *Peer) wireDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		if p.onDataChannelStatus != nil {
			p.onDataChannelStatus(true)
		}
	})
	dc.OnClose(func() {
		if p.onDataChannelStatus != nil {
			p.onDataChannelStatus(false)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.onDataChannelMessage != nil {
			p.onDataChannelMessage(string(msg.Data))
		}
	})
}

func (p *Peer) setupEventHandlers() {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || p.onICECandidate == nil {
			return
		}
		cJSON := c.ToJSON()
		ice := ICECandidate{Candidate: cJSON.Candidate}
		if cJSON.SDPMid != nil {
			ice.SDPMid = *cJSON.SDPMid
		}
		if cJSON.SDPMLineIndex != nil {
			ice.SDPMLineIndex = cJSON.SDPMLineIndex
		}
		if cJSON.UsernameFragment != nil {
			ice.UsernameFragment = *cJSON.UsernameFragment
		}
		p.onICECandidate(ice)
	})

	p.pc.OnConnectionStateChange(func(pcState webrtc.PeerConnectionState) {
		var state State
		switch pcState {
		case webrtc.PeerConnectionStateConnected:
			state = StateConnected
		case webrtc.PeerConnectionStateFailed:
			state = StateFailed
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			state = StateDisconnected
		default:
			return
		}
		p.mu.Lock()
		p.state = state
		p.mu.Unlock()
		if p.onConnectionStatus != nil {
			p.onConnectionStatus(state)
		}
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.mu.Lock()
		p.dc = dc
		p.mu.Unlock()
		p.wireDataChannel(dc)
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go p.readRemoteAudio(track)
	})
}

// AddOutboundTrack wires a sample-emitting local track (fed by an
// audiotrack.Track) as the peer's outbound audio. WriteSample pushes
// Opus-encoded frames into it; the caller retains ownership of
// pumping frames (typically via audiotrack.Track.Run).
func (p *Peer) AddOutboundTrack() (*webrtc.TrackLocalStaticSample, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: opusSampleRate,
		Channels:  opusChannels,
	}, "audio", p.peerID)
	if err != nil {
		return nil, fmt.Errorf("webrtcpeer: new local track: %w", err)
	}
	if _, err := p.pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("webrtcpeer: add track: %w", err)
	}
	return track, nil
}

// WriteOpusFrame encodes one 20ms PCM frame and writes it to the
// outbound track.
func WriteOpusFrame(track *webrtc.TrackLocalStaticSample, enc *codec.Encoder, pcm []int16, duration time.Duration) error {
	encoded, err := enc.Encode(pcm)
	if err != nil {
		return fmt.Errorf("webrtcpeer: opus encode: %w", err)
	}
	return track.WriteSample(media.Sample{Data: encoded, Duration: duration})
}

// readRemoteAudio decodes inbound Opus to PCM and extracts the left
// channel (stride 2 starting at 0) before delivering it to the
// audio_data subscriber, per spec §4.3's audio-tap contract.
func (p *Peer) readRemoteAudio(track *webrtc.TrackRemote) {
	decoder, err := codec.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		p.logger.Errorw("webrtcpeer: opus decoder", "peer_id", p.peerID, "error", err)
		return
	}

	buf := make([]byte, rtpBufferSize)
	consecutiveErrors := 0

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				p.logger.Errorw("webrtcpeer: too many consecutive read errors, stopping tap", "peer_id", p.peerID, "error", err)
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			p.logger.Debugw("webrtcpeer: dropping unparseable rtp packet", "peer_id", p.peerID, "error", err)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm, err := decoder.Decode(pkt.Payload, opusFrameSamples)
		if err != nil {
			p.logger.Debugw("webrtcpeer: opus decode failed", "peer_id", p.peerID, "error", err)
			continue
		}

		mono := extractLeftChannel(pcm)
		if p.onAudioData != nil {
			p.onAudioData(mono, opusSampleRate)
		}
	}
}

// extractLeftChannel strides 2 starting at 0 over interleaved PCM.
func extractLeftChannel(interleaved []int16) []int16 {
	mono := make([]int16, len(interleaved)/2)
	for i := range mono {
		mono[i] = interleaved[2*i]
	}
	return mono
}

// CreateOffer sets the local description and returns it.
func (p *Peer) CreateOffer() (SDP, error) {
	p.mu.Lock()
	pc := p.pc
	p.state = StateNegotiating
	p.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return SDP{}, fmt.Errorf("webrtcpeer: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return SDP{}, fmt.Errorf("webrtcpeer: set local description: %w", err)
	}
	return SDP{SDP: offer.SDP, Type: offer.Type.String()}, nil
}

// CreateAnswer sets the local description and returns it.
func (p *Peer) CreateAnswer() (SDP, error) {
	p.mu.Lock()
	pc := p.pc
	p.mu.Unlock()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return SDP{}, fmt.Errorf("webrtcpeer: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return SDP{}, fmt.Errorf("webrtcpeer: set local description: %w", err)
	}
	return SDP{SDP: answer.SDP, Type: answer.Type.String()}, nil
}

// SetRemoteDescription applies a remote offer or answer.
func (p *Peer) SetRemoteDescription(desc SDP) error {
	p.mu.Lock()
	pc := p.pc
	p.mu.Unlock()

	var sdpType webrtc.SDPType
	switch desc.Type {
	case "offer":
		sdpType = webrtc.SDPTypeOffer
	case "answer":
		sdpType = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("webrtcpeer: unknown sdp type %q", desc.Type)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}); err != nil {
		return fmt.Errorf("webrtcpeer: set remote description: %w", err)
	}
	return nil
}

// AddICECandidate applies a trickled ICE candidate. A nil candidate
// indicates end-of-candidates (spec §4.3).
func (p *Peer) AddICECandidate(candidate *ICECandidate) error {
	p.mu.Lock()
	pc := p.pc
	p.mu.Unlock()

	if candidate == nil {
		return pc.AddICECandidate(webrtc.ICECandidateInit{})
	}
	init := webrtc.ICECandidateInit{Candidate: candidate.Candidate}
	if candidate.SDPMid != "" {
		init.SDPMid = &candidate.SDPMid
	}
	if candidate.SDPMLineIndex != nil {
		init.SDPMLineIndex = candidate.SDPMLineIndex
	}
	if candidate.UsernameFragment != "" {
		init.UsernameFragment = &candidate.UsernameFragment
	}
	if err := pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("webrtcpeer: add ice candidate: %w", err)
	}
	return nil
}

// SendText delivers text over the data channel, if open; otherwise it
// drops silently with a warning log (spec §4.3).
func (p *Peer) SendText(msg string) {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		p.logger.Warnw("webrtcpeer: dropping send_text, data channel not open", "peer_id", p.peerID)
		return
	}
	if err := dc.SendText(msg); err != nil {
		p.logger.Warnw("webrtcpeer: send_text failed", "peer_id", p.peerID, "error", err)
	}
}

// Close idempotently releases transport resources.
func (p *Peer) Close() error {
	p.mu.Lock()
	pc := p.pc
	p.pc = nil
	p.mu.Unlock()

	if pc == nil {
		return nil
	}
	return pc.Close()
}

// State returns the peer's current connection state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
