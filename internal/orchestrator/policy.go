package orchestrator

import (
	"context"
	"fmt"

	"github.com/orbitalk/agent/internal/audiotrack"
	"github.com/orbitalk/agent/internal/calibrator"
	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
	"github.com/orbitalk/agent/internal/rpc"
	"github.com/orbitalk/agent/internal/segmenter"
	"github.com/orbitalk/agent/internal/session"
	"github.com/orbitalk/agent/internal/speech"
	"github.com/orbitalk/agent/internal/tokenstream"
	"github.com/orbitalk/agent/internal/transcription"
	"github.com/orbitalk/agent/internal/webrtcpeer"
)

// Conductor wires C3–C6 per peer onto the policy handlers of spec
// §4.12, owns the single session-wide token channel, and drives the
// speech producer (C10). It is the sole mutator of Session's peer map.
type Conductor struct {
	logger      commons.Logger
	cfg         *config.AppConfig
	session     *Session
	transcriber transcription.Client
	producer    *speech.Producer
	tokens      chan string

	onPeerNotify   func(peerID, method string, params interface{})
	onBroadcast    func(method string, params interface{})
	onSessionEnded func()
}

// NewConductor constructs a Conductor bound to one session.
func NewConductor(logger commons.Logger, cfg *config.AppConfig, session *Session, transcriber transcription.Client, producer *speech.Producer) *Conductor {
	c := &Conductor{
		logger:      logger,
		cfg:         cfg,
		session:     session,
		transcriber: transcriber,
		producer:    producer,
		tokens:      make(chan string, 256),
	}
	if session.TokenStream != nil {
		session.TokenStream.OnToken(func(token, responseID string) { c.onToken(token, responseID) })
		session.TokenStream.OnToolCall(func(inv tokenstream.ToolInvocation) { c.broadcast("tool_call", inv) })
		session.TokenStream.OnToolResponse(func(inv tokenstream.ToolInvocation) { c.broadcast("tool_response", inv) })
	}
	return c
}

// OnPeerNotify registers the per-peer data-channel notification sink.
func (c *Conductor) OnPeerNotify(fn func(peerID, method string, params interface{})) { c.onPeerNotify = fn }

// OnBroadcast registers the all-peers data-channel notification sink.
func (c *Conductor) OnBroadcast(fn func(method string, params interface{})) { c.onBroadcast = fn }

// OnSessionEnded registers the callback fired once the last peer has
// disconnected (spec §4.12 "if no peers remain, close the room and
// C8"). The Conductor itself owns neither the room nor the
// token-stream client, so it only signals; the caller closes them.
func (c *Conductor) OnSessionEnded(fn func()) { c.onSessionEnded = fn }

func (c *Conductor) notify(peerID, method string, params interface{}) {
	if c.onPeerNotify != nil {
		c.onPeerNotify(peerID, method, params)
	}
}

func (c *Conductor) broadcast(method string, params interface{}) {
	if c.onBroadcast != nil {
		c.onBroadcast(method, params)
	}
}

// BuildPeer constructs C3/C4/C5/C6 plus a per-peer C1 framer for a
// newly announced participant and registers the runtime before ICE
// negotiation begins (spec §3 invariant).
func (c *Conductor) BuildPeer(peerID, selfDescription string) (*webrtcpeer.Peer, error) {
	peer, err := webrtcpeer.New(c.logger, peerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build peer %s: %w", peerID, err)
	}

	track := audiotrack.NewTrack(c.logger)
	cal := calibrator.New(c.cfg.CalibrationChunks)
	seg := segmenter.New(c.logger, c.transcriber, c.cfg.SilenceDurationMs, nil)

	runtime := &PeerRuntime{
		PeerID:     peerID,
		Peer:       peer,
		Track:      track,
		Calibrator: cal,
		Segmenter:  seg,
		Framer:     rpc.NewFramer(c.logger, func(data []byte) error { peer.SendText(string(data)); return nil }),
	}
	c.session.AddPeer(runtime)
	c.producer.AddTrack(peerID, track)

	cal.OnMeasurement(func(energy float64) { c.onCalibrationMeasurement(peerID, energy) })
	seg.OnSpeechDetected(func(text string) { c.onSpeechDetected(peerID, text) })

	track.OnSentenceBoundary(func(sentenceID uint64) {
		c.notify(peerID, "is_speaking_sentence", map[string]uint64{"sentence_id": sentenceID})
	})
	track.OnStoppedSpeaking(func() { c.notify(peerID, "stoped_speaking", struct{}{}) })

	peer.OnDataChannelStatus(func(connected bool) {
		c.notify(peerID, "data_channel_connection_status", map[string]bool{"connected": connected})
	})
	peer.OnDataChannelMessage(func(text string) {
		runtime.Framer.HandleMessage(context.Background(), []byte(text))
	})
	peer.OnConnectionStatus(func(state webrtcpeer.State) {
		c.notify(peerID, "connection_status", map[string]string{"state": string(state)})
		if state == webrtcpeer.StateDisconnected || state == webrtcpeer.StateFailed {
			c.onPeerDisconnected(peerID)
		}
	})
	peer.OnAudioData(func(pcm []int16, sampleRate int) {
		c.onAudioData(peerID, pcm, sampleRate)
	})

	return peer, nil
}

// HasPeer implements room.Orchestrator.
func (c *Conductor) HasPeer(peerID string) bool { return c.session.HasPeer(peerID) }

// ApplyICECandidate implements the room supervisor's candidate
// forwarder, applying a trickled candidate to an already-tracked peer.
func (c *Conductor) ApplyICECandidate(peerID string, candidate webrtcpeer.ICECandidate) error {
	rt, ok := c.session.Peer(peerID)
	if !ok {
		return fmt.Errorf("orchestrator: no runtime for peer %s", peerID)
	}
	if parsed, err := session.ParseCandidate(candidate.Candidate, candidate.SDPMid, sdpMLineIndexOf(candidate)); err == nil {
		c.logger.Debugw("orchestrator: applying ice candidate", "peer_id", peerID, "candidate_type", parsed.Type, "protocol", parsed.Protocol)
	}
	return rt.Peer.AddICECandidate(&candidate)
}

func sdpMLineIndexOf(candidate webrtcpeer.ICECandidate) int {
	if candidate.SDPMLineIndex == nil {
		return 0
	}
	return int(*candidate.SDPMLineIndex)
}

// onAudioData implements spec §4.12's on_audio_data policy.
func (c *Conductor) onAudioData(peerID string, pcm []int16, sampleRate int) {
	rt, ok := c.session.Peer(peerID)
	if !ok {
		return
	}
	rt.Calibrator.AddChunk(pcm)

	if !c.session.isCalibrated() {
		return
	}
	if !c.session.AllowsInterruptions && rt.Track.IsSpeaking() {
		return
	}
	rt.Segmenter.AddAudio(context.Background(), pcm, sampleRate)
}

// onCalibrationMeasurement implements spec §4.12's
// on_calibration_measurement policy: only the first emission across
// the whole session is consumed — has_calibrated lives on Session, not
// per peer, so every later emission from any peer is ignored.
func (c *Conductor) onCalibrationMeasurement(peerID string, energy float64) {
	rt, ok := c.session.Peer(peerID)
	if !ok {
		return
	}
	if !c.session.markCalibrated() {
		return
	}
	threshold := (energy / maxInt16Squared) * 0.4
	rt.Segmenter.SetThreshold(threshold)
	c.notify(peerID, "calibration_status", map[string]string{"status": "complete"})
}

// onSpeechDetected implements spec §4.12's on_speech_detected policy.
func (c *Conductor) onSpeechDetected(peerID, text string) {
	c.notify(peerID, "speech_detected", map[string]string{"text": text})
	if c.session.TokenStream != nil {
		if err := c.session.TokenStream.AddMessage(context.Background(), text); err != nil {
			c.logger.Warnw("orchestrator: add_message failed", "peer_id", peerID, "error", err)
		}
	}
}

// onToken implements spec §4.12's on_token policy: tokens are
// enqueued into the session-wide channel the sentence sink consumes.
func (c *Conductor) onToken(token, responseID string) {
	select {
	case c.tokens <- token:
	default:
		c.logger.Warnw("orchestrator: token channel full, dropping token")
	}
}

// Tokens exposes the session-wide token channel for the sentence sink
// to consume (spec §4.12 "enqueue into a single session-wide token
// channel consumed by C10").
func (c *Conductor) Tokens() <-chan string { return c.tokens }

// Enqueue feeds one finalized sentence to the speech producer.
func (c *Conductor) Enqueue(sentence string) { c.producer.Enqueue(sentence) }

// onPeerDisconnected releases a peer's runtime. If no peers remain,
// onSessionEnded fires so the caller can close the room and the
// token-stream client (spec §4.12).
func (c *Conductor) onPeerDisconnected(peerID string) {
	rt, ok := c.session.Peer(peerID)
	if !ok {
		return
	}
	c.producer.RemoveTrack(peerID)
	_ = rt.Peer.Close()
	remaining := c.session.RemovePeer(peerID)
	c.logger.Infow("orchestrator: peer disconnected", "peer_id", peerID, "remaining_peers", remaining)
	if remaining == 0 && c.onSessionEnded != nil {
		c.onSessionEnded()
	}
}

// RemainingPeers reports how many peers are still live.
func (c *Conductor) RemainingPeers() int { return len(c.session.Peers()) }
