// Package orchestrator implements C12: the top-level policy wiring
// and the Session/PeerRuntime data model (spec §3, §4.12) — the sole
// owner and mutator of the peer-id → runtime map.
package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/orbitalk/agent/internal/audiotrack"
	"github.com/orbitalk/agent/internal/calibrator"
	"github.com/orbitalk/agent/internal/rpc"
	"github.com/orbitalk/agent/internal/segmenter"
	"github.com/orbitalk/agent/internal/tokenstream"
	"github.com/orbitalk/agent/internal/webrtcpeer"
)

// maxInt16Squared is MAX² in the calibration threshold formula
// (spec §4.12: vad_threshold = (energy / MAX²) * 0.4).
const maxInt16Squared = 32767.0 * 32767.0

// PeerRuntime is one connected participant's full pipeline (spec §3).
// Every field is created before ICE negotiation begins and released
// exactly once on disconnect.
type PeerRuntime struct {
	PeerID     string
	Peer       *webrtcpeer.Peer
	Track      *audiotrack.Track
	Calibrator *calibrator.Calibrator
	Segmenter  *segmenter.Segmenter
	Framer     *rpc.Framer
}

// Session is the ambient context for one conversation (spec §3).
// Created on admission, destroyed when the room has zero peers.
type Session struct {
	ContextID           string
	AccessToken         string
	AllowsInterruptions bool
	TokenStream         tokenstream.Client

	sentenceCounter uint64

	mu    sync.RWMutex
	peers map[string]*PeerRuntime

	calMu         sync.Mutex
	hasCalibrated bool
}

// NewSession constructs an empty Session.
func NewSession(contextID, accessToken string, allowsInterruptions bool, tokenStream tokenstream.Client) *Session {
	return &Session{
		ContextID:           contextID,
		AccessToken:         accessToken,
		AllowsInterruptions: allowsInterruptions,
		TokenStream:         tokenStream,
		peers:               make(map[string]*PeerRuntime),
	}
}

// NextSentenceID returns a strictly increasing id under a monotonic
// counter, starting at 0 (spec §4.10, §5 "sentence_id is assigned under
// a monotonic counter on the main loop").
func (s *Session) NextSentenceID() uint64 {
	return atomic.AddUint64(&s.sentenceCounter, 1) - 1
}

// AddPeer registers a runtime. Mutated only on the main loop, by
// peer_added and on_disconnected handlers (spec §5).
func (s *Session) AddPeer(runtime *PeerRuntime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[runtime.PeerID] = runtime
}

// RemovePeer drops a runtime and reports how many peers remain.
func (s *Session) RemovePeer(peerID string) (remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peerID)
	return len(s.peers)
}

// Peer looks up a runtime by id.
func (s *Session) Peer(peerID string) (*PeerRuntime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.peers[peerID]
	return rt, ok
}

// HasPeer reports whether peerID has a registered runtime — the
// predicate room.Supervisor polls while waiting for trickle ICE to
// catch up with peer_added.
func (s *Session) HasPeer(peerID string) bool {
	_, ok := s.Peer(peerID)
	return ok
}

// Peers returns a snapshot of every live runtime.
func (s *Session) Peers() []*PeerRuntime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PeerRuntime, 0, len(s.peers))
	for _, rt := range s.peers {
		out = append(out, rt)
	}
	return out
}

// markCalibrated transitions has_calibrated false→true exactly once
// per session (spec §3 invariant); it reports whether this call was
// the one that won the transition.
func (s *Session) markCalibrated() bool {
	s.calMu.Lock()
	defer s.calMu.Unlock()
	if s.hasCalibrated {
		return false
	}
	s.hasCalibrated = true
	return true
}

// isCalibrated reports the session-wide has_calibrated flag.
func (s *Session) isCalibrated() bool {
	s.calMu.Lock()
	defer s.calMu.Unlock()
	return s.hasCalibrated
}
