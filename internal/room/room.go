// Package room implements C11: the supervisor that turns signaling
// notifications into peer lifecycle calls against the orchestrator,
// wiring C1's Framer on top of the signaling.Client transport, layering
// a typed protocol over a bare duplex connection.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/rpc"
	"github.com/orbitalk/agent/internal/signaling"
	"github.com/orbitalk/agent/internal/webrtcpeer"
)

const (
	icePeerWaitTimeout = 5 * time.Second
	icePeerPollEvery   = 50 * time.Millisecond
)

// Orchestrator is the subset of the session owner's contract the room
// supervisor drives — kept narrow so room doesn't import orchestrator
// (which owns room) and create a cycle.
type Orchestrator interface {
	// BuildPeer constructs and registers a PeerRuntime for peer_id. The
	// supervisor then wires the returned peer's trickle-ICE callback to
	// relay_ice_candidate.
	BuildPeer(peerID, selfDescription string) (*webrtcpeer.Peer, error)
	// HasPeer reports whether a peer_id has a registered runtime yet.
	HasPeer(peerID string) bool
}

// Supervisor drives the room lifecycle (spec §4.11).
type Supervisor struct {
	logger       commons.Logger
	client       *signaling.Client
	framer       *rpc.Framer
	orchestrator Orchestrator
	roomID       string

	candidateForwarder func(peerID string, candidate webrtcpeer.ICECandidate) error
}

type joinParams struct {
	RoomID          string `json:"room_id"`
	SelfDescription string `json:"self_description"`
}

type requestConnectionParams struct {
	PeerID          string         `json:"peer_id"`
	SelfDescription string         `json:"self_description"`
	Offer           webrtcpeer.SDP `json:"offer"`
}

type requestConnectionResult struct {
	Answer webrtcpeer.SDP `json:"answer"`
}

type relayICECandidateParams struct {
	PeerID    string                   `json:"peer_id"`
	Candidate *webrtcpeer.ICECandidate `json:"candidate"`
}

type peerAddedParams struct {
	PeerID          string `json:"peer_id"`
	SelfDescription string `json:"self_description"`
}

type connectionRequestParams struct {
	PeerID          string         `json:"peer_id"`
	SelfDescription string         `json:"self_description"`
	Offer           webrtcpeer.SDP `json:"offer"`
}

type addICECandidateParams struct {
	PeerID    string                  `json:"peer_id"`
	Candidate webrtcpeer.ICECandidate `json:"candidate"`
}

// New wires a Supervisor on top of an already-constructed signaling
// client. The client must not yet be connected.
func New(logger commons.Logger, client *signaling.Client, orchestrator Orchestrator, roomID string) *Supervisor {
	s := &Supervisor{
		logger:       logger,
		client:       client,
		orchestrator: orchestrator,
		roomID:       roomID,
	}
	s.framer = rpc.NewFramer(logger, func(data []byte) error {
		return client.Send(string(data))
	})
	client.OnMessage(func(text string) {
		s.framer.HandleMessage(context.Background(), []byte(text))
	})

	s.framer.On("peer_added", s.handlePeerAdded)
	s.framer.On("connection_request", s.handleConnectionRequest)
	s.framer.On("add_ice_candidate", s.handleAddICECandidate)

	return s
}

// Join connects the signaling transport and issues the join call
// (spec §4.11 "Joining: at connect() time, issue join(...)").
func (s *Supervisor) Join(ctx context.Context, selfDescription string) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	_, err := s.framer.Call(ctx, "join", joinParams{RoomID: s.roomID, SelfDescription: selfDescription}, false, 0)
	return err
}

func (s *Supervisor) handlePeerAdded(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p peerAddedParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("room: decode peer_added: %w", err)
	}

	peer, err := s.orchestrator.BuildPeer(p.PeerID, p.SelfDescription)
	if err != nil {
		return nil, fmt.Errorf("room: build peer %s: %w", p.PeerID, err)
	}
	peer.OnICECandidate(func(candidate webrtcpeer.ICECandidate) {
		s.relayICECandidate(ctx, p.PeerID, &candidate)
	})

	offer, err := peer.CreateOffer()
	if err != nil {
		return nil, fmt.Errorf("room: create_offer for %s: %w", p.PeerID, err)
	}

	raw, err := s.framer.Call(ctx, "request_connection", requestConnectionParams{
		PeerID:          p.PeerID,
		SelfDescription: p.SelfDescription,
		Offer:           offer,
	}, true, 0)
	if err != nil {
		return nil, fmt.Errorf("room: request_connection for %s: %w", p.PeerID, err)
	}

	var result requestConnectionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("room: decode request_connection result: %w", err)
	}
	if err := peer.SetRemoteDescription(result.Answer); err != nil {
		return nil, fmt.Errorf("room: set_remote_description for %s: %w", p.PeerID, err)
	}
	return nil, nil
}

func (s *Supervisor) handleConnectionRequest(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p connectionRequestParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("room: decode connection_request: %w", err)
	}

	peer, err := s.orchestrator.BuildPeer(p.PeerID, p.SelfDescription)
	if err != nil {
		return nil, fmt.Errorf("room: build peer %s: %w", p.PeerID, err)
	}
	peer.OnICECandidate(func(candidate webrtcpeer.ICECandidate) {
		s.relayICECandidate(ctx, p.PeerID, &candidate)
	})

	if err := peer.SetRemoteDescription(p.Offer); err != nil {
		return nil, fmt.Errorf("room: set_remote_description for %s: %w", p.PeerID, err)
	}
	answer, err := peer.CreateAnswer()
	if err != nil {
		return nil, fmt.Errorf("room: create_answer for %s: %w", p.PeerID, err)
	}
	return answer, nil
}

// handleAddICECandidate waits up to icePeerWaitTimeout, polling every
// icePeerPollEvery, for the peer to appear if trickle ICE raced ahead
// of peer_added (spec §4.11).
func (s *Supervisor) handleAddICECandidate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p addICECandidateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("room: decode add_ice_candidate: %w", err)
	}

	deadline := time.Now().Add(icePeerWaitTimeout)
	for !s.orchestrator.HasPeer(p.PeerID) {
		if time.Now().After(deadline) {
			s.logger.Warnw("room: timed out waiting for peer before add_ice_candidate, dropping", "peer_id", p.PeerID)
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(icePeerPollEvery):
		}
	}

	// Peer existence is confirmed by the orchestrator; applying the
	// candidate itself is the orchestrator's responsibility since it
	// owns the live *webrtcpeer.Peer instance.
	return nil, s.forwardCandidate(p.PeerID, p.Candidate)
}

// forwardCandidate is overridden by the orchestrator wiring via
// SetCandidateForwarder; absent a forwarder the candidate is logged
// and dropped rather than silently lost.
func (s *Supervisor) forwardCandidate(peerID string, candidate webrtcpeer.ICECandidate) error {
	if s.candidateForwarder == nil {
		s.logger.Warnw("room: no candidate forwarder registered, dropping", "peer_id", peerID)
		return nil
	}
	return s.candidateForwarder(peerID, candidate)
}

// SetCandidateForwarder registers the callback that applies a trickled
// candidate to a peer already tracked by the orchestrator.
func (s *Supervisor) SetCandidateForwarder(fn func(peerID string, candidate webrtcpeer.ICECandidate) error) {
	s.candidateForwarder = fn
}

// Close tears down the signaling transport, releasing the room (spec
// §4.12 "if no peers remain, close the room and C8").
func (s *Supervisor) Close() error {
	return s.client.Close()
}

func (s *Supervisor) relayICECandidate(ctx context.Context, peerID string, candidate *webrtcpeer.ICECandidate) {
	_, err := s.framer.Call(ctx, "relay_ice_candidate", relayICECandidateParams{PeerID: peerID, Candidate: candidate}, false, 0)
	if err != nil {
		s.logger.Warnw("room: relay_ice_candidate failed", "peer_id", peerID, "error", err)
	}
}
