// Package session holds the wire-level data-model types shared across
// the signaling, peer-session, and room-supervisor packages (spec §3):
// the parsed trickle-ICE candidate shape. Session and PeerRuntime
// themselves are owned by the orchestrator package, which is the sole
// writer of the peer-id -> runtime map (spec §3 invariant).
package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Component is the ICE candidate component id.
type Component int

const (
	ComponentRTP  Component = 1
	ComponentRTCP Component = 2
)

// Protocol is the ICE candidate transport.
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// CandidateType is the ICE candidate type.
type CandidateType string

const (
	CandidateHost  CandidateType = "host"
	CandidateSrflx CandidateType = "srflx"
	CandidatePrflx CandidateType = "prflx"
	CandidateRelay CandidateType = "relay"
)

// Candidate is a parsed trickle-ICE candidate (spec §3).
type Candidate struct {
	Foundation    string
	Component     Component
	Protocol      Protocol
	Priority      uint32
	IP            string
	Port          uint16
	Type          CandidateType
	SDPMid        string
	SDPMLineIndex int
}

// ParseCandidate parses the textual ICE candidate form (spec §6):
//
//	candidate:<foundation> <component> <protocol> <priority> <ip> <port> typ <type> ...
//
// sdpMid and sdpMLineIndex arrive out-of-band alongside the candidate
// string in the signaling payload, so they're passed in rather than
// parsed from the line itself.
func ParseCandidate(line, sdpMid string, sdpMLineIndex int) (*Candidate, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "candidate:"))
	if len(fields) < 8 {
		return nil, fmt.Errorf("session: malformed ice candidate %q", line)
	}

	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("session: bad component in %q: %w", line, err)
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("session: bad priority in %q: %w", line, err)
	}
	port, err := strconv.ParseUint(fields[5], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("session: bad port in %q: %w", line, err)
	}

	typeIdx := -1
	for i, f := range fields {
		if f == "typ" && i+1 < len(fields) {
			typeIdx = i + 1
			break
		}
	}
	if typeIdx == -1 {
		return nil, fmt.Errorf("session: missing typ field in %q", line)
	}

	return &Candidate{
		Foundation:    fields[0],
		Component:     Component(component),
		Protocol:      Protocol(strings.ToLower(fields[2])),
		Priority:      uint32(priority),
		IP:            fields[4],
		Port:          uint16(port),
		Type:          CandidateType(fields[typeIdx]),
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
	}, nil
}

// String renders the candidate back to its textual wire form.
func (c *Candidate) String() string {
	return fmt.Sprintf("candidate:%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Protocol, c.Priority, c.IP, c.Port, c.Type)
}
