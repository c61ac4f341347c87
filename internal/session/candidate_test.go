package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidate_HostCandidate(t *testing.T) {
	line := "candidate:842163049 1 udp 1677729535 192.168.1.5 54321 typ host generation 0"
	c, err := ParseCandidate(line, "0", 0)
	require.NoError(t, err)
	assert.Equal(t, "842163049", c.Foundation)
	assert.Equal(t, ComponentRTP, c.Component)
	assert.Equal(t, ProtocolUDP, c.Protocol)
	assert.Equal(t, uint32(1677729535), c.Priority)
	assert.Equal(t, "192.168.1.5", c.IP)
	assert.Equal(t, uint16(54321), c.Port)
	assert.Equal(t, CandidateHost, c.Type)
}

func TestParseCandidate_RelayCandidate(t *testing.T) {
	line := "candidate:3 1 tcp 41885439 203.0.113.2 3478 typ relay raddr 0.0.0.0 rport 0"
	c, err := ParseCandidate(line, "audio0", 1)
	require.NoError(t, err)
	assert.Equal(t, CandidateRelay, c.Type)
	assert.Equal(t, ProtocolTCP, c.Protocol)
	assert.Equal(t, "audio0", c.SDPMid)
	assert.Equal(t, 1, c.SDPMLineIndex)
}

func TestParseCandidate_Malformed(t *testing.T) {
	_, err := ParseCandidate("candidate:garbage", "0", 0)
	require.Error(t, err)
}

func TestParseCandidate_MissingTyp(t *testing.T) {
	_, err := ParseCandidate("candidate:1 1 udp 1 1.2.3.4 1000 nope host", "0", 0)
	require.Error(t, err)
}

func TestCandidate_StringRoundTrips(t *testing.T) {
	line := "candidate:1 1 udp 100 10.0.0.1 5000 typ host"
	c, err := ParseCandidate(line, "0", 0)
	require.NoError(t, err)
	assert.Equal(t, line, c.String())
}
