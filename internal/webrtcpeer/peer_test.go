package webrtcpeer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalk/agent/internal/commons"
)

func TestExtractLeftChannel_StrideTwoStartingAtZero(t *testing.T) {
	interleaved := []int16{1, 2, 3, 4, 5, 6}
	got := extractLeftChannel(interleaved)
	assert.Equal(t, []int16{1, 3, 5}, got)
}

func TestPeer_CreateOfferTransitionsToNegotiating(t *testing.T) {
	p, err := New(commons.NewTestLogger(), "peer-1")
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, StateNew, p.State())
	_, err = p.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, StateNegotiating, p.State())
}

func TestPeer_SetRemoteDescriptionRejectsUnknownType(t *testing.T) {
	p, err := New(commons.NewTestLogger(), "peer-1")
	require.NoError(t, err)
	defer p.Close()

	err = p.SetRemoteDescription(SDP{SDP: "v=0", Type: "garbage"})
	assert.Error(t, err)
}

func TestPeer_SendTextDropsSilentlyWhenChannelNotOpen(t *testing.T) {
	p, err := New(commons.NewTestLogger(), "peer-1")
	require.NoError(t, err)
	defer p.Close()

	p.SendText("hello")
}

func TestPeer_CloseIsIdempotent(t *testing.T) {
	p, err := New(commons.NewTestLogger(), "peer-1")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
