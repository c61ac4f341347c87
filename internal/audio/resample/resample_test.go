package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM_SameRateReturnsInputUnchanged(t *testing.T) {
	in := []int16{1, 2, 3, 4}
	out, err := PCM(in, 48000, 48000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPCM_UpsampleThenDownsamplePreservesApproxLength(t *testing.T) {
	in := make([]int16, 160) // 10ms at 16kHz
	for i := range in {
		in[i] = int16(i)
	}
	up, err := PCM(in, 16000, 48000)
	require.NoError(t, err)
	assert.InDelta(t, len(in)*3, len(up), 3)

	down, err := PCM(up, 48000, 16000)
	require.NoError(t, err)
	assert.InDelta(t, len(in), len(down), 3)
}

func TestPCM_RejectsInvalidRates(t *testing.T) {
	_, err := PCM([]int16{1}, 0, 48000)
	require.Error(t, err)
}

func TestStereo_RejectsOddLengthBuffer(t *testing.T) {
	_, err := Stereo([]int16{1, 2, 3}, 48000, 16000)
	require.Error(t, err)
}

func TestStereo_DeinterleavesAndResamplesBothChannels(t *testing.T) {
	in := make([]int16, 320) // 160 stereo frames at 16kHz
	for i := range in {
		in[i] = int16(i)
	}
	out, err := Stereo(in, 16000, 48000)
	require.NoError(t, err)
	assert.InDelta(t, len(in)*3, len(out), 6)
}
