package audiotrack

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalk/agent/internal/commons"
)

func newTestTrack() *Track { return NewTrack(commons.NewTestLogger()) }

func TestRecv_EmitsSilenceWhenQueueEmpty(t *testing.T) {
	tr := newTestTrack()
	frame := tr.Recv()
	assert.False(t, frame.Speaking)
	assert.Len(t, frame.Samples, FrameInterleavedSamples)
	for _, s := range frame.Samples {
		assert.Equal(t, int16(0), s)
	}
}

func TestRecv_PTSIncreasesBy960PerFrame(t *testing.T) {
	tr := newTestTrack()
	first := tr.Recv()
	second := tr.Recv()
	assert.Equal(t, int64(0), first.PTS)
	assert.Equal(t, int64(FrameSamplesPerChannel), second.PTS)
}

func TestIsSpeaking_TrueOnceFullFrameQueued(t *testing.T) {
	tr := newTestTrack()
	assert.False(t, tr.IsSpeaking())
	tr.Enqueue(make([]int16, FrameInterleavedSamples-1), nil)
	assert.False(t, tr.IsSpeaking())
	tr.Enqueue([]int16{1}, nil)
	assert.True(t, tr.IsSpeaking())
}

func TestRecv_DequeuesExactlyOneFrame(t *testing.T) {
	tr := newTestTrack()
	samples := make([]int16, FrameInterleavedSamples*2)
	for i := range samples {
		samples[i] = int16(i)
	}
	tr.Enqueue(samples, nil)

	frame := tr.Recv()
	require.True(t, frame.Speaking)
	assert.Equal(t, samples[:FrameInterleavedSamples], frame.Samples)
	assert.True(t, tr.IsSpeaking()) // second frame still queued
}

func TestSentenceBoundary_FiresOnceWhenIDChanges(t *testing.T) {
	tr := newTestTrack()
	var fired []uint64
	tr.OnSentenceBoundary(func(id uint64) { fired = append(fired, id) })

	id1 := uint64(1)
	tr.Enqueue(make([]int16, FrameInterleavedSamples), &id1)
	tr.Recv()
	tr.Enqueue(make([]int16, FrameInterleavedSamples), &id1)
	tr.Recv() // same id again, should not refire

	require.Len(t, fired, 1)
	assert.Equal(t, uint64(1), fired[0])

	id2 := uint64(2)
	tr.Enqueue(make([]int16, FrameInterleavedSamples), &id2)
	tr.Recv()
	require.Len(t, fired, 2)
	assert.Equal(t, uint64(2), fired[1])
}

func TestStoppedSpeaking_FiresAfterDebounceWhenStillSilent(t *testing.T) {
	tr := newTestTrack()
	var fired int32
	tr.OnStoppedSpeaking(func() { atomic.AddInt32(&fired, 1) })

	tr.Enqueue(make([]int16, FrameInterleavedSamples), nil)
	tr.Recv() // speaking frame
	tr.Recv() // silent frame -> arms debounce

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	time.Sleep(speechStopDebounce + 100*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestStoppedSpeaking_DoesNotFireIfSpeechResumes(t *testing.T) {
	tr := newTestTrack()
	var fired int32
	tr.OnStoppedSpeaking(func() { atomic.AddInt32(&fired, 1) })

	tr.Enqueue(make([]int16, FrameInterleavedSamples), nil)
	tr.Recv() // speaking
	tr.Recv() // silent -> arms debounce

	time.Sleep(200 * time.Millisecond)
	tr.Enqueue(make([]int16, FrameInterleavedSamples), nil)
	tr.Recv() // speaking again -> disarms

	time.Sleep(speechStopDebounce)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestEnqueue_DropsOldestOnOverflow(t *testing.T) {
	tr := newTestTrack()
	tr.Enqueue(make([]int16, maxQueuedSamples+FrameInterleavedSamples), nil)

	tr.mu.Lock()
	queued := len(tr.samples)
	tr.mu.Unlock()
	assert.LessOrEqual(t, queued, maxQueuedSamples)
}
