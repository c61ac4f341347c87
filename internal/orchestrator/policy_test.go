package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
	"github.com/orbitalk/agent/internal/speech"
	"github.com/orbitalk/agent/internal/tokenstream"
)

type fakeTranscriber struct {
	text string
}

func (f *fakeTranscriber) AudioData(ctx context.Context, utteranceID string, samples []int16) error {
	return nil
}
func (f *fakeTranscriber) CancelTranscription(ctx context.Context, utteranceID string) error {
	return nil
}
func (f *fakeTranscriber) Transcribe(ctx context.Context, utteranceID string, sampleRate int) (string, error) {
	return f.text, nil
}

type fakeTokenStream struct {
	mu        sync.Mutex
	messages  []string
	onToken   func(token, responseID string)
	onToolC   func(inv tokenstream.ToolInvocation)
	onToolR   func(inv tokenstream.ToolInvocation)
	connected bool
}

func (f *fakeTokenStream) Connect(ctx context.Context, contextID, accessToken string) (tokenstream.AgentProfile, error) {
	f.connected = true
	return tokenstream.AgentProfile{Provider: "fake"}, nil
}
func (f *fakeTokenStream) AddMessage(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	if f.onToken != nil {
		f.onToken("hello", "resp-1")
	}
	return nil
}
func (f *fakeTokenStream) OnToken(fn func(token, responseID string))            { f.onToken = fn }
func (f *fakeTokenStream) OnToolCall(fn func(inv tokenstream.ToolInvocation))    { f.onToolC = fn }
func (f *fakeTokenStream) OnToolResponse(fn func(inv tokenstream.ToolInvocation)) { f.onToolR = fn }
func (f *fakeTokenStream) Close() error                                         { return nil }

type fakeTTS struct{}

func (fakeTTS) Synthesize(ctx context.Context, voiceID, text string, onChunk func(pcm []int16)) error {
	onChunk([]int16{1, 2, 3, 4})
	return nil
}

func newTestConductor(t *testing.T) (*Conductor, *fakeTokenStream) {
	t.Helper()
	ts := &fakeTokenStream{}
	session := NewSession("ctx-1", "token-1", true, ts)
	producer := speech.New(commons.NewTestLogger(), fakeTTS{}, "voice-1", session.NextSentenceID)
	cfg := &config.AppConfig{SilenceDurationMs: 500, CalibrationChunks: 2}
	c := NewConductor(commons.NewTestLogger(), cfg, session, &fakeTranscriber{text: "hello there"}, producer)
	return c, ts
}

func TestConductor_BuildPeerRegistersRuntime(t *testing.T) {
	c, _ := newTestConductor(t)
	peer, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	defer peer.Close()

	assert.True(t, c.HasPeer("peer-1"))
	rt, ok := c.session.Peer("peer-1")
	require.True(t, ok)
	assert.NotNil(t, rt.Track)
	assert.NotNil(t, rt.Calibrator)
	assert.NotNil(t, rt.Segmenter)
	assert.NotNil(t, rt.Framer)
}

func TestConductor_CalibrationMeasurementSetsThresholdOnce(t *testing.T) {
	c, _ := newTestConductor(t)
	peer, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	defer peer.Close()

	var statuses []string
	c.OnPeerNotify(func(peerID, method string, params interface{}) {
		if method == "calibration_status" {
			statuses = append(statuses, peerID)
		}
	})

	c.onCalibrationMeasurement("peer-1", 1000.0)
	c.onCalibrationMeasurement("peer-1", 2000.0)

	assert.Len(t, statuses, 1, "calibration_status must fire exactly once per session")
	assert.True(t, c.session.isCalibrated())
}

func TestConductor_CalibrationMeasurementIsSessionWideNotPerPeer(t *testing.T) {
	c, _ := newTestConductor(t)
	peer1, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	defer peer1.Close()
	peer2, err := c.BuildPeer("peer-2", "{}")
	require.NoError(t, err)
	defer peer2.Close()

	var statuses []string
	c.OnPeerNotify(func(peerID, method string, params interface{}) {
		if method == "calibration_status" {
			statuses = append(statuses, peerID)
		}
	})

	c.onCalibrationMeasurement("peer-1", 1000.0)
	c.onCalibrationMeasurement("peer-2", 5000.0)

	assert.Equal(t, []string{"peer-1"}, statuses, "a second peer's measurement must be ignored once the session has calibrated")
	assert.True(t, c.session.isCalibrated())
}

func TestConductor_AudioDataIgnoredBeforeCalibration(t *testing.T) {
	c, _ := newTestConductor(t)
	peer, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	defer peer.Close()

	// Uncalibrated: should be a no-op, not a panic, and must not reach
	// the segmenter.
	c.onAudioData("peer-1", make([]int16, 960), 48000)
}

func TestConductor_SpeechDetectedForwardsAndAddsMessage(t *testing.T) {
	c, ts := newTestConductor(t)
	peer, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	defer peer.Close()

	var notified string
	c.OnPeerNotify(func(peerID, method string, params interface{}) {
		if method == "speech_detected" {
			notified = peerID
		}
	})

	c.onSpeechDetected("peer-1", "hello there")

	assert.Equal(t, "peer-1", notified)
	assert.Eventually(t, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return len(ts.messages) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestConductor_InterruptionsDisabledSuppressesAudioWhileTrackSpeaking(t *testing.T) {
	c, _ := newTestConductor(t)
	c.session.AllowsInterruptions = false

	peer, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	defer peer.Close()

	c.session.markCalibrated()
	rt, _ := c.session.Peer("peer-1")
	rt.Track.Enqueue(make([]int16, 4000), nil)
	require.True(t, rt.Track.IsSpeaking())

	// Must not panic and must be dropped before reaching the segmenter.
	c.onAudioData("peer-1", make([]int16, 960), 48000)
}

func TestConductor_PeerDisconnectReleasesRuntime(t *testing.T) {
	c, _ := newTestConductor(t)
	_, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)

	c.onPeerDisconnected("peer-1")

	assert.False(t, c.HasPeer("peer-1"))
	assert.Equal(t, 0, c.RemainingPeers())
}

func TestConductor_SessionEndedFiresOnlyOnceLastPeerLeaves(t *testing.T) {
	c, _ := newTestConductor(t)
	_, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	_, err = c.BuildPeer("peer-2", "{}")
	require.NoError(t, err)

	ended := 0
	c.OnSessionEnded(func() { ended++ })

	c.onPeerDisconnected("peer-1")
	assert.Equal(t, 0, ended, "must not fire while a peer remains")

	c.onPeerDisconnected("peer-2")
	assert.Equal(t, 1, ended, "must fire exactly once when the last peer leaves")

	// A second disconnect of an already-gone peer is a no-op (spec §8
	// scenario 6).
	c.onPeerDisconnected("peer-2")
	assert.Equal(t, 1, ended)
}

func TestConductor_TokenFromStreamReachesTokensChannel(t *testing.T) {
	c, ts := newTestConductor(t)
	peer, err := c.BuildPeer("peer-1", "{}")
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, ts.AddMessage(context.Background(), "hi"))

	select {
	case tok := <-c.Tokens():
		assert.Equal(t, "hello", tok)
	case <-time.After(time.Second):
		t.Fatal("token never arrived on the session-wide channel")
	}
}
