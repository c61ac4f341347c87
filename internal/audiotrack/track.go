// Package audiotrack implements C4: the real-time synthetic audio
// track that a peer's outbound media track pulls 20 ms frames from
// (spec §4.4). It owns the sample queue and the sentence-boundary /
// speech-stop telemetry; it knows nothing about WebRTC or Opus —
// those live in webrtcpeer and audio/codec, keeping buffer bookkeeping
// separate from transport-specific I/O.
package audiotrack

import (
	"context"
	"sync"
	"time"

	"github.com/orbitalk/agent/internal/commons"
)

const (
	// SampleRate is the fixed output rate (spec §4.4).
	SampleRate = 48000
	// Channels is stereo output.
	Channels = 2
	// FrameSamplesPerChannel is 20ms of audio at 48kHz.
	FrameSamplesPerChannel = 960
	// FrameInterleavedSamples is one 20ms frame, both channels interleaved.
	FrameInterleavedSamples = FrameSamplesPerChannel * Channels
	// FrameDuration is the wall-clock span one frame represents.
	FrameDuration = 20 * time.Millisecond

	// maxQueuedSamples bounds the enqueue queue to ~2s of audio (spec §9
	// design notes: "bound the enqueue queue and drop oldest on overflow").
	maxQueuedSamples = 2 * SampleRate * Channels

	// speechStopDebounce is the silence window before stoped_speaking fires.
	speechStopDebounce = time.Second
)

// Frame is 20ms of stereo int16 PCM at 48kHz (spec §3 AudioFrame).
type Frame struct {
	Samples  []int16
	PTS      int64
	Speaking bool
}

// Track is the per-peer synthetic audio producer (spec §4.4).
type Track struct {
	logger commons.Logger

	mu          sync.Mutex
	samples     []int16
	sentenceIDs []*uint64

	startTime time.Time
	pts       int64

	lastReportedSentenceID *uint64
	wasSpeaking            bool
	debouncePending        bool
	debounceTimer          *time.Timer

	onSentenceBoundary func(sentenceID uint64)
	onStoppedSpeaking  func()
}

// NewTrack constructs an idle Track.
func NewTrack(logger commons.Logger) *Track {
	return &Track{logger: logger}
}

// OnSentenceBoundary registers the is_speaking_sentence telemetry sink.
func (t *Track) OnSentenceBoundary(fn func(sentenceID uint64)) { t.onSentenceBoundary = fn }

// OnStoppedSpeaking registers the stoped_speaking telemetry sink.
func (t *Track) OnStoppedSpeaking(fn func()) { t.onStoppedSpeaking = fn }

// Enqueue appends interleaved PCM samples. When sentenceID is
// non-nil, every appended sample is tagged with it in the parallel id
// queue, preserving exact alignment between audio and the sentence it
// belongs to (spec §4.4).
func (t *Track) Enqueue(samples []int16, sentenceID *uint64) {
	if len(samples) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, samples...)
	ids := make([]*uint64, len(samples))
	if sentenceID != nil {
		for i := range ids {
			ids[i] = sentenceID
		}
	}
	t.sentenceIDs = append(t.sentenceIDs, ids...)

	if overflow := len(t.samples) - maxQueuedSamples; overflow > 0 {
		t.logger.Warnw("audiotrack: sample queue overflow, dropping oldest", "dropped_samples", overflow)
		t.samples = t.samples[overflow:]
		t.sentenceIDs = t.sentenceIDs[overflow:]
	}
}

// IsSpeaking reports whether at least one full frame is queued (spec §4.4).
func (t *Track) IsSpeaking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples) >= FrameInterleavedSamples
}

// Recv paces output to the media clock: the next frame is released
// once wall time reaches start_time + pts*time_base (spec §4.4). When
// fewer than one frame is queued it emits silence tagged non-speaking.
func (t *Track) Recv() Frame {
	t.mu.Lock()
	if t.startTime.IsZero() {
		t.startTime = time.Now()
	}
	target := t.startTime.Add(time.Duration(t.pts) * time.Second / SampleRate)
	t.mu.Unlock()

	if wait := time.Until(target); wait > 0 {
		time.Sleep(wait)
	}

	t.mu.Lock()
	speaking := len(t.samples) >= FrameInterleavedSamples
	var out []int16
	var ids []*uint64
	if speaking {
		out = append([]int16(nil), t.samples[:FrameInterleavedSamples]...)
		ids = append([]*uint64(nil), t.sentenceIDs[:FrameInterleavedSamples]...)
		t.samples = t.samples[FrameInterleavedSamples:]
		t.sentenceIDs = t.sentenceIDs[FrameInterleavedSamples:]
	} else {
		out = make([]int16, FrameInterleavedSamples)
		ids = make([]*uint64, FrameInterleavedSamples)
	}
	pts := t.pts
	t.pts += FrameSamplesPerChannel
	t.mu.Unlock()

	t.reportSentenceBoundary(ids)
	t.reportSpeechStop(speaking)

	return Frame{Samples: out, PTS: pts, Speaking: speaking}
}

func (t *Track) reportSentenceBoundary(ids []*uint64) {
	var last *uint64
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] != nil {
			last = ids[i]
			break
		}
	}
	if last == nil {
		return
	}

	t.mu.Lock()
	changed := t.lastReportedSentenceID == nil || *t.lastReportedSentenceID != *last
	if changed {
		t.lastReportedSentenceID = last
	}
	t.mu.Unlock()

	if changed && t.onSentenceBoundary != nil {
		t.onSentenceBoundary(*last)
	}
}

func (t *Track) reportSpeechStop(speaking bool) {
	t.mu.Lock()
	wasSpeaking := t.wasSpeaking
	t.wasSpeaking = speaking

	if speaking {
		if t.debouncePending {
			t.debounceTimer.Stop()
			t.debouncePending = false
		}
		t.mu.Unlock()
		return
	}

	shouldArm := wasSpeaking && !t.debouncePending
	if shouldArm {
		t.debouncePending = true
		t.debounceTimer = time.AfterFunc(speechStopDebounce, t.fireStoppedSpeaking)
	}
	t.mu.Unlock()
}

func (t *Track) fireStoppedSpeaking() {
	t.mu.Lock()
	stillSilent := !t.wasSpeaking
	t.debouncePending = false
	t.mu.Unlock()

	if stillSilent && t.onStoppedSpeaking != nil {
		t.onStoppedSpeaking()
	}
}

// Run drives Recv() in a loop until ctx is cancelled, handing each
// frame to emit. The caller supplies emit to encode and write the frame
// onto the real WebRTC track (webrtcpeer.WriteOpusFrame does both).
func (t *Track) Run(ctx context.Context, emit func(Frame)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame := t.Recv()
		emit(frame)
	}
}
