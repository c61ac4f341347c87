// Package segmenter implements C6: the VAD-gated segmenter that
// drives a speaking/silence state machine per peer, ships segments to
// the transcription service, and emits final utterance text (spec
// §4.6).
package segmenter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/transcription"
)

// DefaultTrivialRejections is the ASR-specific trivial-transcript
// set (spec §4.6, SPEC_FULL §9 open question: "treat as a
// configuration list").
var DefaultTrivialRejections = []string{"", ".", "Thank you.", ".  .  .  ."}

// MeanVADThreshold is the fraction of true VAD samples below which a
// finalized run is judged silence-dominated and cancelled rather than
// transcribed (spec §4.6).
const MeanVADThreshold = 0.2

// speakingState mirrors spec §3's SpeakingState.
type speakingState struct {
	speaking       bool
	silenceSamples uint64
	utteranceID    string
	vadHistory     []bool
	tStart         time.Time
}

func initialState() speakingState { return speakingState{} }

// Segmenter drives one peer's speaking/silence state machine.
type Segmenter struct {
	logger        commons.Logger
	transcriber   transcription.Client
	silenceMs     int
	threshold     float64
	thresholdSet  bool
	trivialReject map[string]struct{}

	mu    sync.Mutex
	state speakingState

	onSpeechDetected func(text string)
}

// New constructs a Segmenter. threshold may be set later, exactly
// once, via SetThreshold (spec §3 invariant: "VAD threshold is frozen
// for the rest of the session" once calibration completes).
func New(logger commons.Logger, transcriber transcription.Client, silenceDurationMs int, trivialRejections []string) *Segmenter {
	if trivialRejections == nil {
		trivialRejections = DefaultTrivialRejections
	}
	reject := make(map[string]struct{}, len(trivialRejections))
	for _, t := range trivialRejections {
		reject[t] = struct{}{}
	}
	return &Segmenter{
		logger:        logger,
		transcriber:   transcriber,
		silenceMs:     silenceDurationMs,
		trivialReject: reject,
		state:         initialState(),
	}
}

// OnSpeechDetected registers the speech_detected sink.
func (s *Segmenter) OnSpeechDetected(fn func(text string)) { s.onSpeechDetected = fn }

// SetThreshold sets the VAD energy threshold. Calling it more than
// once is a no-op — the first call wins, per the frozen-threshold
// invariant (spec §3, §4.12).
func (s *Segmenter) SetThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thresholdSet {
		return
	}
	s.threshold = threshold
	s.thresholdSet = true
}

// AddAudio drives one chunk through the state machine (spec §4.6).
func (s *Segmenter) AddAudio(ctx context.Context, chunk []int16, sampleRate int) {
	s.mu.Lock()
	threshold := s.threshold
	s.mu.Unlock()

	vad := IsSpeech(chunk, threshold)

	s.mu.Lock()
	wasSpeaking := s.state.speaking
	if vad {
		if !wasSpeaking {
			s.state.speaking = true
			s.state.utteranceID = uuid.NewString()
			s.state.tStart = time.Now()
		}
		s.state.silenceSamples = 0
	}
	speaking := s.state.speaking
	utteranceID := s.state.utteranceID
	s.mu.Unlock()

	if vad {
		s.forwardChunk(ctx, utteranceID, chunk)
	} else if speaking {
		s.forwardChunk(ctx, utteranceID, chunk)

		s.mu.Lock()
		s.state.silenceSamples += uint64(len(chunk))
		silenceThreshold := uint64(s.silenceMs) * uint64(sampleRate) / 1000
		shouldFinalize := s.state.silenceSamples >= silenceThreshold
		var history []bool
		if shouldFinalize {
			history = append([]bool(nil), s.state.vadHistory...)
		}
		s.mu.Unlock()

		if shouldFinalize {
			s.finalize(ctx, utteranceID, sampleRate, history)
			s.mu.Lock()
			s.state = initialState()
			s.mu.Unlock()
			return
		}
	}

	s.mu.Lock()
	if s.state.speaking {
		s.state.vadHistory = append(s.state.vadHistory, vad)
	}
	s.mu.Unlock()
}

func (s *Segmenter) forwardChunk(ctx context.Context, utteranceID string, chunk []int16) {
	if err := s.transcriber.AudioData(ctx, utteranceID, chunk); err != nil {
		s.logger.Warnw("segmenter: forward audio_data failed", "utterance_id", utteranceID, "error", err)
	}
}

// finalize runs asynchronously so the caller's audio-processing loop
// is never blocked by a 10s transcription round-trip (spec §5).
func (s *Segmenter) finalize(ctx context.Context, utteranceID string, sampleRate int, history []bool) {
	go func() {
		mean := meanBool(history)
		if mean <= MeanVADThreshold {
			if err := s.transcriber.CancelTranscription(ctx, utteranceID); err != nil {
				s.logger.Warnw("segmenter: cancel_transcription failed", "utterance_id", utteranceID, "error", err)
			}
			return
		}

		text, err := s.transcriber.Transcribe(ctx, utteranceID, sampleRate)
		if err != nil {
			s.logger.Warnw("segmenter: transcribe failed, dropping utterance", "utterance_id", utteranceID, "error", err)
			return
		}

		if s.isTrivial(text) {
			return
		}
		if s.onSpeechDetected != nil {
			s.onSpeechDetected(text)
		}
	}()
}

func (s *Segmenter) isTrivial(text string) bool {
	_, trivial := s.trivialReject[text]
	if trivial {
		return true
	}
	return strings.TrimSpace(text) == ""
}

func meanBool(history []bool) float64 {
	if len(history) == 0 {
		return 0
	}
	var trueCount int
	for _, v := range history {
		if v {
			trueCount++
		}
	}
	return float64(trueCount) / float64(len(history))
}
