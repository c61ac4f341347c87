// Package speech implements C10: the single-consumer loop that pulls
// sentences and drives TTS synthesis into every live peer's synthetic
// track (spec §4.10).
package speech

import (
	"context"
	"sync"

	"github.com/orbitalk/agent/internal/audiotrack"
	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/speech/tts"
)

// Track is the subset of audiotrack.Track the producer needs —
// named narrowly so Producer can fan a sentence out to any number of
// live peer tracks without depending on how they were created.
type Track interface {
	Enqueue(samples []int16, sentenceID *uint64)
}

var _ Track = (*audiotrack.Track)(nil)

// Producer broadcasts ai_sentence notifications and feeds synthesized
// audio to every live peer's Track. Sentences are processed strictly
// sequentially: no interleaving between two sentences' audio.
type Producer struct {
	logger         commons.Logger
	tts            tts.Client
	voiceID        string
	nextSentenceID func() uint64

	sentences chan string

	mu     sync.RWMutex
	tracks map[string]Track

	onSentence func(sentence string, sentenceID uint64)
}

// New constructs a Producer. voiceID comes from the token-stream
// handshake's AgentProfile (spec §4.8). nextSentenceID is the
// session's shared monotonic counter (spec §4.10 "assigns
// sentence_id = session.counter++"), so every synthetic track across
// the session sees ids from the one sequence, not a producer-local one.
func New(logger commons.Logger, ttsClient tts.Client, voiceID string, nextSentenceID func() uint64) *Producer {
	return &Producer{
		logger:         logger,
		tts:            ttsClient,
		voiceID:        voiceID,
		nextSentenceID: nextSentenceID,
		sentences:      make(chan string, 64),
		tracks:         make(map[string]Track),
	}
}

// OnSentence registers the ai_sentence broadcast sink.
func (p *Producer) OnSentence(fn func(sentence string, sentenceID uint64)) { p.onSentence = fn }

// AddTrack registers a live peer's synthetic track. Audio enqueued
// before this call is never replayed to the new peer — joining
// mid-sentence only yields samples enqueued afterward.
func (p *Producer) AddTrack(peerID string, track Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks[peerID] = track
}

// RemoveTrack drops a disconnected peer's track.
func (p *Producer) RemoveTrack(peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tracks, peerID)
}

// Enqueue pushes a finalized sentence onto the producer's queue.
func (p *Producer) Enqueue(sentence string) {
	p.sentences <- sentence
}

// Run drives the strictly-sequential sentence loop until ctx is
// cancelled.
func (p *Producer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sentence := <-p.sentences:
			p.process(ctx, sentence)
		}
	}
}

func (p *Producer) process(ctx context.Context, sentence string) {
	sentenceID := p.nextSentenceID()
	if p.onSentence != nil {
		p.onSentence(sentence, sentenceID)
	}

	err := p.tts.Synthesize(ctx, p.voiceID, sentence, func(pcm []int16) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		for _, track := range p.tracks {
			track.Enqueue(pcm, &sentenceID)
		}
	})
	if err != nil {
		p.logger.Warnw("speech: tts synthesis failed", "sentence_id", sentenceID, "error", err)
	}
}
