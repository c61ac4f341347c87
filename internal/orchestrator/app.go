package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
	"github.com/orbitalk/agent/internal/room"
	"github.com/orbitalk/agent/internal/sentence"
	"github.com/orbitalk/agent/internal/signaling"
	"github.com/orbitalk/agent/internal/speech"
	"github.com/orbitalk/agent/internal/speech/tts"
	"github.com/orbitalk/agent/internal/tokenstream"
	"github.com/orbitalk/agent/internal/transcription"
)

// App is the process-level bootstrap that invite-agent drives: one
// App.Initialize call stands up one Session's full pipeline — room
// join, token-stream connection, and the token-to-speech loop — wiring
// a conversation's full dependency graph on admission
// (spec §6, SPEC_FULL §4.16).
type App struct {
	cfg    *config.AppConfig
	logger commons.Logger
}

// NewApp constructs the process-wide bootstrap. One App serves every
// invite-agent call for the process lifetime.
func NewApp(cfg *config.AppConfig, logger commons.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Initialize stands up a full session pipeline for contextID and
// returns once the room join and token-stream connect either succeed
// or fail (spec §6 "Errors from initialization surface as HTTP 500").
// The session's own goroutines run under a context independent of the
// admission request's — the request ends when this returns, but the
// conversation it started keeps running until the room empties
// (spec §3, "destroyed when the room has zero peers").
func (a *App) Initialize(requestCtx context.Context, contextID, accessToken string) error {
	sessionCtx := context.Background()

	transcriber, err := transcription.Connect(requestCtx, a.logger, a.cfg)
	if err != nil {
		return fmt.Errorf("orchestrator: connect transcription: %w", err)
	}

	tokenClient, err := tokenstream.Connect(requestCtx, a.logger, a.cfg)
	if err != nil {
		return fmt.Errorf("orchestrator: connect token stream: %w", err)
	}
	profile, err := tokenClient.Connect(requestCtx, contextID, accessToken)
	if err != nil {
		return fmt.Errorf("orchestrator: token stream connect_to_context: %w", err)
	}

	ttsClient, err := tts.New(requestCtx, a.logger, a.cfg)
	if err != nil {
		return fmt.Errorf("orchestrator: build tts client: %w", err)
	}

	session := NewSession(contextID, accessToken, a.cfg.AllowsInterruptions, tokenClient)
	producer := speech.New(a.logger, ttsClient, profile.VoiceID, session.NextSentenceID)
	conductor := NewConductor(a.logger, a.cfg, session, transcriber, producer)

	signalingClient := signaling.NewClient(a.logger, a.cfg.SignalingServerURL, nil)
	supervisor := room.New(a.logger, signalingClient, conductor, contextID)
	supervisor.SetCandidateForwarder(conductor.ApplyICECandidate)

	conductor.OnPeerNotify(func(peerID, method string, params interface{}) {
		rt, ok := session.Peer(peerID)
		if !ok {
			return
		}
		if _, err := rt.Framer.Call(sessionCtx, method, params, false, 0); err != nil {
			a.logger.Warnw("orchestrator: peer notify failed", "peer_id", peerID, "method", method, "error", err)
		}
	})
	conductor.OnBroadcast(func(method string, params interface{}) {
		for _, rt := range session.Peers() {
			if _, err := rt.Framer.Call(sessionCtx, method, params, false, 0); err != nil {
				a.logger.Warnw("orchestrator: broadcast notify failed", "method", method, "error", err)
			}
		}
	})
	conductor.OnSessionEnded(func() {
		a.logger.Infow("orchestrator: last peer departed, closing session", "context_id", contextID)
		if err := supervisor.Close(); err != nil {
			a.logger.Warnw("orchestrator: close room failed", "context_id", contextID, "error", err)
		}
		if err := tokenClient.Close(); err != nil {
			a.logger.Warnw("orchestrator: close token stream failed", "context_id", contextID, "error", err)
		}
	})

	group, groupCtx := errgroup.WithContext(sessionCtx)
	group.Go(func() error { a.runSentencePump(groupCtx, conductor); return nil })
	group.Go(func() error { producer.Run(groupCtx); return nil })
	go func() {
		if err := group.Wait(); err != nil {
			a.logger.Warnw("orchestrator: session task group exited", "context_id", contextID, "error", err)
		}
	}()

	if err := supervisor.Join(sessionCtx, "{}"); err != nil {
		return fmt.Errorf("orchestrator: join room %s: %w", contextID, err)
	}

	a.logger.Infow("orchestrator: session initialized", "context_id", contextID, "agent_provider", profile.Provider)
	return nil
}

// runSentencePump drains the session-wide token channel through the
// sentence sink and forwards each completed sentence to the speech
// producer, implementing C9 → C10's handoff (spec §4.9, §4.10).
func (a *App) runSentencePump(ctx context.Context, conductor *Conductor) {
	sink := sentence.New()
	for {
		select {
		case <-ctx.Done():
			return
		case token, ok := <-conductor.Tokens():
			if !ok {
				return
			}
			for _, s := range sink.Add(token) {
				conductor.Enqueue(s)
			}
		}
	}
}
