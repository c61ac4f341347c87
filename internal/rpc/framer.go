// Package rpc implements the line-delimited JSON-RPC-like envelope
// (spec §4.1, C1) shared by the room supervisor (over the signaling
// client's transport), the transcription client, the token-stream
// client, and every peer's data-channel
// control plane. One Framer, four call sites — mirroring the
// teacher's single websocket envelope reused by every provider
// executor (internal/agent/executor/llm/internal/websocket).
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalk/agent/internal/commons"
)

// DefaultTimeout is applied to calls that don't specify one.
const DefaultTimeout = 10 * time.Second

// Frame is the wire shape: a request carries ID+Method+Params, a
// response carries ID+Result or ID+Error, a notification carries only
// Method+Params.
type Frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *FrameError     `json:"error,omitempty"`
}

// FrameError is the error shape of a response frame.
type FrameError struct {
	Message string `json:"message"`
}

func (e *FrameError) Error() string { return e.Message }

// ErrTimeout is returned by Call when await_response times out.
type ErrTimeout struct{ Method string }

func (e *ErrTimeout) Error() string { return fmt.Sprintf("rpc: timeout waiting for %q response", e.Method) }

// Handler processes a request or notification. For requests (frames
// carrying an ID) the returned result is sent back in a response frame,
// a nil result as JSON null; the return value is ignored for
// notifications. Returning an error causes an error response for
// requests, and is only logged for notifications.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Sender delivers a raw outbound frame to the underlying duplex
// transport (the signaling socket, the data channel, ...).
type Sender func(data []byte) error

// Framer correlates responses to pending calls and dispatches
// notifications/requests to registered handlers. It owns no
// transport of its own; the owner feeds it inbound bytes via
// HandleMessage and gives it a Sender for outbound bytes.
type Framer struct {
	logger commons.Logger
	send   Sender

	mu       sync.Mutex
	pending  map[string]chan Frame
	handlers map[string]Handler
}

// NewFramer constructs a Framer bound to the given outbound Sender.
func NewFramer(logger commons.Logger, send Sender) *Framer {
	return &Framer{
		logger:   logger,
		send:     send,
		pending:  make(map[string]chan Frame),
		handlers: make(map[string]Handler),
	}
}

// On registers a handler for a method name. Registering the same
// method twice is a Programmer error (spec §7) — it almost always
// means two components think they own the same event, so it panics
// at wiring time instead of silently dropping one of them.
func (f *Framer) On(method string, handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.handlers[method]; exists {
		panic(fmt.Sprintf("rpc: handler already registered for method %q", method))
	}
	f.handlers[method] = handler
}

// Call sends a request or notification. When awaitResponse is true it
// blocks until a matching response arrives or timeout elapses. A
// timeout of 0 uses DefaultTimeout.
func (f *Framer) Call(ctx context.Context, method string, params interface{}, awaitResponse bool, timeout time.Duration) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal params for %q: %w", method, err)
	}

	frame := Frame{Method: method, Params: raw}
	if !awaitResponse {
		return nil, f.sendFrame(frame)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	id := uuid.NewString()
	frame.ID = id

	ch := make(chan Frame, 1)
	f.mu.Lock()
	f.pending[id] = ch
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.pending, id)
		f.mu.Unlock()
	}()

	if err := f.sendFrame(frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, &ErrTimeout{Method: method}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Framer) sendFrame(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("rpc: marshal frame: %w", err)
	}
	return f.send(data)
}

// HandleMessage parses one inbound line and routes it: a frame
// carrying Result/Error resolves a pending call; a frame carrying
// Method is dispatched to its handler (replying if it also carries an
// ID, i.e. it's a request rather than a notification). Malformed
// frames and unknown methods are logged and dropped, never panicked
// on — a single bad frame must not take down the session (spec §4.1).
func (f *Framer) HandleMessage(ctx context.Context, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Warnw("rpc: dropping malformed frame", "error", err)
		return
	}

	if frame.Method == "" {
		f.resolvePending(frame)
		return
	}

	f.mu.Lock()
	handler, ok := f.handlers[frame.Method]
	f.mu.Unlock()
	if !ok {
		f.logger.Warnw("rpc: dropping frame for unknown method", "method", frame.Method)
		return
	}

	result, err := handler(ctx, frame.Params)
	if frame.ID == "" {
		if err != nil {
			f.logger.Errorw("rpc: notification handler failed", "method", frame.Method, "error", err)
		}
		return
	}

	resp := Frame{ID: frame.ID}
	if err != nil {
		resp.Error = &FrameError{Message: err.Error()}
	} else {
		raw, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			resp.Error = &FrameError{Message: marshalErr.Error()}
		} else {
			resp.Result = raw
		}
	}
	if sendErr := f.sendFrame(resp); sendErr != nil {
		f.logger.Errorw("rpc: failed to send response", "method", frame.Method, "error", sendErr)
	}
}

func (f *Framer) resolvePending(frame Frame) {
	f.mu.Lock()
	ch, ok := f.pending[frame.ID]
	f.mu.Unlock()
	if !ok {
		f.logger.Warnw("rpc: dropping response for unknown id", "id", frame.ID)
		return
	}
	select {
	case ch <- frame:
	default:
	}
}
