// Package signaling implements C2: a duplex text transport to the
// room server, surfacing connection status to its caller.
package signaling

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitalk/agent/internal/commons"
)

// Status is the signaling connection's lifecycle state (spec §4.2).
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusFailed       Status = "failed"
)

// Client wraps a websocket connection to the room server. It is the
// transport C1's Framer rides on top of for the signaling protocol.
type Client struct {
	logger commons.Logger
	url    string
	header http.Header

	mu            sync.Mutex
	conn          *websocket.Conn
	closed        bool
	statusHandler func(Status)
	msgHandler    func(string)
}

// NewClient constructs a signaling Client for the given room-server
// URL. Header may carry an auth token forwarded as an opaque extra
// header to join (spec §9 open question).
func NewClient(logger commons.Logger, url string, header http.Header) *Client {
	return &Client{logger: logger, url: url, header: header}
}

// OnMessage registers the single handler that receives every inbound
// frame, in arrival order (spec §4.2 "the receive task loops over
// inbound frames delivering each to one handler").
func (c *Client) OnMessage(handler func(text string)) { c.msgHandler = handler }

// OnStatus registers the connection-status subscriber.
func (c *Client) OnStatus(handler func(Status)) { c.statusHandler = handler }

// Connect dials the room server and starts the receive loop.
func (c *Client) Connect(ctx context.Context) error {
	c.emitStatus(StatusConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		c.emitStatus(StatusFailed)
		return fmt.Errorf("signaling: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.emitStatus(StatusConnected)
	go c.recvLoop()
	return nil
}

func (c *Client) recvLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warnw("signaling: read failed, closing", "error", err)
			c.teardown(StatusDisconnected)
			return
		}
		if c.msgHandler != nil {
			c.msgHandler(string(data))
		}
	}
}

// Send writes one text frame to the room server.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signaling: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close idempotently tears down the connection.
func (c *Client) Close() error {
	c.teardown(StatusDisconnected)
	return nil
}

func (c *Client) teardown(status Status) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.emitStatus(status)
}

func (c *Client) emitStatus(s Status) {
	if c.statusHandler != nil {
		c.statusHandler(s)
	}
}
