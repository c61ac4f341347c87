package tokenstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/rpc"
)

// rpcClient is the default C8 backend: JSON-RPC over a websocket to
// TOKEN_STREAMING_SERVER_URL (spec §6).
type rpcClient struct {
	logger commons.Logger
	conn   *websocket.Conn
	framer *rpc.Framer

	onToken        func(token, responseID string)
	onToolCall     func(inv ToolInvocation)
	onToolResponse func(inv ToolInvocation)
}

type connectParams struct {
	ContextID   string `json:"context_id"`
	AccessToken string `json:"access_token"`
}

type connectResult struct {
	Success bool         `json:"success"`
	Agent   AgentProfile `json:"agent"`
}

type addMessageParams struct {
	Message string `json:"message"`
}

type onTokenParams struct {
	Token      string `json:"token"`
	ResponseID string `json:"response_id"`
}

// Dial connects to the token-stream server and wires the notification
// handlers spec §4.8 requires before the caller invokes Connect.
func Dial(ctx context.Context, logger commons.Logger, url string) (Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tokenstream: dial %s: %w", url, err)
	}

	c := &rpcClient{logger: logger, conn: conn}
	c.framer = rpc.NewFramer(logger, func(data []byte) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	})

	c.framer.On("on_token", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p onTokenParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("tokenstream: decode on_token: %w", err)
		}
		if c.onToken != nil {
			c.onToken(p.Token, p.ResponseID)
		}
		return nil, nil
	})
	c.framer.On("on_tool_call", func(ctx context.Context, params json.RawMessage) (any, error) {
		var inv ToolInvocation
		if err := json.Unmarshal(params, &inv); err != nil {
			return nil, fmt.Errorf("tokenstream: decode on_tool_call: %w", err)
		}
		if c.onToolCall != nil {
			c.onToolCall(inv)
		}
		return nil, nil
	})
	c.framer.On("on_tool_response", func(ctx context.Context, params json.RawMessage) (any, error) {
		var inv ToolInvocation
		if err := json.Unmarshal(params, &inv); err != nil {
			return nil, fmt.Errorf("tokenstream: decode on_tool_response: %w", err)
		}
		if c.onToolResponse != nil {
			c.onToolResponse(inv)
		}
		return nil, nil
	})

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.framer.HandleMessage(ctx, data)
		}
	}()

	return c, nil
}

func (c *rpcClient) Connect(ctx context.Context, contextID, accessToken string) (AgentProfile, error) {
	raw, err := c.framer.Call(ctx, "connect_to_context", connectParams{ContextID: contextID, AccessToken: accessToken}, true, 0)
	if err != nil {
		return AgentProfile{}, err
	}
	var result connectResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return AgentProfile{}, fmt.Errorf("tokenstream: decode connect_to_context result: %w", err)
	}
	if !result.Success {
		return AgentProfile{}, fmt.Errorf("tokenstream: connect_to_context reported failure")
	}
	return result.Agent, nil
}

func (c *rpcClient) AddMessage(ctx context.Context, text string) error {
	_, err := c.framer.Call(ctx, "add_message", addMessageParams{Message: text}, false, 0)
	return err
}

func (c *rpcClient) OnToken(fn func(token, responseID string))    { c.onToken = fn }
func (c *rpcClient) OnToolCall(fn func(inv ToolInvocation))       { c.onToolCall = fn }
func (c *rpcClient) OnToolResponse(fn func(inv ToolInvocation))   { c.onToolResponse = fn }

func (c *rpcClient) Close() error { return c.conn.Close() }
