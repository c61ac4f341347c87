// Package tokenstream implements C8: the single-peer client that
// negotiates an agent context and streams back tokens and tool
// activity (spec §4.8). Three backends (SPEC_FULL §4.14) share this
// interface: the generic JSON-RPC transport (default), and direct
// openai-go / anthropic-sdk-go backends for deployments that skip a
// bridging LM server.
package tokenstream

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// AgentProfile is returned by Connect once the context handshake
// completes (spec §3 additions).
type AgentProfile struct {
	VoiceID  string `json:"voice_id"`
	Provider string `json:"provider"`
}

// ToolInvocation carries a tool_call/tool_response round-trip using
// mark3labs/mcp-go's request/result shapes so the payload keeps a real
// MCP type across the wire rather than an untyped map (SPEC_FULL §3).
type ToolInvocation struct {
	ToolID     string               `json:"tool_id"`
	ToolName   string               `json:"tool_name"`
	ToolInput  *mcp.CallToolRequest `json:"tool_input,omitempty"`
	ToolOutput *mcp.CallToolResult  `json:"tool_output,omitempty"`
}

// Client is the C8 contract. Connect must be called exactly once
// before AddMessage.
type Client interface {
	// Connect negotiates the agent context and returns its profile.
	Connect(ctx context.Context, contextID, accessToken string) (AgentProfile, error)
	// AddMessage pushes a finalized utterance to the agent.
	AddMessage(ctx context.Context, text string) error
	// OnToken registers the token-notification sink.
	OnToken(fn func(token, responseID string))
	// OnToolCall registers the tool_call notification sink.
	OnToolCall(fn func(inv ToolInvocation))
	// OnToolResponse registers the tool_response notification sink.
	OnToolResponse(fn func(inv ToolInvocation))
	// Close releases the underlying connection.
	Close() error
}
