package tokenstream

import (
	"context"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/orbitalk/agent/internal/commons"
)

// anthropicClient is the C8 backend selected by
// TOKEN_STREAM_PROVIDER=anthropic (SPEC_FULL §4.14), mirroring
// openaiClient's direct-provider shape for Claude-backed deployments.
type anthropicClient struct {
	logger commons.Logger
	client anthropic.Client
	model  anthropic.Model

	mu       sync.Mutex
	messages []anthropic.MessageParam
	cancel   context.CancelFunc

	onToken        func(token, responseID string)
	onToolCall     func(inv ToolInvocation)
	onToolResponse func(inv ToolInvocation)
}

// NewAnthropicClient constructs a Client backed directly by
// Anthropic's streaming Messages API.
func NewAnthropicClient(logger commons.Logger, apiKey, model string) Client {
	return &anthropicClient{
		logger: logger,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

func (c *anthropicClient) Connect(ctx context.Context, contextID, accessToken string) (AgentProfile, error) {
	return AgentProfile{Provider: "anthropic"}, nil
}

func (c *anthropicClient) AddMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	c.messages = append(c.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	messages := append([]anthropic.MessageParam(nil), c.messages...)
	streamCtx, cancel := context.WithCancel(ctx)
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages:  messages,
	}

	stream := c.client.Messages.NewStreaming(streamCtx, params)
	go c.drain(stream)
	return nil
}

func (c *anthropicClient) drain(stream *anthropic.MessageStream) {
	defer stream.Close()

	var assembled string
	var responseID string
	for stream.Next() {
		event := stream.Current()
		switch delta := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta.Delta.Text != "" {
				assembled += delta.Delta.Text
				if c.onToken != nil {
					c.onToken(delta.Delta.Text, responseID)
				}
			}
		case anthropic.MessageStartEvent:
			responseID = delta.Message.ID
		}
	}

	if err := stream.Err(); err != nil {
		c.logger.Warnw("tokenstream: anthropic stream error", "error", err)
		return
	}

	c.mu.Lock()
	c.messages = append(c.messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(assembled)))
	c.mu.Unlock()
}

func (c *anthropicClient) OnToken(fn func(token, responseID string))  { c.onToken = fn }
func (c *anthropicClient) OnToolCall(fn func(inv ToolInvocation))     { c.onToolCall = fn }
func (c *anthropicClient) OnToolResponse(fn func(inv ToolInvocation)) { c.onToolResponse = fn }

func (c *anthropicClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}
