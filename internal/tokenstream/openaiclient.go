package tokenstream

import (
	"context"
	"fmt"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/orbitalk/agent/internal/commons"
)

// openaiClient is the C8 backend selected by
// TOKEN_STREAM_PROVIDER=openai (SPEC_FULL §4.14): no bridging LM
// server, streaming chat completions direct against OpenAI. It
// maintains the conversation as a growing message list the way a
// single-context voice session never branches.
type openaiClient struct {
	logger commons.Logger
	client oai.Client
	model  string

	mu       sync.Mutex
	messages []oai.ChatCompletionMessageParamUnion
	cancel   context.CancelFunc

	onToken        func(token, responseID string)
	onToolCall     func(inv ToolInvocation)
	onToolResponse func(inv ToolInvocation)
}

// NewOpenAIClient constructs a Client backed directly by OpenAI's
// streaming chat completions API.
func NewOpenAIClient(logger commons.Logger, apiKey, model string) Client {
	return &openaiClient{
		logger: logger,
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Connect has no external handshake for a direct OpenAI backend; it
// returns an AgentProfile carrying only the provider name. VoiceID is
// left empty, so the TTS backend uses its default voice.
func (c *openaiClient) Connect(ctx context.Context, contextID, accessToken string) (AgentProfile, error) {
	return AgentProfile{Provider: "openai"}, nil
}

func (c *openaiClient) AddMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	c.messages = append(c.messages, oai.UserMessage(text))
	messages := append([]oai.ChatCompletionMessageParamUnion(nil), c.messages...)
	streamCtx, cancel := context.WithCancel(ctx)
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}

	stream := c.client.Chat.Completions.NewStreaming(streamCtx, params)
	if err := stream.Err(); err != nil {
		return fmt.Errorf("tokenstream: openai start stream: %w", err)
	}

	go c.drain(stream)
	return nil
}

func (c *openaiClient) drain(stream *oai.ChatCompletionNewStreaming) {
	defer stream.Close()

	var assembled string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			assembled += delta.Content
			if c.onToken != nil {
				c.onToken(delta.Content, chunk.ID)
			}
		}
	}

	if err := stream.Err(); err != nil {
		c.logger.Warnw("tokenstream: openai stream error", "error", err)
		return
	}

	c.mu.Lock()
	c.messages = append(c.messages, oai.AssistantMessage(assembled))
	c.mu.Unlock()
}

func (c *openaiClient) OnToken(fn func(token, responseID string))  { c.onToken = fn }
func (c *openaiClient) OnToolCall(fn func(inv ToolInvocation))     { c.onToolCall = fn }
func (c *openaiClient) OnToolResponse(fn func(inv ToolInvocation)) { c.onToolResponse = fn }

func (c *openaiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}
