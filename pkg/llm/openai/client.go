// Package openai implements llm.Provider for OpenAI-compatible chat APIs
// such as Groq.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/user/axiomos/pkg/llm"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultTimeout = 60 * time.Second
)

var _ llm.Provider = (*Client)(nil)
var _ llm.Pinger = (*Client)(nil)

// Client implements the llm.Provider interface on the openai-go SDK.
type Client struct {
	config *llm.Config
	client openaigo.Client
}

// New creates a client. httpClient may be nil.
func New(config *llm.Config, httpClient *http.Client) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := openaigo.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(strings.TrimSpace(config.APIKey)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(config.MaxRetries),
	)
	return &Client{config: config, client: client}
}

func (c *Client) params(messages []llm.Message, p llm.Params) openaigo.ChatCompletionNewParams {
	p = c.config.Resolve(p)

	msgs := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openaigo.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openaigo.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openaigo.UserMessage(m.Content))
		}
	}

	params := openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(p.Model),
		Messages: msgs,
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(p.MaxTokens))
	}
	if p.Temperature != nil {
		params.Temperature = param.NewOpt(*p.Temperature)
	}
	return params
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, p llm.Params) (*llm.Response, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages, p), option.WithRequestTimeout(c.config.Timeout))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices in response")
	}

	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Stream opens a streaming completion. Errors before the first chunk are
// returned directly; later errors arrive as a final Delta.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, p llm.Params) (<-chan llm.Delta, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages, p))

	// Pull the first chunk here so connection and auth failures surface as
	// an error return instead of a mid-stream Delta.
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err != nil {
			return nil, fmt.Errorf("chat completion stream: %w", err)
		}
		ch := make(chan llm.Delta)
		close(ch)
		return ch, nil
	}

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		defer stream.Close()

		for more := true; more; more = stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case ch <- llm.Delta{Content: content}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Delta{Err: fmt.Errorf("chat completion stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// Ping lists models to check the API is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
