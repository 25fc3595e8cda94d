package llm

import (
	"context"
	"time"
)

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message, params Params) (*Response, error)

	// Stream sends a chat completion request and returns a channel of
	// incremental deltas. The channel is unbuffered; the provider reads the
	// next chunk only after the previous delta was received. Cancelling ctx
	// aborts the request and closes the channel.
	Stream(ctx context.Context, messages []Message, params Params) (<-chan Delta, error)
}

// Pinger is implemented by providers that can check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Resolve fills empty fields of p from the config.
func (c *Config) Resolve(p Params) Params {
	if p.Model == "" {
		p.Model = c.Model
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = c.MaxTokens
	}
	if p.Temperature == nil {
		t := c.Temperature
		p.Temperature = &t
	}
	return p
}
