// Package llm is the boundary to the external text-generation service.
//
// A Gateway turns one request into one text response. It does not retry or
// cache; every transport or service failure is reported as
// domain.ErrModelUnavailable.
package llm

import (
	"context"
	"fmt"

	"github.com/ashureev/studyplan/internal/domain"
)

// Defaults used by every pipeline stage.
const (
	DefaultModel       = "@cf/meta/llama-3.3-70b-instruct-fp8-fast"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a single generation call.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// NewRequest builds a request with an optional system instruction followed by
// the user prompt, using the default sampling parameters.
func NewRequest(system, prompt string) Request {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})
	return Request{
		Messages:    msgs,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// PromptLength returns the total number of bytes across all messages.
func (r Request) PromptLength() int {
	n := 0
	for _, m := range r.Messages {
		n += len(m.Content)
	}
	return n
}

// Gateway generates text from a prompt.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GatewayFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// unavailable wraps err as a ModelUnavailable failure.
func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrModelUnavailable, fmt.Sprintf(format, args...))
}

func unavailableErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrModelUnavailable, op, err)
}
