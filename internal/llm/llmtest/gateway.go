// Package llmtest provides a scripted llm.Gateway for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/studyplan/internal/domain"
	"github.com/ashureev/studyplan/internal/llm"
)

// Reply is one scripted gateway outcome.
type Reply struct {
	Text string
	Err  error
}

// Gateway replays scripted replies in order and records every request.
// When the script runs out it repeats Fallback.
type Gateway struct {
	mu       sync.Mutex
	script   []Reply
	Fallback *Reply
	requests []llm.Request

	// Hook, when set, runs before each reply is returned.
	Hook func(ctx context.Context, req llm.Request)
}

// New returns a gateway that answers with texts in order.
func New(texts ...string) *Gateway {
	g := &Gateway{}
	for _, t := range texts {
		g.script = append(g.script, Reply{Text: t})
	}
	return g
}

// Always returns a gateway that answers every call with text.
func Always(text string) *Gateway {
	return &Gateway{Fallback: &Reply{Text: text}}
}

// Failing returns a gateway whose every call fails as ModelUnavailable.
func Failing(reason string) *Gateway {
	return &Gateway{Fallback: &Reply{Err: fmt.Errorf("%w: %s", domain.ErrModelUnavailable, reason)}}
}

// Push appends replies to the script.
func (g *Gateway) Push(replies ...Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, replies...)
}

// Generate implements llm.Gateway.
func (g *Gateway) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	var reply Reply
	switch {
	case len(g.script) > 0:
		reply = g.script[0]
		g.script = g.script[1:]
	case g.Fallback != nil:
		reply = *g.Fallback
	default:
		reply = Reply{Err: fmt.Errorf("%w: llmtest script exhausted", domain.ErrModelUnavailable)}
	}
	hook := g.Hook
	g.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
	}
	return reply.Text, reply.Err
}

// Calls returns the number of Generate calls so far.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// Requests returns a copy of every request received.
func (g *Gateway) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

// Last returns the most recent request, or a zero Request if none.
func (g *Gateway) Last() llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return llm.Request{}
	}
	return g.requests[len(g.requests)-1]
}

// Ensure Gateway implements llm.Gateway.
var _ llm.Gateway = (*Gateway)(nil)
