package llm

import (
	"context"
	"time"
)

// CallObserver receives the latency and outcome of each gateway call.
type CallObserver interface {
	ObserveGateway(d time.Duration, err error)
}

type instrumented struct {
	next Gateway
	obs  CallObserver
}

// Instrument wraps g so every call is reported to obs.
func Instrument(g Gateway, obs CallObserver) Gateway {
	if obs == nil {
		return g
	}
	return &instrumented{next: g, obs: obs}
}

func (i *instrumented) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := i.next.Generate(ctx, req)
	i.obs.ObserveGateway(time.Since(start), err)
	return text, err
}
