package llm

import (
	"context"
	"time"
)

// Client is a completer that can also embed.
type Client interface {
	Completer
	Embedder
}

// Instrumented records the latency and outcome of every call on Stats.
type Instrumented struct {
	completer Completer
	embedder  Embedder
	model     string
	Stats     *Stats
}

// Instrument wraps a completer and an embedder (which may be the same
// value) with call statistics.
func Instrument(c Completer, e Embedder, stats *Stats) *Instrumented {
	model := ""
	if m, ok := c.(Modeler); ok {
		model = m.Model()
	}
	return &Instrumented{completer: c, embedder: e, model: model, Stats: stats}
}

// Model returns the completion model name, if the wrapped client exposes one.
func (i *Instrumented) Model() string {
	return i.model
}

func (i *Instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := i.completer.Complete(ctx, req)
	i.Stats.Record(KindComplete, outcomeOf(err), time.Since(start))
	return text, err
}

func (i *Instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := i.embedder.Embed(ctx, text)
	i.Stats.Record(KindEmbed, outcomeOf(err), time.Since(start))
	return vec, err
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsRateLimited(err):
		return OutcomeRateLimited
	default:
		return OutcomeFailed
	}
}
