package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled spaces out calls client-side so bursts from the worker pools
// hit the provider's rate limit less often.
type Throttled struct {
	next    Client
	limiter *rate.Limiter
}

// Throttle limits next to rps calls per second with the given burst. A
// non-positive rps disables the limiter.
func Throttle(next Client, rps float64, burst int) Client {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *Throttled) Model() string {
	if m, ok := t.next.(Modeler); ok {
		return m.Model()
	}
	return ""
}

func (t *Throttled) Complete(ctx context.Context, req Request) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Complete(ctx, req)
}

func (t *Throttled) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Embed(ctx, text)
}
