// Package retry re-runs rate-limited model calls with exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/convoscope/internal/llm"
)

// Policy bounds a retry loop. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is one call plus five retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 6, InitialDelay: time.Second}
}

// Backoff returns the wait before retry number attempt (0-indexed).
func (p Policy) Backoff(attempt int) time.Duration {
	return p.InitialDelay << uint(attempt)
}

// Do calls fn until it succeeds, fails with anything other than a rate
// limit, or MaxAttempts calls have been made. The last error is returned
// unchanged.
func Do[T any](ctx context.Context, p Policy, log *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var val T
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		val, err = fn(ctx)
		if err == nil || !llm.IsRateLimited(err) {
			return val, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.Backoff(attempt)
		if log != nil {
			log.Warn("rate limited, backing off", "attempt", attempt+1, "delay", delay, "error", err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return val, serr
		}
	}
	return val, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
