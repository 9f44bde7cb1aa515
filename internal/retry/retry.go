// Package retry builds the reconnect schedules used by both sockets.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is capped exponential backoff with jitter. MaxAttempts <= 0 means unbounded.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (p Policy) New() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.5
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return b
}

// Constant is a fixed-delay schedule, mostly for tests.
func Constant(d time.Duration, maxAttempts int) func() backoff.BackOff {
	return func() backoff.BackOff {
		var b backoff.BackOff = backoff.NewConstantBackOff(d)
		if maxAttempts > 0 {
			b = backoff.WithMaxRetries(b, uint64(maxAttempts))
		}
		return b
	}
}

// Wait sleeps for d or until ctx is done. It reports false when ctx ended first.
func Wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
