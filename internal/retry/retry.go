// Package retry implements the exponential backoff policy shared by every
// remote store call.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes one backoff schedule: up to MaxAttempts tries, sleeping
// BaseDelay*2^(n-1) plus a random jitter in [0, JitterRange) before retry n.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	JitterRange time.Duration

	// sleep is swapped in tests; nil means time.Sleep.
	sleep func(time.Duration)
}

// Default matches the store's documented limits: 5 attempts, 1s base, 1s
// jitter, so the worst case waits 1+2+4+8 seconds plus jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		JitterRange: time.Second,
	}
}

// WithSleep returns a copy of p that sleeps through fn.
func (p Policy) WithSleep(fn func(time.Duration)) Policy {
	p.sleep = fn
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.JitterRange > 0 {
		d += time.Duration(rand.Int63n(int64(p.JitterRange)))
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget runs out, or ctx is done. Only the calling goroutine sleeps.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return err
		}
		sleep(p.delay(attempt))
	}
	return err
}
