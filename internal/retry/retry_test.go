package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func always(error) bool { return true }

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	p := Default().WithSleep(func(time.Duration) { t.Fatal("should not sleep") })
	err := p.Do(context.Background(), always, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	var slept []time.Duration
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second}.
		WithSleep(func(d time.Duration) { slept = append(slept, d) })

	err := p.Do(context.Background(), always, func() error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 5, calls)
	// 1s, 2s, 4s, 8s: no sleep after the final attempt.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, slept)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	p := Default().WithSleep(func(time.Duration) {})
	err := p.Do(context.Background(), func(err error) bool {
		return !errors.Is(err, permanent)
	}, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoRecoversMidway(t *testing.T) {
	calls := 0
	p := Default().WithSleep(func(time.Duration) {})
	err := p.Do(context.Background(), always, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	p := Default().WithSleep(func(time.Duration) { t.Fatal("should not sleep") })
	err := p.Do(ctx, always, func() error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestDelayJitterRange(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, JitterRange: time.Second}
	for attempt := 1; attempt <= 4; attempt++ {
		base := time.Second << (attempt - 1)
		for i := 0; i < 50; i++ {
			d := p.delay(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+time.Second)
		}
	}
}
