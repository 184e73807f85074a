package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("connection reset")
	errTerminal  = errors.New("400 bad request")
)

// fakeClock records requested sleeps instead of waiting.
type fakeClock struct{ slept []time.Duration }

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return nil
}

func newPolicy(clock *fakeClock) Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
		Multiplier:  2,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
		Sleep:       clock.Sleep,
	}
}

func TestDo_FourFailuresThenSuccess(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	err := newPolicy(clock).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 5 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}, clock.slept)
}

func TestDo_Exhausted(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	err := newPolicy(clock).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 5, calls)
	assert.Len(t, clock.slept, 4, "no sleep after the final attempt")
}

func TestDo_TerminalErrorNotRetried(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	err := newPolicy(clock).Do(context.Background(), func(context.Context) error {
		calls++
		return errTerminal
	})

	assert.ErrorIs(t, err, errTerminal)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.slept)
}

func TestDo_ZeroValueRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsWhenSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Multiplier:  2,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return Sleep(ctx, d)
		},
	}
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, 5*time.Second, p.Delay(0))
	assert.Equal(t, 80*time.Second, p.Delay(4))

	flat := Policy{BaseDelay: time.Second, Multiplier: 0}
	assert.Equal(t, time.Second, flat.Delay(3))
}
