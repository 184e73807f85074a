// Package retry runs an operation under a bounded exponential backoff
// policy.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how often and how patiently to retry. The zero value
// runs the operation once.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// Retryable reports whether err is worth another attempt. Nil treats
	// every error as retryable.
	Retryable func(err error) bool

	// Sleep waits for d or until ctx is done. Nil uses a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the wait after the given zero-based failed attempt:
// BaseDelay * Multiplier^attempt.
func (p Policy) Delay(attempt int) time.Duration {
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(m, float64(attempt)))
}

// Do calls op until it succeeds, returns a terminal error, or the attempts
// run out. There is no wait after the final attempt. A terminal error is
// returned as is; exhaustion returns an error matching ErrExhausted that
// also wraps the last failure.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt < attempts-1 {
			if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
				return serr
			}
		}
	}
	return errors.Join(ErrExhausted, err)
}

// Sleep blocks for d, returning ctx.Err() if ctx finishes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
