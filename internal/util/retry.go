package util

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Backoff configures exponential-backoff retries.
// Only idempotent operations (dialing, read calls) may be retried;
// transaction submission never goes through here.
type Backoff struct {
	// MaxRetries is the number of retries after the first attempt (0 = none, -1 = unlimited)
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter in [0,1] spreads delays by +/- that fraction
	Jitter float64
	// RetryIf reports whether err should be retried. Nil retries everything
	// except errors marked with Permanent.
	RetryIf func(error) bool
}

// DefaultBackoff is used when a nil Backoff is passed.
func DefaultBackoff() *Backoff {
	return &Backoff{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// ErrRetriesExhausted is joined with the last error when MaxRetries is hit.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Retry runs fn until it succeeds, returns a non-retryable error, runs out of
// retries or ctx is done. It returns the value of the last successful call
// and the number of attempts made.
func Retry[T any](ctx context.Context, b *Backoff, fn func(context.Context) (T, error)) (T, int, error) {
	if b == nil {
		b = DefaultBackoff()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, attempt, nil
		}

		if !b.shouldRetry(err) {
			return zero, attempt, err
		}
		if b.MaxRetries >= 0 && attempt > b.MaxRetries {
			return zero, attempt, errors.Join(ErrRetriesExhausted, err)
		}

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}

func (b *Backoff) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if b.RetryIf != nil {
		return b.RetryIf(err)
	}
	return true
}

// delay is BaseDelay * Multiplier^(attempt-1), jittered and clamped to MaxDelay.
func (b *Backoff) delay(attempt int) time.Duration {
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(b.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if b.Jitter > 0 {
		spread := d * b.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	if b.MaxDelay > 0 && time.Duration(d) > b.MaxDelay {
		return b.MaxDelay
	}
	return time.Duration(d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Retry stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
