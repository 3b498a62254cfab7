package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Backoff is the exponential retry schedule of a Policy. Attempts counts the
// first try, so 1 disables retries.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
	Factor   float64
	Jitter   float64 // fraction of the delay, 0.5 means ±50%
}

// DefaultBackoff is three attempts starting at 500ms.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Cap:      30 * time.Second,
		Factor:   2.0,
		Jitter:   0.25,
	}
}

func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = def.Attempts
	}
	if b.Base <= 0 {
		b.Base = def.Base
	}
	if b.Cap <= 0 {
		b.Cap = def.Cap
	}
	if b.Factor <= 0 {
		b.Factor = def.Factor
	}
	b.Jitter = max(b.Jitter, 0)
	return b
}

// Delay is the wait before retry number attempt+1. A rate-limited failure
// waits one extra step of the schedule.
func (b Backoff) Delay(attempt int, err error) time.Duration {
	if rateLimited(err) {
		attempt++
	}
	d := min(float64(b.Base)*math.Pow(b.Factor, float64(attempt)), float64(b.Cap))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(max(d, 0))
}

func rateLimited(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests
}

// OnRetry is told about each failed attempt before the wait that follows it.
type OnRetry func(attempt int, wait time.Duration, err error)

// Retry runs fn on the schedule until it succeeds or fails permanently, the
// attempts run out, or ctx ends. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, onRetry OnRetry, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !IsTransient(err) || attempt == b.Attempts-1 {
			return zero, err
		}

		wait := b.Delay(attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// logRetry logs a retry of one service call.
func logRetry(service, operation string, attempts int) OnRetry {
	return func(attempt int, wait time.Duration, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}
