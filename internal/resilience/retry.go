// Package resilience provides the retry policy applied to every external
// call the pipeline makes (search, registry, embedding, chat).
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Schedule selects how the backoff delay grows between attempts.
type Schedule int

const (
	// ScheduleLinear waits base*(n+1) before attempt n+1. Used for
	// low-volume call sites (single chat or search calls).
	ScheduleLinear Schedule = iota

	// ScheduleExponential waits base*2^n. Used for higher-volume call
	// sites such as per-candidate embedding loops.
	ScheduleExponential
)

// Policy controls bounded retries with backoff. The zero value is not
// usable; start from DefaultPolicy or EmbeddingPolicy.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// BaseDelay seeds the backoff schedule.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff sleep.
	MaxDelay time.Duration

	Schedule Schedule

	// JitterFraction adds random jitter as a fraction of the computed
	// delay (0.25 = ±25%).
	JitterFraction float64

	// ShouldRetry overrides the default transient check when non-nil.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is the policy for one-shot chat and search calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		BaseDelay:      2 * time.Second,
		MaxDelay:       30 * time.Second,
		Schedule:       ScheduleLinear,
		JitterFraction: 0.25,
	}
}

// EmbeddingPolicy is the policy for per-candidate embedding loops, which
// hit rate limits more often and back off exponentially.
func EmbeddingPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		BaseDelay:      2 * time.Second,
		MaxDelay:       60 * time.Second,
		Schedule:       ScheduleExponential,
		JitterFraction: 0.25,
	}
}

// Do runs fn under the policy. Only transient errors are retried;
// anything else propagates immediately. Context cancellation stops the
// loop without a further attempt.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal runs fn under the policy and preserves its return value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = withDefaults(p)
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}
		if attempt >= p.MaxAttempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func withDefaults(p Policy) Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	var d float64
	switch p.Schedule {
	case ScheduleExponential:
		d = float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	default:
		d = float64(p.BaseDelay) * float64(attempt+1)
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.JitterFraction > 0 {
		spread := d * p.JitterFraction
		d += (rand.Float64()*2 - 1) * spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Logged returns an OnRetry callback that records each retry with the
// global logger.
func Logged(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying external call",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
