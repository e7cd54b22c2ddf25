package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // linear backoff: attempt * Delay

	// OnError is called after every failed attempt, before any wait.
	OnError func(attempt int, err error)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

func (c RetryConfig) backOff() backoff.BackOff {
	switch {
	case c.Delay <= 0:
		return &backoff.ZeroBackOff{}
	case c.Backoff:
		return &linearBackOff{step: c.Delay}
	default:
		return backoff.NewConstantBackOff(c.Delay)
	}
}

// WithRetry runs fn until it succeeds, returns a Permanent error, the context
// ends, or MaxAttempts is reached. fn receives the 1-based attempt number.
func WithRetry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := 0
	var lastErr error

	operation := func() (struct{}, error) {
		attempts++
		err := fn(attempts)
		if err != nil {
			lastErr = err
			if config.OnError != nil {
				config.OnError(attempts, err)
			}
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(config.backOff()),
		backoff.WithMaxTries(uint(config.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)

	switch {
	case err == nil:
		return nil
	case IsPermanent(lastErr):
		return lastErr
	case attempts >= config.MaxAttempts:
		return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	case lastErr != nil && ctx.Err() != nil:
		return fmt.Errorf("stopped after %d attempts: %w", attempts, lastErr)
	default:
		return err
	}
}
