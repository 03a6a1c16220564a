package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy bounds a provider call: every attempt gets Timeout, and up to
// MaxRetries further attempts follow a failure with exponential backoff.
type RetryPolicy struct {
	Timeout     time.Duration
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	// Retryable reports whether a failed attempt may be repeated. Nil
	// retries every failure.
	Retryable func(error) bool
}

// DefaultRetry matches the configuration defaults.
var DefaultRetry = RetryPolicy{
	Timeout:     60 * time.Second,
	MaxRetries:  3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     8 * time.Second,
}

func retry[T any](ctx context.Context, p RetryPolicy, f func(context.Context) (T, error)) (T, error) {
	var (
		zero T
		err  error
	)
	wait := p.InitialWait

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		var v T
		v, err = withTimeout(ctx, p.Timeout, f)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxRetries {
			break
		}

		// jitter in [0.5, 1.5) of the current wait
		sleep := time.Duration(float64(wait) * (0.5 + rand.Float64()))
		if p.MaxWait > 0 && sleep > p.MaxWait {
			sleep = p.MaxWait
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		wait *= 2
		if p.MaxWait > 0 && wait > p.MaxWait {
			wait = p.MaxWait
		}
	}
	return zero, err
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, f func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return f(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f(ctx)
}
