package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Retrying bounds every attempt of a wrapped provider with Timeout and
// retries transient failures with linear backoff.
type Retrying struct {
	Provider   Provider
	MaxRetries int
	Timeout    time.Duration
	Backoff    time.Duration
	Logger     *slog.Logger
}

// NewRetrying wraps p.
func NewRetrying(p Provider, maxRetries int, timeout time.Duration, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{
		Provider:   p,
		MaxRetries: maxRetries,
		Timeout:    timeout,
		Backoff:    time.Second,
		Logger:     logger,
	}
}

// Complete calls the wrapped provider and retries retryable errors up to
// MaxRetries times with a linear backoff.
func (r *Retrying) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var err error

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * r.Backoff
			r.Logger.Warn("retrying completion", "attempt", attempt, "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		var answer string
		answer, err = r.attempt(ctx, req)
		if err == nil {
			return answer, nil
		}
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	return "", err
}

func (r *Retrying) attempt(ctx context.Context, req CompletionRequest) (string, error) {
	if r.Timeout <= 0 {
		return r.Provider.Complete(ctx, req)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	answer, err := r.Provider.Complete(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %v", ErrTimeout, r.Timeout, err)
	}
	return answer, err
}
