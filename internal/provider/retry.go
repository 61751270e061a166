package provider

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DefaultMaxRetries is used when a negative retry count is configured.
const DefaultMaxRetries = 2

// Retrier wraps a Completer and retries transient failures with
// exponential backoff.
type Retrier struct {
	next       Completer
	maxRetries int

	// Backoff returns the wait before the given attempt (1-based retry
	// number).
	Backoff func(attempt int) time.Duration
}

// WithRetry wraps c. A negative maxRetries selects the default.
func WithRetry(c Completer, maxRetries int) *Retrier {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Retrier{
		next:       c,
		maxRetries: maxRetries,
		Backoff:    exponentialBackoff,
	}
}

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// Name returns the wrapped backend's name.
func (r *Retrier) Name() string {
	return r.next.Name()
}

// Unwrap returns the wrapped completer.
func (r *Retrier) Unwrap() Completer {
	return r.next
}

// Complete calls the wrapped completer, retrying transient failures.
func (r *Retrier) Complete(ctx context.Context, prompt string) (string, error) {
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.Backoff(attempt)
			slog.Info("Retrying completion after backoff",
				"provider", r.Name(),
				"attempt", attempt+1,
				"max_attempts", r.maxRetries+1,
				"backoff", backoff,
			)

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			}
		}

		result, err := r.next.Complete(ctx, prompt)
		if err == nil {
			if attempt > 0 {
				slog.Info("Completion succeeded after retry",
					"provider", r.Name(),
					"attempt", attempt+1,
				)
			}
			return result, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !IsTransient(err) {
			slog.Debug("Error is not retriable, failing immediately",
				"provider", r.Name(),
				"error", err,
			)
			return "", err
		}

		if attempt == r.maxRetries {
			slog.Error("Completion failed after all retries",
				"provider", r.Name(),
				"attempts", attempt+1,
				"error", err,
			)
			return "", fmt.Errorf("failed after %d attempts: %w", attempt+1, err)
		}

		slog.Warn("Completion failed, will retry",
			"provider", r.Name(),
			"attempt", attempt+1,
			"max_attempts", r.maxRetries+1,
			"error", err,
		)
	}

	return "", fmt.Errorf("unexpected retry loop exit")
}

// HealthCheck probes the wrapped completer once, without retries.
func (r *Retrier) HealthCheck(ctx context.Context) HealthStatus {
	return Check(ctx, r.next)
}
