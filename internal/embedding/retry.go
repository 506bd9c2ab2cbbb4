package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gptshell/internal/logging"
)

// RateLimitError signals the provider rejected the request for quota reasons.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError signals a failure worth retrying: timeouts, unreachable
// servers, 5xx responses.
type TransientError struct {
	Provider string
	Status   int
	Err      error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s transient failure (HTTP %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// classifyHTTPStatus maps an HTTP status onto the retry taxonomy.
func classifyHTTPStatus(provider string, status int, body string) error {
	err := fmt.Errorf("HTTP %d: %s", status, body)
	switch {
	case status == 429:
		return &RateLimitError{Provider: provider, Err: err}
	case status >= 500:
		return &TransientError{Provider: provider, Status: status, Err: err}
	}
	// 4xx other than 429 means the request itself is wrong; retrying
	// would just repeat the mistake
	return fmt.Errorf("%s embed failed: %w", provider, err)
}

// isRetryable reports whether err is worth another attempt.
func isRetryable(err error) bool {
	var rl *RateLimitError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// retryEngine wraps an EmbeddingEngine with bounded exponential backoff.
// Only transient failures are retried; malformed-request errors surface
// immediately.
type retryEngine struct {
	inner      EmbeddingEngine
	maxRetries int
	wait       func(ctx context.Context, d time.Duration) error // swapped out in tests
}

// WithRetry decorates engine with retry behavior for transient failures.
func WithRetry(engine EmbeddingEngine, maxRetries int) EmbeddingEngine {
	return &retryEngine{
		inner:      engine,
		maxRetries: maxRetries,
		wait:       backoffWait,
	}
}

// backoffWait sleeps for d unless ctx ends first.
func backoffWait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *retryEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := r.do(ctx, "Embed", func() error {
		var embedErr error
		result, embedErr = r.inner.Embed(ctx, text)
		return embedErr
	})
	return result, err
}

func (r *retryEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := r.do(ctx, "EmbedBatch", func() error {
		var embedErr error
		result, embedErr = r.inner.EmbedBatch(ctx, texts)
		return embedErr
	})
	return result, err
}

func (r *retryEngine) Dimensions() int { return r.inner.Dimensions() }
func (r *retryEngine) Name() string    { return r.inner.Name() }

func (r *retryEngine) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			logging.EmbeddingDebug("%s attempt %d/%d after %v: %v",
				op, attempt, r.maxRetries, delay, lastErr)
			if err := r.wait(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, r.maxRetries, lastErr)
}

// backoffDelay returns 1s, 2s, 4s, ... capped at 30s, with up to 25% jitter.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}
