package resilience

import (
	"context"

	"go.uber.org/zap"
)

// WithFallback retries fn and returns fallback once retries are exhausted.
// Reserved for reads whose absence must not fail the caller.
func WithFallback[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error), fallback T) T {
	v, err := Retry(ctx, r, op, fn)
	if err != nil {
		r.logger.Warn("operation failed, using fallback",
			zap.String("operation", op),
			zap.Error(err))
		return fallback
	}
	return v
}
