package resilience

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/aravind-gm/oranew/common/errors"
)

// Reconnector re-establishes a dropped database connection.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// WithReconnect runs fn and, if it fails with a transient error, reconnects
// once and runs fn exactly one more time.
func WithReconnect[T any](ctx context.Context, rc Reconnector, logger *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !apperrors.IsRetryable(err) || rc == nil {
		return v, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("transient database error, reconnecting", zap.Error(err))

	if rerr := rc.Reconnect(ctx); rerr != nil {
		logger.Error("reconnect failed", zap.Error(rerr))
		var zero T
		return zero, err
	}
	return fn(ctx)
}
