package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aravind-gm/oranew/common/errors"
	"github.com/aravind-gm/oranew/models"
	awspkg "github.com/aravind-gm/oranew/pkg/aws"
)

// MessageSource delivers queue messages to a handler until ctx is done.
// Implemented by awspkg.SQSConsumer.
type MessageSource interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// PaymentEventConsumer feeds verified payment events from a queue into the
// payment state machine.
type PaymentEventConsumer struct {
	source   MessageSource
	payments PaymentService
	logger   *zap.Logger
}

func NewPaymentEventConsumer(source MessageSource, payments PaymentService, logger *zap.Logger) *PaymentEventConsumer {
	return &PaymentEventConsumer{source: source, payments: payments, logger: logger}
}

func (c *PaymentEventConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting PaymentEventConsumer (SQS)")
	if err := c.source.StartPolling(ctx, c.Handle); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("payment event consumer stopped", zap.Error(err))
	}
}

// Handle processes one message body. Only transient failures are returned,
// which leaves the message on the queue for redelivery. Malformed or
// rejected events are logged and dropped.
func (c *PaymentEventConsumer) Handle(ctx context.Context, body string) error {
	var event models.PaymentEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		c.logger.Warn("Invalid payment event JSON", zap.Error(err))
		return nil
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	if err := c.payments.HandlePaymentEvent(ctx, &event); err != nil {
		if apperrors.IsRetryable(err) {
			c.logger.Warn("payment event will be redelivered",
				zap.String("order_id", event.OrderID.String()),
				zap.Error(err),
			)
			return err
		}
		c.logger.Error("payment event dropped",
			zap.String("order_id", event.OrderID.String()),
			zap.String("event", event.Event),
			zap.Error(err),
		)
	}
	return nil
}
