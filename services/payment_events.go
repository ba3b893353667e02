package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"

	"github.com/aravind-gm/oranew/models"
)

const (
	GatewayRazorpay = "razorpay"
	GatewayStripe   = "stripe"
)

// ErrUnhandledEvent marks webhook events the state machine does not act on.
var ErrUnhandledEvent = errors.New("unhandled payment event")

var webhookOutcomes = map[string]models.PaymentOutcome{
	"payment.authorized": models.PaymentOutcomeAuthorized,
	"payment.captured":   models.PaymentOutcomeAuthorized,
	"payment.failed":     models.PaymentOutcomeFailed,
}

var stripeOutcomes = map[stripe.EventType]models.PaymentOutcome{
	"payment_intent.succeeded":      models.PaymentOutcomeAuthorized,
	"payment_intent.payment_failed": models.PaymentOutcomeFailed,
}

// ParseWebhookEnvelope normalises a verified card gateway webhook body.
// The internal order id travels in the payment notes.
func ParseWebhookEnvelope(raw []byte, receivedAt time.Time) (*models.PaymentEvent, error) {
	var env models.WebhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}

	outcome, ok := webhookOutcomes[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, env.Event)
	}

	entity := env.Payload.Payment.Entity
	orderID, err := uuid.Parse(entity.Notes["order_id"])
	if err != nil {
		return nil, fmt.Errorf("webhook payment %s has no valid order_id note: %w", entity.ID, err)
	}

	return &models.PaymentEvent{
		Event:          env.Event,
		Outcome:        outcome,
		Gateway:        GatewayRazorpay,
		OrderID:        orderID,
		TransactionID:  entity.ID,
		GatewayOrderID: entity.OrderID,
		Amount:         entity.Amount,
		Currency:       entity.Currency,
		Reason:         entity.ErrorDescription,
		ReceivedAt:     receivedAt,
	}, nil
}

// ParseStripeEvent normalises a verified Stripe payment intent event. The
// order id is read from the intent metadata.
func ParseStripeEvent(raw []byte, receivedAt time.Time) (*models.PaymentEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}

	outcome, ok := stripeOutcomes[event.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data", event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	orderID, err := uuid.Parse(pi.Metadata["order_id"])
	if err != nil {
		return nil, fmt.Errorf("payment intent %s has no valid order_id: %w", pi.ID, err)
	}

	ev := &models.PaymentEvent{
		Event:          string(event.Type),
		Outcome:        outcome,
		Gateway:        GatewayStripe,
		OrderID:        orderID,
		TransactionID:  pi.ID,
		GatewayOrderID: pi.ID,
		Amount:         pi.Amount,
		Currency:       string(pi.Currency),
		ReceivedAt:     receivedAt,
	}
	if pi.LastPaymentError != nil {
		ev.Reason = pi.LastPaymentError.Msg
	}
	return ev, nil
}
