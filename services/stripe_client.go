package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
)

// GatewayIntent is a payment the customer can complete at the gateway.
type GatewayIntent struct {
	ID           string
	ClientSecret string
}

// PaymentGateway creates payments at the card gateway.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, amount int64, currency string) (*GatewayIntent, error)
}

type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

// CreatePaymentIntent creates a PaymentIntent for amount in the currency's
// minor unit. The order id is used as idempotency key so a retried call
// returns the same intent.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, amount int64, currency string) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID.String())
	params.SetIdempotencyKey("order-" + orderID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &GatewayIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
