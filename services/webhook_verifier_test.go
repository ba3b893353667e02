package services_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

func TestHMACVerifier(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	secret := "whsec_test"
	sig := services.SignWebhookPayload(body, secret)

	v := services.HMACVerifier{}
	assert.True(t, v.Verify(body, sig, secret))
	assert.False(t, v.Verify(body, sig, "other"), "wrong secret")
	assert.False(t, v.Verify([]byte(`{"event":"payment.failed"}`), sig, secret), "tampered body")
	assert.False(t, v.Verify(body, "not-hex", secret))
	assert.False(t, v.Verify(body, "", secret))
	assert.False(t, v.Verify(body, sig, ""), "unconfigured secret rejects everything")
}

func TestStripeVerifier(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_stripe",
		Timestamp: time.Now(),
	})

	v := services.StripeVerifier{}
	assert.True(t, v.Verify(body, signed.Header, "whsec_stripe"))
	assert.False(t, v.Verify(body, signed.Header, "whsec_other"))

	stale := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_stripe",
		Timestamp: time.Now().Add(-time.Hour),
	})
	assert.False(t, v.Verify(body, stale.Header, "whsec_stripe"), "outside the timestamp tolerance")
}

func webhookBody(t *testing.T, event string, orderID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":                "pay_29QQoUBi66xm2f",
					"order_id":          "order_9A33XWu170gUtm",
					"amount":            118000,
					"currency":          "INR",
					"error_description": "card declined",
					"notes":             map[string]string{"order_id": orderID},
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestParseWebhookEnvelope(t *testing.T) {
	orderID := uuid.New()
	now := time.Now()

	tests := []struct {
		event   string
		outcome models.PaymentOutcome
	}{
		{"payment.authorized", models.PaymentOutcomeAuthorized},
		{"payment.captured", models.PaymentOutcomeAuthorized},
		{"payment.failed", models.PaymentOutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			ev, err := services.ParseWebhookEnvelope(webhookBody(t, tt.event, orderID.String()), now)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, ev.Outcome)
			assert.Equal(t, orderID, ev.OrderID)
			assert.Equal(t, "pay_29QQoUBi66xm2f", ev.TransactionID)
			assert.Equal(t, int64(118000), ev.Amount)
			assert.Equal(t, services.GatewayRazorpay, ev.Gateway)
		})
	}

	_, err := services.ParseWebhookEnvelope(webhookBody(t, "refund.created", orderID.String()), now)
	assert.True(t, errors.Is(err, services.ErrUnhandledEvent))

	_, err = services.ParseWebhookEnvelope(webhookBody(t, "payment.captured", "nope"), now)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, services.ErrUnhandledEvent))

	_, err = services.ParseWebhookEnvelope([]byte("{"), now)
	assert.Error(t, err)
}

func TestParseStripeEvent(t *testing.T) {
	orderID := uuid.New()
	raw := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 118000,
			"currency": "inr",
			"metadata": {"order_id": "` + orderID.String() + `"},
			"last_payment_error": {"message": "Your card was declined."}
		}}
	}`)

	ev, err := services.ParseStripeEvent(raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeFailed, ev.Outcome)
	assert.Equal(t, orderID, ev.OrderID)
	assert.Equal(t, "pi_123", ev.TransactionID)
	assert.Equal(t, "Your card was declined.", ev.Reason)
	assert.Equal(t, services.GatewayStripe, ev.Gateway)

	_, err = services.ParseStripeEvent([]byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{}}}`), time.Now())
	assert.ErrorIs(t, err, services.ErrUnhandledEvent)
}
