package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/stripe/stripe-go/v80/webhook"
)

// WebhookVerifier authenticates a raw webhook body against its signature header.
type WebhookVerifier interface {
	Verify(rawBody []byte, signature, secret string) bool
}

// HMACVerifier checks a hex encoded HMAC-SHA256 of the raw body.
type HMACVerifier struct{}

func (HMACVerifier) Verify(rawBody []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(got, signBody(rawBody, secret))
}

// SignWebhookPayload returns the signature HMACVerifier accepts for body.
func SignWebhookPayload(rawBody []byte, secret string) string {
	return hex.EncodeToString(signBody(rawBody, secret))
}

func signBody(rawBody []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return mac.Sum(nil)
}

// StripeVerifier checks the Stripe-Signature header, including its timestamp tolerance.
type StripeVerifier struct{}

func (StripeVerifier) Verify(rawBody []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(rawBody, signature, secret) == nil
}
