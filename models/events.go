package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentOutcome is the gateway-independent result carried by a payment event.
type PaymentOutcome string

const (
	PaymentOutcomeAuthorized PaymentOutcome = "authorized"
	PaymentOutcomeFailed     PaymentOutcome = "failed"
)

// PaymentEvent is a verified gateway notification normalised for the payment
// state machine. SQS carries it as JSON.
type PaymentEvent struct {
	Event          string         `json:"event"`
	Outcome        PaymentOutcome `json:"outcome"`
	Gateway        string         `json:"gateway"`
	OrderID        uuid.UUID      `json:"orderId"`
	TransactionID  string         `json:"transactionId"`
	GatewayOrderID string         `json:"gatewayOrderId,omitempty"`
	Amount         int64          `json:"amount"` // paise
	Currency       string         `json:"currency"`
	Reason         string         `json:"reason,omitempty"`
	ReceivedAt     time.Time      `json:"receivedAt"`
}

// WebhookEnvelope is the body posted by the card gateway.
type WebhookEnvelope struct {
	Event string `json:"event"`
	Payload struct {
		Payment struct {
			Entity WebhookPaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type WebhookPaymentEntity struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	ErrorDescription string            `json:"error_description"`
	Notes            map[string]string `json:"notes"`
}

const (
	OrderEventPlaced    = "order.placed"
	OrderEventConfirmed = "order.confirmed"
	OrderEventCancelled = "order.cancelled"
	OrderEventRefunded  = "order.refunded"
	CouponEventRedeemed = "coupon.redeemed"
)

// OrderEvent is published to notification channels. Delivery is best effort.
type OrderEvent struct {
	Type          string        `json:"type"`
	OrderID       uuid.UUID     `json:"orderId"`
	OrderNumber   string        `json:"orderNumber"`
	UserID        uuid.UUID     `json:"userId"`
	TotalAmount   float64       `json:"totalAmount"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Reason        string        `json:"reason,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewOrderEvent snapshots o for publishing.
func NewOrderEvent(eventType string, o *Order) OrderEvent {
	ev := OrderEvent{
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Timestamp:     time.Now().UTC(),
	}
	if o.CancelReason != nil {
		ev.Reason = *o.CancelReason
	}
	return ev
}

type CouponEvent struct {
	Type      string    `json:"type"`
	CouponID  uuid.UUID `json:"couponId"`
	Code      string    `json:"code"`
	OrderID   uuid.UUID `json:"orderId"`
	UserID    uuid.UUID `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}
