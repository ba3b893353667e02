package models

import (
	"time"

	"github.com/google/uuid"
)

type AddressInput struct {
	Street  string `json:"street" binding:"required"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	ZipCode string `json:"zipCode" binding:"required"`
	Country string `json:"country" binding:"required"`
}

type ItemRequest struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	Quantity  int       `json:"quantity"`
}

type CheckoutRequest struct {
	ShippingAddressID *uuid.UUID    `json:"shippingAddressId"`
	BillingAddressID  *uuid.UUID    `json:"billingAddressId"`
	ShippingAddress   *AddressInput `json:"shippingAddress"`
	Items             []ItemRequest `json:"items" binding:"omitempty,dive"`
	CouponCode        string        `json:"couponCode"`
}

type ValidateCouponRequest struct {
	OrderAmount float64 `json:"orderAmount" binding:"required,gt=0"`
}

// CouponValidation is the result of a successful coupon check.
type CouponValidation struct {
	Valid          bool         `json:"valid"`
	CouponID       uuid.UUID    `json:"couponId"`
	Code           string       `json:"code"`
	DiscountType   DiscountType `json:"discountType"`
	DiscountValue  float64      `json:"discountValue"`
	DiscountAmount float64      `json:"discountAmount"`
	FinalAmount    float64      `json:"finalAmount"`
}

type RedeemCouponRequest struct {
	OrderID uuid.UUID `json:"orderId" binding:"required"`
}

type CreateCouponRequest struct {
	Code           string       `json:"code" binding:"required,min=3,max=64"`
	DiscountType   DiscountType `json:"discountType" binding:"required,oneof=PERCENTAGE FIXED"`
	DiscountValue  float64      `json:"discountValue" binding:"required,gt=0"`
	MinOrderAmount float64      `json:"minOrderAmount" binding:"gte=0"`
	MaxDiscount    *float64     `json:"maxDiscount" binding:"omitempty,gt=0"`
	UsageLimit     *int         `json:"usageLimit" binding:"omitempty,gt=0"`
	ValidFrom      time.Time    `json:"validFrom" binding:"required"`
	ValidUntil     time.Time    `json:"validUntil" binding:"required,gtfield=ValidFrom"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}

type CreateReturnRequest struct {
	Reason      string `json:"reason" binding:"required,max=255"`
	Description string `json:"description" binding:"max=2000"`
}

type RefundRequest struct {
	ReturnID     uuid.UUID `json:"returnId" binding:"required"`
	RefundAmount float64   `json:"refundAmount"`
}

type PaymentIntentRequest struct {
	OrderID uuid.UUID `json:"orderId" binding:"required"`
}

type CartItemRequest struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,gte=1"`
}

type AdjustStockRequest struct {
	StockQuantity *int `json:"stockQuantity" binding:"required,gte=0"`
}

// Page bounds list queries.
type Page struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// Normalize clamps the page to sane bounds and returns the row offset.
func (p *Page) Normalize() int {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	return (p.Page - 1) * p.Limit
}

type CartView struct {
	Items    []CartLine `json:"items"`
	Subtotal float64    `json:"subtotal"`
}

type CartLine struct {
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	UnitPrice   float64   `json:"unitPrice"`
	Quantity    int       `json:"quantity"`
	LineTotal   float64   `json:"lineTotal"`
	Available   bool      `json:"available"`
}
