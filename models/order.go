package models

import (
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber       string          `gorm:"uniqueIndex;not null" json:"orderNumber"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"userId"`
	Subtotal          float64         `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	DiscountAmount    float64         `gorm:"type:numeric(12,2);not null;default:0" json:"discountAmount"`
	GSTAmount         float64         `gorm:"column:gst_amount;type:numeric(12,2);not null;default:0" json:"gstAmount"`
	ShippingFee       float64         `gorm:"type:numeric(12,2);not null;default:0" json:"shippingFee"`
	TotalAmount       float64         `gorm:"type:numeric(12,2);not null" json:"totalAmount"`
	CouponCode        *string         `gorm:"type:varchar(64)" json:"couponCode,omitempty"`
	ShippingAddressID uuid.UUID       `gorm:"type:uuid;not null" json:"shippingAddressId"`
	BillingAddressID  uuid.UUID       `gorm:"type:uuid;not null" json:"billingAddressId"`
	Status            OrderStatus     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	PaymentStatus     PaymentStatus   `gorm:"type:varchar(20);not null;default:'PENDING'" json:"paymentStatus"`
	CancelReason      *string         `gorm:"type:text" json:"cancelReason,omitempty"`
	StockCommittedAt  *time.Time      `json:"stockCommittedAt,omitempty"`
	RestockedAt       *time.Time      `json:"restockedAt,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
	Items             []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Locks             []InventoryLock `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
}

// OrderItem snapshots name and price at checkout time.
type OrderItem struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index" json:"orderId"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null" json:"productId"`
	ProductName string    `gorm:"not null" json:"productName"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	UnitPrice   float64   `gorm:"type:numeric(12,2);not null" json:"unitPrice"`
	TotalPrice  float64   `gorm:"type:numeric(12,2);not null" json:"totalPrice"`
}

type Payment struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID        uuid.UUID     `gorm:"type:uuid;uniqueIndex;not null" json:"orderId"`
	UserID         uuid.UUID     `gorm:"type:uuid;index;not null" json:"userId"`
	Status         PaymentStatus `gorm:"type:varchar(20);not null" json:"status"`
	Gateway        string        `gorm:"type:varchar(32);not null" json:"gateway"`
	TransactionID  *string       `gorm:"type:varchar(128);index" json:"transactionId,omitempty"`
	GatewayOrderID *string       `gorm:"type:varchar(128)" json:"gatewayOrderId,omitempty"`
	ClientSecret   *string       `gorm:"type:varchar(255)" json:"clientSecret,omitempty"`
	Amount         float64       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency       string        `gorm:"type:varchar(10);not null" json:"currency"`
	ConfirmedAt    *time.Time    `json:"confirmedAt,omitempty"`
	FailedAt       *time.Time    `json:"failedAt,omitempty"`
	RefundedAt     *time.Time    `json:"refundedAt,omitempty"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

type Return struct {
	ID           uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"orderId"`
	UserID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"userId"`
	Reason       string       `gorm:"type:varchar(255);not null" json:"reason"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	Status       ReturnStatus `gorm:"type:varchar(20);not null;default:'REQUESTED'" json:"status"`
	RefundAmount *float64     `gorm:"type:numeric(12,2)" json:"refundAmount,omitempty"`
	Restocked    bool         `gorm:"not null;default:false" json:"restocked"`
	ResolvedAt   *time.Time   `json:"resolvedAt,omitempty"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
}
