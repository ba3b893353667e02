package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

type Coupon struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code           string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	DiscountType   DiscountType   `gorm:"type:varchar(20);not null" json:"discountType"`
	DiscountValue  float64        `gorm:"type:numeric(12,2);not null" json:"discountValue"`
	MinOrderAmount float64        `gorm:"type:numeric(12,2);not null;default:0" json:"minOrderAmount"`
	MaxDiscount    *float64       `gorm:"type:numeric(12,2)" json:"maxDiscount,omitempty"`
	UsageLimit     *int           `json:"usageLimit,omitempty"`
	UsageCount     int            `gorm:"not null;default:0" json:"usageCount"`
	ValidFrom      time.Time      `gorm:"not null" json:"validFrom"`
	ValidUntil     time.Time      `gorm:"not null" json:"validUntil"`
	IsActive       bool           `gorm:"not null;default:true" json:"isActive"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// CouponRedemption records that a coupon was consumed by an order. The unique
// pair makes redeeming twice for the same order a no-op.
type CouponRedemption struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CouponID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_redemptions_coupon_order,priority:1" json:"couponId"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_redemptions_coupon_order,priority:2" json:"orderId"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
