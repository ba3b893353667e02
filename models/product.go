package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is owned by the catalogue. This service only reads it and moves
// stock_quantity.
type Product struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Price         float64   `gorm:"type:numeric(12,2);not null" json:"price"`
	StockQuantity int       `gorm:"not null;default:0;check:chk_products_stock_non_negative,stock_quantity >= 0" json:"stockQuantity"`
	IsActive      bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// InventoryLock reserves stock for an unpaid order until ExpiresAt.
type InventoryLock struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"orderId"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index:idx_inventory_locks_product_expiry,priority:1" json:"productId"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	ExpiresAt time.Time `gorm:"not null;index:idx_inventory_locks_product_expiry,priority:2;index" json:"expiresAt"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// Availability is the reservable stock for one product.
type Availability struct {
	ProductID     uuid.UUID `json:"productId"`
	StockQuantity int       `json:"stockQuantity"`
	Locked        int       `json:"locked"`
	Available     int       `json:"available"`
}
