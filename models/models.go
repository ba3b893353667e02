package models

// All returns every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Product{},
		&Address{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&InventoryLock{},
		&Payment{},
		&Coupon{},
		&CouponRedemption{},
		&Return{},
	}
}
