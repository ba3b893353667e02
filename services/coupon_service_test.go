package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

func activeCoupon(code string, typ models.DiscountType, value float64) models.Coupon {
	return models.Coupon{
		Code:          code,
		DiscountType:  typ,
		DiscountValue: value,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestDiscountFor(t *testing.T) {
	tests := []struct {
		name   string
		coupon models.Coupon
		amount float64
		want   float64
	}{
		{"percentage", activeCoupon("P10", models.DiscountTypePercentage, 10), 1000, 100},
		{"percentage clamped by max", func() models.Coupon {
			c := activeCoupon("P50", models.DiscountTypePercentage, 50)
			c.MaxDiscount = floatPtr(200)
			return c
		}(), 1000, 200},
		{"fixed", activeCoupon("F150", models.DiscountTypeFixed, 150), 1000, 150},
		{"fixed never exceeds amount", activeCoupon("F500", models.DiscountTypeFixed, 500), 300, 300},
		{"rounded to paise", activeCoupon("P15", models.DiscountTypePercentage, 15), 333.33, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.coupon
			assert.InDelta(t, tt.want, services.DiscountFor(&c, tt.amount), 0.001)
		})
	}
}

func TestValidateCoupon(t *testing.T) {
	f := newFixture(t)
	f.store.addCoupon(activeCoupon("SAVE10", models.DiscountTypePercentage, 10))

	v, svcErr := f.coupons.Validate(context.Background(), "save10", 1000, f.userID)
	require.Nil(t, svcErr)
	assert.True(t, v.Valid)
	assert.Equal(t, "SAVE10", v.Code)
	assert.InDelta(t, 100, v.DiscountAmount, 0.001)
	assert.InDelta(t, 900, v.FinalAmount, 0.001)
}

func TestValidateCoupon_Rejections(t *testing.T) {
	f := newFixture(t)

	inactive := activeCoupon("OFF", models.DiscountTypeFixed, 50)
	inactive.IsActive = false
	f.store.addCoupon(inactive)

	future := activeCoupon("SOON", models.DiscountTypeFixed, 50)
	future.ValidFrom = time.Now().Add(time.Hour)
	f.store.addCoupon(future)

	expired := activeCoupon("OLD", models.DiscountTypeFixed, 50)
	expired.ValidUntil = time.Now().Add(-time.Minute)
	f.store.addCoupon(expired)

	minOrder := activeCoupon("BIG", models.DiscountTypeFixed, 50)
	minOrder.MinOrderAmount = 2000
	f.store.addCoupon(minOrder)

	usedUp := activeCoupon("GONE", models.DiscountTypeFixed, 50)
	usedUp.UsageLimit = intPtr(2)
	usedUp.UsageCount = 2
	f.store.addCoupon(usedUp)

	tests := []struct {
		code   string
		amount float64
		want   string
		status int
	}{
		{"MISSING", 1000, services.CodeCouponNotFound, 404},
		{"OFF", 1000, services.CodeCouponInactive, 400},
		{"SOON", 1000, services.CodeCouponNotStarted, 400},
		{"OLD", 1000, services.CodeCouponExpired, 400},
		{"BIG", 1000, services.CodeCouponMinOrderNotMet, 400},
		{"GONE", 1000, services.CodeCouponUsageLimit, 400},
		{"BIG", 0, services.CodeValidation, 400},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.want, func(t *testing.T) {
			_, svcErr := f.coupons.Validate(context.Background(), tt.code, tt.amount, f.userID)
			require.NotNil(t, svcErr)
			assert.Equal(t, tt.want, svcErr.Code)
			assert.Equal(t, tt.status, svcErr.StatusCode)
		})
	}
}

func TestRedeemCoupon_OncePerOrder(t *testing.T) {
	f := newFixture(t)
	p := f.store.addProduct(1000, 5)
	c := f.store.addCoupon(activeCoupon("SAVE10", models.DiscountTypePercentage, 10))
	order := f.placeWithCoupon(t, p.ID, 1, "SAVE10")

	res, svcErr := f.coupons.Redeem(context.Background(), "SAVE10", order.ID, f.userID)
	require.Nil(t, svcErr)
	assert.False(t, res.AlreadyRedeemed)
	assert.Equal(t, 1, f.store.coupon(c.ID).UsageCount)

	res, svcErr = f.coupons.Redeem(context.Background(), "SAVE10", order.ID, f.userID)
	require.Nil(t, svcErr)
	assert.True(t, res.AlreadyRedeemed)
	assert.Equal(t, 1, f.store.coupon(c.ID).UsageCount)
}

func TestRedeemCoupon_Rejections(t *testing.T) {
	f := newFixture(t)
	p := f.store.addProduct(1000, 5)
	limited := activeCoupon("ONCE", models.DiscountTypeFixed, 50)
	limited.UsageLimit = intPtr(1)
	c := f.store.addCoupon(limited)

	first := f.placeWithCoupon(t, p.ID, 1, "ONCE")
	second := f.placeWithCoupon(t, p.ID, 1, "ONCE")

	_, svcErr := f.coupons.Redeem(context.Background(), "ONCE", first.ID, uuid.New())
	require.NotNil(t, svcErr)
	assert.Equal(t, 403, svcErr.StatusCode)

	_, svcErr = f.coupons.Redeem(context.Background(), "ONCE", uuid.New(), f.userID)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.CodeOrderNotFound, svcErr.Code)

	_, svcErr = f.coupons.Redeem(context.Background(), "ONCE", first.ID, f.userID)
	require.Nil(t, svcErr)

	_, svcErr = f.coupons.Redeem(context.Background(), "ONCE", second.ID, f.userID)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.CodeCouponUsageLimit, svcErr.Code)
	assert.Equal(t, 1, f.store.coupon(c.ID).UsageCount)

	// the redemption row rolled back with the failed increment
	_, svcErr = f.coupons.Redeem(context.Background(), "ONCE", second.ID, f.userID)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.CodeCouponUsageLimit, svcErr.Code)
}

func TestRedeemCoupon_OnlyTheCouponOnTheOrder(t *testing.T) {
	f := newFixture(t)
	p := f.store.addProduct(1000, 5)
	save := f.store.addCoupon(activeCoupon("SAVE10", models.DiscountTypePercentage, 10))
	bigger := f.store.addCoupon(activeCoupon("BIGGER", models.DiscountTypeFixed, 500))

	plain := f.place(t, p.ID, 1)
	_, svcErr := f.coupons.Redeem(context.Background(), "SAVE10", plain.ID, f.userID)
	require.NotNil(t, svcErr, "no coupon was priced into the order")
	assert.Equal(t, services.CodeCouponNotApplied, svcErr.Code)
	assert.Equal(t, 400, svcErr.StatusCode)

	discounted := f.placeWithCoupon(t, p.ID, 1, "SAVE10")
	_, svcErr = f.coupons.Redeem(context.Background(), "BIGGER", discounted.ID, f.userID)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.CodeCouponNotApplied, svcErr.Code)
	assert.Equal(t, 0, f.store.coupon(bigger.ID).UsageCount)

	_, svcErr = f.coupons.Redeem(context.Background(), "save10", discounted.ID, f.userID)
	require.Nil(t, svcErr, "codes compare case-insensitively")
	assert.Equal(t, 1, f.store.coupon(save.ID).UsageCount)
}

func TestRedeemCoupon_ConcurrentRespectsLimit(t *testing.T) {
	f := newFixture(t)
	p := f.store.addProduct(1000, 20)
	limited := activeCoupon("FIRST3", models.DiscountTypeFixed, 50)
	limited.UsageLimit = intPtr(3)
	c := f.store.addCoupon(limited)

	orders := make([]*models.Order, 10)
	for i := range orders {
		orders[i] = f.placeWithCoupon(t, p.ID, 1, "FIRST3")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, o := range orders {
		wg.Add(1)
		go func(orderID uuid.UUID) {
			defer wg.Done()
			if _, svcErr := f.coupons.Redeem(context.Background(), "FIRST3", orderID, f.userID); svcErr == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(o.ID)
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	assert.Equal(t, 3, f.store.coupon(c.ID).UsageCount)
}

func TestRedeemCoupon_PublishesEvent(t *testing.T) {
	store := newMemStore()
	sns := &mockSNSPublisher{err: errors.New("throttled")}
	svc := services.NewCouponService(store, sns, "arn:aws:sns:ap-south-1:000000000000:coupon-events", nil, zap.NewNop())

	userID := uuid.New()
	store.addCoupon(activeCoupon("SAVE10", models.DiscountTypePercentage, 10))
	code := "SAVE10"
	order := store.putOrder(models.Order{UserID: userID, Status: models.OrderStatusPending, Subtotal: 1000, CouponCode: &code})

	_, svcErr := svc.Redeem(context.Background(), "SAVE10", order.ID, userID)
	require.Nil(t, svcErr, "publish failures are not surfaced")
	assert.Equal(t, []string{"arn:aws:sns:ap-south-1:000000000000:coupon-events"}, sns.published)
}

func TestCreateCoupon(t *testing.T) {
	f := newFixture(t)
	req := &models.CreateCouponRequest{
		Code:          "welcome",
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: 20,
		ValidFrom:     time.Now(),
		ValidUntil:    time.Now().Add(48 * time.Hour),
	}

	c, svcErr := f.coupons.CreateCoupon(context.Background(), req)
	require.Nil(t, svcErr)
	assert.Equal(t, "WELCOME", c.Code)
	assert.True(t, c.IsActive)

	_, svcErr = f.coupons.CreateCoupon(context.Background(), req)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.CodeCouponExists, svcErr.Code)

	bad := *req
	bad.Code = "TOOMUCH"
	bad.DiscountValue = 150
	_, svcErr = f.coupons.CreateCoupon(context.Background(), &bad)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.CodeValidation, svcErr.Code)

	require.Nil(t, f.coupons.DeactivateCoupon(context.Background(), c.ID))
	_, svcErr = f.coupons.Validate(context.Background(), "WELCOME", 500, f.userID)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.CodeCouponInactive, svcErr.Code)
}
