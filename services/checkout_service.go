package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/common/logger"
	"github.com/aravind-gm/oranew/models"
	awspkg "github.com/aravind-gm/oranew/pkg/aws"
	"github.com/aravind-gm/oranew/repository"
)

const idempotencyTTL = 24 * time.Hour

// Pricing holds the tax and shipping rules applied at checkout.
type Pricing struct {
	GSTRate               float64
	FreeShippingThreshold float64
	FlatShippingFee       float64
}

func DefaultPricing() Pricing {
	return Pricing{GSTRate: 0.18, FreeShippingThreshold: 999, FlatShippingFee: 99}
}

type Totals struct {
	Subtotal float64
	Discount float64
	GST      float64
	Shipping float64
	Total    float64
}

// Quote prices an order. GST is charged on the subtotal before discount and
// shipping is free from the threshold upwards.
func (p Pricing) Quote(subtotal, discount float64) Totals {
	subtotal = roundMoney(subtotal)
	discount = roundMoney(discount)
	gst := roundMoney(subtotal * p.GSTRate)

	shipping := p.FlatShippingFee
	if subtotal >= p.FreeShippingThreshold {
		shipping = 0
	}
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		GST:      gst,
		Shipping: shipping,
		Total:    roundMoney(subtotal - discount + gst + shipping),
	}
}

// CheckoutService turns a cart into a pending order with reserved stock.
type CheckoutService interface {
	// Checkout creates the order and reserves its stock. replayed is true
	// when idempotencyKey matched an earlier checkout and that order is
	// returned instead.
	Checkout(ctx context.Context, userID uuid.UUID, req *models.CheckoutRequest, idempotencyKey string) (order *models.Order, replayed bool, svcErr *ServiceError)
}

type checkoutServiceImpl struct {
	store      repository.Store
	inventory  InventoryService
	coupons    CouponService
	idem       repository.IdempotencyStore
	dispatcher *EventDispatcher
	metrics    *BusinessMetrics
	pricing    Pricing
	logger     *zap.Logger
	now        func() time.Time
}

func NewCheckoutService(
	store repository.Store,
	inventory InventoryService,
	coupons CouponService,
	idem repository.IdempotencyStore,
	dispatcher *EventDispatcher,
	metrics *BusinessMetrics,
	pricing Pricing,
	logger *zap.Logger,
) CheckoutService {
	if idem == nil {
		idem = repository.NoopIdempotencyStore{}
	}
	return &checkoutServiceImpl{
		store:      store,
		inventory:  inventory,
		coupons:    coupons,
		idem:       idem,
		dispatcher: dispatcher,
		metrics:    metrics,
		pricing:    pricing,
		logger:     logger,
		now:        time.Now,
	}
}

func checkoutIdempotencyKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("checkout:idem:%s:%s", userID, key)
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("ORD-%d-%s", now.Unix(), strings.ToUpper(suffix))
}

func (s *checkoutServiceImpl) Checkout(ctx context.Context, userID uuid.UUID, req *models.CheckoutRequest, idempotencyKey string) (order *models.Order, replayed bool, svcErr *ServiceError) {
	ctx, span := startSpan(ctx, "checkout", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, svcErr) }()
	log := logger.WithTrace(ctx, s.logger).With(zap.String("user_id", userID.String()))

	if idempotencyKey != "" {
		if prior := s.replay(ctx, log, userID, idempotencyKey); prior != nil {
			return prior, true, nil
		}
	}

	if req.ShippingAddress == nil && req.ShippingAddressID == nil {
		return nil, false, badRequest(CodeAddressRequired, "A shipping address is required")
	}

	items, svcErr := s.cartItems(ctx, log, userID, req.Items)
	if svcErr != nil {
		return nil, false, svcErr
	}

	orderItems, subtotal, svcErr := s.priceItems(ctx, log, items)
	if svcErr != nil {
		return nil, false, svcErr
	}

	shippingID, billingID, svcErr := s.resolveAddresses(ctx, log, userID, req)
	if svcErr != nil {
		return nil, false, svcErr
	}

	var discount float64
	var couponCode *string
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		validation, cErr := s.coupons.Validate(ctx, code, subtotal, userID)
		if cErr != nil {
			log.Info("coupon not applied",
				zap.String("coupon", code),
				zap.String("code", cErr.Code),
				zap.String("reason", cErr.Message),
			)
		} else {
			discount = validation.DiscountAmount
			couponCode = &validation.Code
		}
	}

	totals := s.pricing.Quote(subtotal, discount)
	now := s.now()
	order = &models.Order{
		ID:                uuid.New(),
		OrderNumber:       newOrderNumber(now),
		UserID:            userID,
		Subtotal:          totals.Subtotal,
		DiscountAmount:    totals.Discount,
		GSTAmount:         totals.GST,
		ShippingFee:       totals.Shipping,
		TotalAmount:       totals.Total,
		CouponCode:        couponCode,
		ShippingAddressID: shippingID,
		BillingAddressID:  billingID,
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusPending,
		Items:             orderItems,
	}
	if err := s.store.Orders().Create(ctx, order); err != nil {
		return nil, false, internalError(log, "Failed to create order", err)
	}

	if lockErr := s.inventory.LockInventory(ctx, order.ID, items); lockErr != nil {
		s.compensate(ctx, log, order.ID)
		return nil, false, lockErr
	}

	if idempotencyKey != "" {
		if err := s.idem.Set(ctx, checkoutIdempotencyKey(userID, idempotencyKey), order.ID.String(), idempotencyTTL); err != nil {
			log.Warn("failed to store idempotency key", zap.Error(err))
		}
	}

	s.metrics.Inc(awspkg.MetricOrdersCreated)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(models.NewOrderEvent(models.OrderEventPlaced, order))
	}

	log.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Float64("total", order.TotalAmount),
	)
	return order, false, nil
}

// replay returns the order created by an earlier checkout with the same key.
func (s *checkoutServiceImpl) replay(ctx context.Context, log *zap.Logger, userID uuid.UUID, key string) *models.Order {
	cached, err := s.idem.Get(ctx, checkoutIdempotencyKey(userID, key))
	if err != nil {
		log.Warn("idempotency lookup failed", zap.Error(err))
		return nil
	}
	if cached == "" {
		return nil
	}
	orderID, err := uuid.Parse(cached)
	if err != nil {
		return nil
	}
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil || order.UserID != userID {
		return nil
	}
	log.Info("checkout replayed", zap.String("order_id", order.ID.String()))
	return order
}

func (s *checkoutServiceImpl) cartItems(ctx context.Context, log *zap.Logger, userID uuid.UUID, requested []models.ItemRequest) ([]models.ItemRequest, *ServiceError) {
	items := requested
	if len(items) == 0 {
		cart, err := s.store.Carts().ListByUser(ctx, userID)
		if err != nil {
			return nil, internalError(log, "Failed to load cart", err)
		}
		items = make([]models.ItemRequest, 0, len(cart))
		for _, line := range cart {
			items = append(items, models.ItemRequest{ProductID: line.ProductID, Quantity: line.Quantity})
		}
	}
	if len(items) == 0 {
		return nil, badRequest(CodeEmptyCart, "Cart is empty")
	}
	return mergeItems(items)
}

// priceItems snapshots name and price of the live products.
func (s *checkoutServiceImpl) priceItems(ctx context.Context, log *zap.Logger, items []models.ItemRequest) ([]models.OrderItem, float64, *ServiceError) {
	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := s.store.Products().GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, internalError(log, "Failed to load products", err)
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	orderItems := make([]models.OrderItem, 0, len(items))
	var subtotal float64
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			return nil, 0, productUnavailable(it.ProductID)
		}
		line := roundMoney(p.Price * float64(it.Quantity))
		orderItems = append(orderItems, models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
			TotalPrice:  line,
		})
		subtotal += line
	}
	return orderItems, roundMoney(subtotal), nil
}

func (s *checkoutServiceImpl) resolveAddresses(ctx context.Context, log *zap.Logger, userID uuid.UUID, req *models.CheckoutRequest) (uuid.UUID, uuid.UUID, *ServiceError) {
	var shippingID uuid.UUID
	if in := req.ShippingAddress; in != nil {
		addr := &models.Address{
			UserID:  userID,
			Street:  in.Street,
			City:    in.City,
			State:   in.State,
			ZipCode: in.ZipCode,
			Country: in.Country,
		}
		if err := s.store.Addresses().Create(ctx, addr); err != nil {
			return uuid.Nil, uuid.Nil, internalError(log, "Failed to save address", err)
		}
		shippingID = addr.ID
	} else {
		if svcErr := s.ownAddress(ctx, log, userID, *req.ShippingAddressID); svcErr != nil {
			return uuid.Nil, uuid.Nil, svcErr
		}
		shippingID = *req.ShippingAddressID
	}

	billingID := shippingID
	if req.BillingAddressID != nil && *req.BillingAddressID != shippingID {
		if svcErr := s.ownAddress(ctx, log, userID, *req.BillingAddressID); svcErr != nil {
			return uuid.Nil, uuid.Nil, svcErr
		}
		billingID = *req.BillingAddressID
	}
	return shippingID, billingID, nil
}

func (s *checkoutServiceImpl) ownAddress(ctx context.Context, log *zap.Logger, userID, addressID uuid.UUID) *ServiceError {
	addr, err := s.store.Addresses().GetByID(ctx, addressID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError(CodeAddressNotFound, "Address not found")
		}
		return internalError(log, "Failed to load address", err)
	}
	if addr.UserID != userID {
		return notFoundError(CodeAddressNotFound, "Address not found")
	}
	return nil
}

// compensate removes an order whose stock could not be reserved. It runs
// even when the request context is already cancelled.
func (s *checkoutServiceImpl) compensate(ctx context.Context, log *zap.Logger, orderID uuid.UUID) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.store.Orders().Delete(cctx, orderID); err != nil {
		log.Error("failed to delete order after inventory lock failure",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return
	}
	log.Info("order removed after inventory lock failure", zap.String("order_id", orderID.String()))
}
