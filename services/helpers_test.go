package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

// --- Mock Notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.OrderEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event models.OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// --- Mock SNS Publisher ---

type mockSNSPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (m *mockSNSPublisher) Publish(_ context.Context, topicArn string, _ []byte, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, topicArn)
	return m.err
}

// --- Fixture ---

type fixture struct {
	store      *memStore
	idem       *memIdempotency
	notifier   *recordingNotifier
	dispatcher *services.EventDispatcher
	inventory  services.InventoryService
	coupons    services.CouponService
	checkout   services.CheckoutService
	payments   services.PaymentService
	returns    services.ReturnService
	orders     services.OrderService
	userID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		store:    newMemStore(),
		idem:     newMemIdempotency(),
		notifier: &recordingNotifier{},
		userID:   uuid.New(),
	}
	f.dispatcher = services.NewEventDispatcher(f.notifier, time.Second, logger)
	f.inventory = services.NewInventoryService(f.store, 15*time.Minute, nil, logger)
	f.coupons = services.NewCouponService(f.store, nil, "", nil, logger)
	f.checkout = services.NewCheckoutService(f.store, f.inventory, f.coupons, f.idem, f.dispatcher, nil, services.DefaultPricing(), logger)
	f.payments = services.NewPaymentService(f.store, nil, nil, f.dispatcher, nil, "INR", logger)
	f.returns = services.NewReturnService(f.store, f.inventory, f.dispatcher, nil, logger)
	f.orders = services.NewOrderService(f.store, f.inventory, nil, f.dispatcher, nil, logger)
	return f
}

// place checks out qty of product to a fresh address and returns the order.
func (f *fixture) place(t *testing.T, productID uuid.UUID, qty int) *models.Order {
	t.Helper()
	addr := f.store.addAddress(f.userID)
	order, _, svcErr := f.checkout.Checkout(context.Background(), f.userID, &models.CheckoutRequest{
		ShippingAddressID: &addr.ID,
		Items:             []models.ItemRequest{{ProductID: productID, Quantity: qty}},
	}, "")
	require.Nil(t, svcErr)
	return order
}

func (f *fixture) placeWithCoupon(t *testing.T, productID uuid.UUID, qty int, code string) *models.Order {
	t.Helper()
	addr := f.store.addAddress(f.userID)
	order, _, svcErr := f.checkout.Checkout(context.Background(), f.userID, &models.CheckoutRequest{
		ShippingAddressID: &addr.ID,
		Items:             []models.ItemRequest{{ProductID: productID, Quantity: qty}},
		CouponCode:        code,
	}, "")
	require.Nil(t, svcErr)
	require.NotNil(t, order.CouponCode, "coupon %s should have applied at checkout", code)
	return order
}

func (f *fixture) authorize(t *testing.T, order *models.Order, txn string) {
	t.Helper()
	require.NoError(t, f.payments.HandlePaymentEvent(context.Background(), &models.PaymentEvent{
		Event:         "payment.captured",
		Outcome:       models.PaymentOutcomeAuthorized,
		Gateway:       services.GatewayRazorpay,
		OrderID:       order.ID,
		TransactionID: txn,
		Currency:      "INR",
	}))
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
