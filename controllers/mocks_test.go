package controllers_test

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aravind-gm/oranew/middleware"
	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/repository"
	"github.com/aravind-gm/oranew/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mock CheckoutService ---

type mockCheckoutService struct {
	checkoutFn func(ctx context.Context, userID uuid.UUID, req *models.CheckoutRequest, key string) (*models.Order, bool, *services.ServiceError)
}

func (m *mockCheckoutService) Checkout(ctx context.Context, userID uuid.UUID, req *models.CheckoutRequest, key string) (*models.Order, bool, *services.ServiceError) {
	return m.checkoutFn(ctx, userID, req, key)
}

// --- Mock PaymentService ---

type mockPaymentService struct {
	events   []*models.PaymentEvent
	handleFn func(ctx context.Context, ev *models.PaymentEvent) error
	intentFn func(ctx context.Context, userID, orderID uuid.UUID) (*models.Payment, *services.ServiceError)
}

func (m *mockPaymentService) HandlePaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	m.events = append(m.events, ev)
	if m.handleFn != nil {
		return m.handleFn(ctx, ev)
	}
	return nil
}

func (m *mockPaymentService) CreatePaymentIntent(ctx context.Context, userID, orderID uuid.UUID) (*models.Payment, *services.ServiceError) {
	return m.intentFn(ctx, userID, orderID)
}

func (m *mockPaymentService) GetPayment(context.Context, uuid.UUID, uuid.UUID, bool) (*models.Payment, *services.ServiceError) {
	return nil, nil
}

// --- Mock OrderService ---

type mockOrderService struct {
	listFn   func(ctx context.Context, userID uuid.UUID, isAdmin bool, page models.Page) ([]models.Order, int64, *services.ServiceError)
	getFn    func(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*models.Order, *services.ServiceError)
	cancelFn func(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, *services.ServiceError)
}

func (m *mockOrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*models.Order, *services.ServiceError) {
	return m.getFn(ctx, userID, orderID, isAdmin)
}
func (m *mockOrderService) ListOrders(ctx context.Context, userID uuid.UUID, isAdmin bool, page models.Page) ([]models.Order, int64, *services.ServiceError) {
	return m.listFn(ctx, userID, isAdmin, page)
}
func (m *mockOrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, *services.ServiceError) {
	return m.cancelFn(ctx, userID, orderID, reason)
}
func (m *mockOrderService) AdminCancelOrder(context.Context, uuid.UUID, string) (*models.Order, *services.ServiceError) {
	return nil, nil
}
func (m *mockOrderService) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, *services.ServiceError) {
	return &models.Order{ID: orderID, Status: status}, nil
}

// --- Mock ReturnService ---

type mockReturnService struct {
	refundFn func(ctx context.Context, req *models.RefundRequest) (*models.Return, *services.ServiceError)
}

func (m *mockReturnService) RequestReturn(_ context.Context, userID, orderID uuid.UUID, req *models.CreateReturnRequest) (*models.Return, *services.ServiceError) {
	return &models.Return{ID: uuid.New(), OrderID: orderID, UserID: userID, Reason: req.Reason, Status: models.ReturnStatusRequested}, nil
}
func (m *mockReturnService) ApproveReturn(_ context.Context, id uuid.UUID) (*models.Return, *services.ServiceError) {
	return &models.Return{ID: id, Status: models.ReturnStatusApproved}, nil
}
func (m *mockReturnService) RejectReturn(_ context.Context, id uuid.UUID) (*models.Return, *services.ServiceError) {
	return &models.Return{ID: id, Status: models.ReturnStatusRejected}, nil
}
func (m *mockReturnService) ProcessRefund(ctx context.Context, req *models.RefundRequest) (*models.Return, *services.ServiceError) {
	return m.refundFn(ctx, req)
}
func (m *mockReturnService) ListReturns(context.Context, models.ReturnStatus, models.Page) ([]models.Return, int64, *services.ServiceError) {
	return []models.Return{}, 0, nil
}

// --- Mock InventoryService ---

type mockInventoryService struct {
	adjusted int
}

func (m *mockInventoryService) LockInventory(context.Context, uuid.UUID, []models.ItemRequest) *services.ServiceError {
	return nil
}
func (m *mockInventoryService) ReleaseInventoryLocks(context.Context, uuid.UUID) (int64, *services.ServiceError) {
	return 0, nil
}
func (m *mockInventoryService) CleanupExpiredLocks(context.Context) (int64, *services.ServiceError) {
	return 4, nil
}
func (m *mockInventoryService) RestockInventory(context.Context, uuid.UUID) (bool, *services.ServiceError) {
	return false, nil
}
func (m *mockInventoryService) RestockInventoryTx(context.Context, repository.Store, uuid.UUID) (bool, error) {
	return false, nil
}
func (m *mockInventoryService) Availability(_ context.Context, productID uuid.UUID) (*models.Availability, *services.ServiceError) {
	return &models.Availability{ProductID: productID, StockQuantity: 5, Locked: 2, Available: 3}, nil
}
func (m *mockInventoryService) AdjustStock(_ context.Context, productID uuid.UUID, stock int) (*models.Availability, *services.ServiceError) {
	m.adjusted = stock
	return &models.Availability{ProductID: productID, StockQuantity: stock, Available: stock}, nil
}

// --- Helpers ---

func asUser(userID uuid.UUID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, userID.String())
		c.Set(middleware.RoleContextKey, role)
		c.Next()
	}
}
