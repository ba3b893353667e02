package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/common/logger"
	"github.com/aravind-gm/oranew/models"
	awspkg "github.com/aravind-gm/oranew/pkg/aws"
	"github.com/aravind-gm/oranew/pkg/resilience"
	"github.com/aravind-gm/oranew/repository"
)

// OrderService reads orders and applies cancellations and fulfilment updates.
type OrderService interface {
	GetOrder(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*models.Order, *ServiceError)
	// ListOrders lists the caller's orders, or every order for admins.
	ListOrders(ctx context.Context, userID uuid.UUID, isAdmin bool, page models.Page) ([]models.Order, int64, *ServiceError)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, *ServiceError)
	// AdminCancelOrder also cancels paid orders, refunding and restocking them.
	AdminCancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, *ServiceError)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, *ServiceError)
}

type orderServiceImpl struct {
	store       repository.Store
	inventory   InventoryService
	reconnector resilience.Reconnector
	dispatcher  *EventDispatcher
	metrics     *BusinessMetrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewOrderService(
	store repository.Store,
	inventory InventoryService,
	reconnector resilience.Reconnector,
	dispatcher *EventDispatcher,
	metrics *BusinessMetrics,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		store:       store,
		inventory:   inventory,
		reconnector: reconnector,
		dispatcher:  dispatcher,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

var fulfilmentStatuses = map[models.OrderStatus]bool{
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
}

// reads is the store behind the reconnect path. With a reconnector it skips
// the backoff retrier, so a failing read costs two attempts, not two rounds.
func (s *orderServiceImpl) reads() repository.Store {
	if s.reconnector == nil {
		return s.store
	}
	return s.store.WithoutRetry()
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*models.Order, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	order, err := resilience.WithReconnect(ctx, s.reconnector, log, func(ctx context.Context) (*models.Order, error) {
		return s.reads().Orders().GetByID(ctx, orderID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeOrderNotFound, "Order not found")
		}
		return nil, internalError(log, "Failed to fetch order", err)
	}
	if !isAdmin && order.UserID != userID {
		return nil, notFoundError(CodeOrderNotFound, "Order not found")
	}
	return order, nil
}

type orderPage struct {
	orders []models.Order
	total  int64
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, userID uuid.UUID, isAdmin bool, page models.Page) ([]models.Order, int64, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	owner := userID
	if isAdmin {
		owner = uuid.Nil
	}
	res, err := resilience.WithReconnect(ctx, s.reconnector, log, func(ctx context.Context) (orderPage, error) {
		orders, total, err := s.reads().Orders().ListByUser(ctx, owner, page)
		return orderPage{orders: orders, total: total}, err
	})
	if err != nil {
		return nil, 0, internalError(log, "Failed to fetch orders", err)
	}
	return res.orders, res.total, nil
}

func (s *orderServiceImpl) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, *ServiceError) {
	return s.cancel(ctx, orderID, reason, func(order *models.Order) *ServiceError {
		if order.UserID != userID {
			return notFoundError(CodeOrderNotFound, "Order not found")
		}
		if order.Status == models.OrderStatusConfirmed || order.Status == models.OrderStatusProcessing {
			return badRequest(CodeOrderRequiresRefund, "Paid orders must be cancelled by support and refunded")
		}
		return nil
	})
}

func (s *orderServiceImpl) AdminCancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, *ServiceError) {
	return s.cancel(ctx, orderID, reason, nil)
}

// cancel moves an order to CANCELLED. Pending orders release their locks;
// paid orders are refunded and their committed stock returned.
func (s *orderServiceImpl) cancel(ctx context.Context, orderID uuid.UUID, reason string, guard func(*models.Order) *ServiceError) (*models.Order, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("order_id", orderID.String()))
	if reason == "" {
		reason = "cancelled by request"
	}

	var cancelled *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		cancelled = nil

		order, err := tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError(CodeOrderNotFound, "Order not found")
			}
			return err
		}
		if guard != nil {
			if svcErr := guard(order); svcErr != nil {
				return svcErr
			}
		}

		fields := map[string]interface{}{
			"status":        models.OrderStatusCancelled,
			"cancel_reason": reason,
		}
		switch order.Status {
		case models.OrderStatusPending:
			if _, err := tx.Inventory().DeleteByOrder(ctx, order.ID); err != nil {
				return fmt.Errorf("release locks: %w", err)
			}
		case models.OrderStatusConfirmed, models.OrderStatusProcessing:
			now := s.now()
			fields["payment_status"] = models.PaymentStatusRefunded
			if err := tx.Payments().UpdateByOrderID(ctx, order.ID, map[string]interface{}{
				"status":      models.PaymentStatusRefunded,
				"refunded_at": now,
			}); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("refund payment: %w", err)
			}
			if _, err := s.inventory.RestockInventoryTx(ctx, tx, order.ID); err != nil {
				return err
			}
			order.PaymentStatus = models.PaymentStatusRefunded
		case models.OrderStatusCancelled:
			return badRequest(CodeOrderNotCancellable, "Order is already cancelled")
		default:
			return badRequest(CodeOrderNotCancellable, fmt.Sprintf("Order in status %s cannot be cancelled", order.Status))
		}

		if err := tx.Orders().Update(ctx, order.ID, fields); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		order.Status = models.OrderStatusCancelled
		order.CancelReason = &reason
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, fromTxError(log, "Failed to cancel order", err)
	}

	s.metrics.Inc(awspkg.MetricOrdersCancelled)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(models.NewOrderEvent(models.OrderEventCancelled, cancelled))
	}
	log.Info("order cancelled", zap.String("reason", reason), zap.String("payment_status", string(cancelled.PaymentStatus)))
	return cancelled, nil
}

func (s *orderServiceImpl) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("order_id", orderID.String()))

	if !models.IsValidOrderStatus(status) {
		return nil, badRequest(CodeValidation, fmt.Sprintf("Unknown order status %q", status))
	}
	if !fulfilmentStatuses[status] {
		return nil, badRequest(CodeInvalidTransition, "Use the cancel or refund endpoints for this status")
	}

	var updated *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError(CodeOrderNotFound, "Order not found")
			}
			return err
		}
		if !models.CanTransitionOrder(order.Status, status) {
			return badRequest(CodeInvalidTransition, fmt.Sprintf("Order cannot move from %s to %s", order.Status, status))
		}
		if err := tx.Orders().Update(ctx, order.ID, map[string]interface{}{"status": status}); err != nil {
			return err
		}
		order.Status = status
		updated = order
		return nil
	})
	if err != nil {
		return nil, fromTxError(log, "Failed to update order status", err)
	}

	log.Info("order status updated", zap.String("status", string(status)))
	return updated, nil
}
