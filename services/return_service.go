package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/common/logger"
	"github.com/aravind-gm/oranew/models"
	awspkg "github.com/aravind-gm/oranew/pkg/aws"
	"github.com/aravind-gm/oranew/repository"
)

// ReturnService handles customer returns and the refunds that settle them.
type ReturnService interface {
	RequestReturn(ctx context.Context, userID, orderID uuid.UUID, req *models.CreateReturnRequest) (*models.Return, *ServiceError)
	ApproveReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, *ServiceError)
	RejectReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, *ServiceError)
	// ProcessRefund refunds an approved return and restocks its order. A
	// return that is already refunded is returned unchanged.
	ProcessRefund(ctx context.Context, req *models.RefundRequest) (*models.Return, *ServiceError)
	ListReturns(ctx context.Context, status models.ReturnStatus, page models.Page) ([]models.Return, int64, *ServiceError)
}

type returnServiceImpl struct {
	store      repository.Store
	inventory  InventoryService
	dispatcher *EventDispatcher
	metrics    *BusinessMetrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewReturnService(
	store repository.Store,
	inventory InventoryService,
	dispatcher *EventDispatcher,
	metrics *BusinessMetrics,
	logger *zap.Logger,
) ReturnService {
	return &returnServiceImpl{
		store:      store,
		inventory:  inventory,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *returnServiceImpl) RequestReturn(ctx context.Context, userID, orderID uuid.UUID, req *models.CreateReturnRequest) (*models.Return, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("order_id", orderID.String()))

	var created *models.Return
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError(CodeOrderNotFound, "Order not found")
			}
			return err
		}
		if order.UserID != userID {
			return notFoundError(CodeOrderNotFound, "Order not found")
		}
		if order.Status != models.OrderStatusDelivered {
			return badRequest(CodeReturnNotAllowed, "Only delivered orders can be returned")
		}

		if _, err := tx.Returns().FindOpenByOrder(ctx, orderID); err == nil {
			return newError(http.StatusConflict, CodeReturnExists, "A return already exists for this order")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		ret := &models.Return{
			OrderID:     orderID,
			UserID:      userID,
			Reason:      req.Reason,
			Description: req.Description,
			Status:      models.ReturnStatusRequested,
		}
		if err := tx.Returns().Create(ctx, ret); err != nil {
			return err
		}
		created = ret
		return nil
	})
	if err != nil {
		return nil, fromTxError(log, "Failed to request return", err)
	}

	log.Info("return requested", zap.String("return_id", created.ID.String()))
	return created, nil
}

func (s *returnServiceImpl) ApproveReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, *ServiceError) {
	return s.resolve(ctx, returnID, models.ReturnStatusApproved)
}

func (s *returnServiceImpl) RejectReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, *ServiceError) {
	return s.resolve(ctx, returnID, models.ReturnStatusRejected)
}

func (s *returnServiceImpl) resolve(ctx context.Context, returnID uuid.UUID, to models.ReturnStatus) (*models.Return, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("return_id", returnID.String()))

	var updated *models.Return
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		ret, err := tx.Returns().GetByIDForUpdate(ctx, returnID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError(CodeReturnNotFound, "Return not found")
			}
			return err
		}
		if !models.CanTransitionReturn(ret.Status, to) {
			return badRequest(CodeInvalidTransition, fmt.Sprintf("Return cannot move from %s to %s", ret.Status, to))
		}

		fields := map[string]interface{}{"status": to}
		if to == models.ReturnStatusRejected {
			now := s.now()
			fields["resolved_at"] = now
			ret.ResolvedAt = &now
		}
		if err := tx.Returns().Update(ctx, ret.ID, fields); err != nil {
			return err
		}
		ret.Status = to
		updated = ret
		return nil
	})
	if err != nil {
		return nil, fromTxError(log, "Failed to update return", err)
	}

	log.Info("return resolved", zap.String("status", string(to)))
	return updated, nil
}

func (s *returnServiceImpl) ProcessRefund(ctx context.Context, req *models.RefundRequest) (result *models.Return, svcErr *ServiceError) {
	ctx, span := startSpan(ctx, "return.refund", attribute.String("return.id", req.ReturnID.String()))
	defer func() { endSpan(span, svcErr) }()
	log := logger.WithTrace(ctx, s.logger).With(zap.String("return_id", req.ReturnID.String()))

	var refunded *models.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		refunded = nil

		ret, err := tx.Returns().GetByIDForUpdate(ctx, req.ReturnID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError(CodeReturnNotFound, "Return not found")
			}
			return err
		}
		if ret.Status == models.ReturnStatusRefunded {
			log.Info("return already refunded")
			result = ret
			return nil
		}
		if ret.Status != models.ReturnStatusApproved {
			return badRequest(CodeReturnNotApproved, "Return must be approved before refunding")
		}

		order, err := tx.Orders().GetByIDForUpdate(ctx, ret.OrderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		amount := roundMoney(req.RefundAmount)
		if amount <= 0 || amount > order.TotalAmount {
			svcErr := badRequest(CodeInvalidRefundAmount, "Refund amount must be greater than 0 and at most the order total")
			svcErr.Details = map[string]interface{}{"orderTotal": order.TotalAmount}
			return svcErr
		}
		if !models.CanTransitionOrder(order.Status, models.OrderStatusRefunded) {
			return badRequest(CodeInvalidTransition, fmt.Sprintf("Order in status %s cannot be refunded", order.Status))
		}

		now := s.now()
		if err := tx.Payments().UpdateByOrderID(ctx, order.ID, map[string]interface{}{
			"status":      models.PaymentStatusRefunded,
			"refunded_at": now,
		}); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("refund payment: %w", err)
		}
		if err := tx.Orders().Update(ctx, order.ID, map[string]interface{}{
			"status":         models.OrderStatusRefunded,
			"payment_status": models.PaymentStatusRefunded,
		}); err != nil {
			return fmt.Errorf("refund order: %w", err)
		}

		restocked, err := s.inventory.RestockInventoryTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		if err := tx.Returns().Update(ctx, ret.ID, map[string]interface{}{
			"status":        models.ReturnStatusRefunded,
			"refund_amount": amount,
			"restocked":     restocked,
			"resolved_at":   now,
		}); err != nil {
			return fmt.Errorf("update return: %w", err)
		}

		ret.Status = models.ReturnStatusRefunded
		ret.RefundAmount = &amount
		ret.Restocked = restocked
		ret.ResolvedAt = &now
		result = ret

		order.Status = models.OrderStatusRefunded
		order.PaymentStatus = models.PaymentStatusRefunded
		refunded = order
		return nil
	})
	if err != nil {
		return nil, fromTxError(log, "Failed to process refund", err)
	}

	if refunded != nil {
		s.metrics.Inc(awspkg.MetricRefundsProcessed)
		if s.dispatcher != nil {
			s.dispatcher.Dispatch(models.NewOrderEvent(models.OrderEventRefunded, refunded))
		}
		log.Info("refund processed",
			zap.String("order_id", refunded.ID.String()),
			zap.Float64("amount", *result.RefundAmount),
			zap.Bool("restocked", result.Restocked),
		)
	}
	return result, nil
}

func (s *returnServiceImpl) ListReturns(ctx context.Context, status models.ReturnStatus, page models.Page) ([]models.Return, int64, *ServiceError) {
	returns, total, err := s.store.Returns().List(ctx, status, page)
	if err != nil {
		return nil, 0, internalError(logger.WithTrace(ctx, s.logger), "Failed to list returns", err)
	}
	return returns, total, nil
}
