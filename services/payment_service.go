package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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

const paymentMarkerTTL = 24 * time.Hour

// PaymentService drives orders through payment confirmation.
type PaymentService interface {
	// HandlePaymentEvent applies a verified gateway event. Replays of an
	// event that was already applied change nothing.
	HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error
	CreatePaymentIntent(ctx context.Context, userID, orderID uuid.UUID) (*models.Payment, *ServiceError)
	GetPayment(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*models.Payment, *ServiceError)
}

type paymentServiceImpl struct {
	store      repository.Store
	gateway    PaymentGateway
	markers    repository.IdempotencyStore
	dispatcher *EventDispatcher
	metrics    *BusinessMetrics
	currency   string
	logger     *zap.Logger
	now        func() time.Time
}

func NewPaymentService(
	store repository.Store,
	gateway PaymentGateway,
	markers repository.IdempotencyStore,
	dispatcher *EventDispatcher,
	metrics *BusinessMetrics,
	currency string,
	logger *zap.Logger,
) PaymentService {
	if markers == nil {
		markers = repository.NoopIdempotencyStore{}
	}
	if currency == "" {
		currency = "INR"
	}
	return &paymentServiceImpl{
		store:      store,
		gateway:    gateway,
		markers:    markers,
		dispatcher: dispatcher,
		metrics:    metrics,
		currency:   currency,
		logger:     logger,
		now:        time.Now,
	}
}

func paymentMarkerKey(event *models.PaymentEvent) string {
	return fmt.Sprintf("payment:event:%s:%s", event.Event, event.TransactionID)
}

func (s *paymentServiceImpl) HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) (err error) {
	ctx, span := startSpan(ctx, "payment.handle_event",
		attribute.String("payment.event", event.Event),
		attribute.String("order.id", event.OrderID.String()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("event", event.Event),
		zap.String("order_id", event.OrderID.String()),
		zap.String("transaction_id", event.TransactionID),
	)

	if event.TransactionID != "" {
		seen, mErr := s.markers.Get(ctx, paymentMarkerKey(event))
		if mErr != nil {
			log.Warn("payment marker lookup failed", zap.Error(mErr))
		} else if seen != "" {
			log.Info("payment event already processed")
			return nil
		}
	}

	switch event.Outcome {
	case models.PaymentOutcomeAuthorized:
		err = s.handleAuthorized(ctx, log, event)
	case models.PaymentOutcomeFailed:
		err = s.handleFailed(ctx, log, event)
	default:
		return fmt.Errorf("%w: outcome %q", ErrUnhandledEvent, event.Outcome)
	}
	if err != nil {
		return err
	}

	if event.TransactionID != "" {
		if mErr := s.markers.Set(ctx, paymentMarkerKey(event), s.now().UTC().Format(time.RFC3339), paymentMarkerTTL); mErr != nil {
			log.Warn("failed to store payment marker", zap.Error(mErr))
		}
	}
	return nil
}

func (s *paymentServiceImpl) handleAuthorized(ctx context.Context, log *zap.Logger, event *models.PaymentEvent) error {
	var confirmed *models.Order

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		confirmed = nil

		order, err := tx.Orders().GetByIDForUpdate(ctx, event.OrderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if order.PaymentStatus == models.PaymentStatusConfirmed {
			log.Info("payment already confirmed")
			return nil
		}
		if !models.CanTransitionOrder(order.Status, models.OrderStatusConfirmed) ||
			!models.CanTransitionPayment(order.PaymentStatus, models.PaymentStatusConfirmed) {
			log.Warn("payment authorized for order that cannot be confirmed",
				zap.String("status", string(order.Status)),
				zap.String("payment_status", string(order.PaymentStatus)),
			)
			return nil
		}
		if event.Amount > 0 && event.Amount != toPaise(order.TotalAmount) {
			log.Error("payment amount does not match order total",
				zap.Int64("amount", event.Amount),
				zap.Float64("order_total", order.TotalAmount),
			)
			return nil
		}

		now := s.now()
		if err := tx.Payments().Upsert(ctx, &models.Payment{
			OrderID:        order.ID,
			UserID:         order.UserID,
			Status:         models.PaymentStatusConfirmed,
			Gateway:        event.Gateway,
			TransactionID:  optionalString(event.TransactionID),
			GatewayOrderID: optionalString(event.GatewayOrderID),
			Amount:         order.TotalAmount,
			Currency:       currencyOr(event.Currency, s.currency),
			ConfirmedAt:    &now,
		}); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}

		if err := tx.Orders().Update(ctx, order.ID, map[string]interface{}{
			"status":             models.OrderStatusConfirmed,
			"payment_status":     models.PaymentStatusConfirmed,
			"stock_committed_at": now,
		}); err != nil {
			return fmt.Errorf("confirm order: %w", err)
		}

		if err := commitStock(ctx, tx, order, now); err != nil {
			return err
		}

		if _, err := tx.Inventory().DeleteByOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("release locks: %w", err)
		}
		if _, err := tx.Carts().Clear(ctx, order.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		order.Status = models.OrderStatusConfirmed
		order.PaymentStatus = models.PaymentStatusConfirmed
		order.StockCommittedAt = &now
		confirmed = order
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			log.Error("payment authorized but stock is gone, order left pending", zap.Error(err))
		}
		return err
	}
	if confirmed == nil {
		return nil
	}

	s.metrics.Inc(awspkg.MetricPaymentSucceeded)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(models.NewOrderEvent(models.OrderEventConfirmed, confirmed))
	}
	log.Info("order confirmed", zap.Float64("total", confirmed.TotalAmount))
	return nil
}

// commitStock turns the order's reservation into a real decrement. The
// products stay row-locked until commit, and units held by live locks of
// other orders are never taken, whether or not this order's own locks have
// expired.
func commitStock(ctx context.Context, tx repository.Store, order *models.Order, now time.Time) error {
	need := make(map[uuid.UUID]int, len(order.Items))
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		if _, seen := need[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		need[item.ProductID] += item.Quantity
	}

	products, err := tx.Products().LockByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	stock := make(map[uuid.UUID]int, len(products))
	for _, p := range products {
		stock[p.ID] = p.StockQuantity
	}

	heldByOthers, err := tx.Inventory().LockedByOthers(ctx, ids, order.ID, now)
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}

	for _, id := range ids {
		onHand, ok := stock[id]
		if !ok || onHand-heldByOthers[id] < need[id] {
			return fmt.Errorf("commit stock for product %s: %w", id, repository.ErrInsufficientStock)
		}
		if err := tx.Products().DecrementStock(ctx, id, need[id]); err != nil {
			return fmt.Errorf("commit stock for product %s: %w", id, err)
		}
	}
	return nil
}

func (s *paymentServiceImpl) handleFailed(ctx context.Context, log *zap.Logger, event *models.PaymentEvent) error {
	var cancelled *models.Order

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		cancelled = nil

		order, err := tx.Orders().GetByIDForUpdate(ctx, event.OrderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		switch {
		case order.PaymentStatus == models.PaymentStatusFailed || order.Status == models.OrderStatusCancelled:
			log.Info("payment failure already applied")
			return nil
		case order.PaymentStatus != models.PaymentStatusPending || order.Status != models.OrderStatusPending:
			log.Warn("ignoring payment failure for settled order",
				zap.String("status", string(order.Status)),
				zap.String("payment_status", string(order.PaymentStatus)),
			)
			return nil
		}

		now := s.now()
		reason := "payment failed"
		if err := tx.Payments().Upsert(ctx, &models.Payment{
			OrderID:        order.ID,
			UserID:         order.UserID,
			Status:         models.PaymentStatusFailed,
			Gateway:        event.Gateway,
			TransactionID:  optionalString(event.TransactionID),
			GatewayOrderID: optionalString(event.GatewayOrderID),
			Amount:         order.TotalAmount,
			Currency:       currencyOr(event.Currency, s.currency),
			FailedAt:       &now,
		}); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}

		if err := tx.Orders().Update(ctx, order.ID, map[string]interface{}{
			"status":         models.OrderStatusCancelled,
			"payment_status": models.PaymentStatusFailed,
			"cancel_reason":  reason,
		}); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if _, err := tx.Inventory().DeleteByOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("release locks: %w", err)
		}

		order.Status = models.OrderStatusCancelled
		order.PaymentStatus = models.PaymentStatusFailed
		order.CancelReason = &reason
		cancelled = order
		return nil
	})
	if err != nil {
		return err
	}
	if cancelled == nil {
		return nil
	}

	s.metrics.Inc(awspkg.MetricPaymentFailed)
	s.metrics.Inc(awspkg.MetricOrdersCancelled)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(models.NewOrderEvent(models.OrderEventCancelled, cancelled))
	}
	log.Info("order cancelled after payment failure", zap.String("reason", event.Reason))
	return nil
}

func (s *paymentServiceImpl) CreatePaymentIntent(ctx context.Context, userID, orderID uuid.UUID) (payment *models.Payment, svcErr *ServiceError) {
	ctx, span := startSpan(ctx, "payment.create_intent", attribute.String("order.id", orderID.String()))
	defer func() { endSpan(span, svcErr) }()
	log := logger.WithTrace(ctx, s.logger).With(zap.String("order_id", orderID.String()))

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeOrderNotFound, "Order not found")
		}
		return nil, internalError(log, "Failed to load order", err)
	}
	if order.UserID != userID {
		return nil, notFoundError(CodeOrderNotFound, "Order not found")
	}
	if order.Status != models.OrderStatusPending || order.PaymentStatus != models.PaymentStatusPending {
		return nil, badRequest(CodeOrderNotPayable, "Order is not awaiting payment")
	}

	existing, err := s.store.Payments().GetByOrderID(ctx, orderID)
	switch {
	case err == nil && existing.Status == models.PaymentStatusPending && existing.ClientSecret != nil:
		return existing, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, internalError(log, "Failed to load payment", err)
	}

	if s.gateway == nil {
		return nil, newError(http.StatusServiceUnavailable, CodePaymentGateway, "Payment gateway is not configured")
	}
	intent, err := s.gateway.CreatePaymentIntent(ctx, order.ID, toPaise(order.TotalAmount), strings.ToLower(s.currency))
	if err != nil {
		log.Error("payment gateway rejected intent", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Code: CodePaymentGateway, Message: "Payment gateway error", Err: err}
	}

	payment = &models.Payment{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         models.PaymentStatusPending,
		Gateway:        GatewayStripe,
		GatewayOrderID: optionalString(intent.ID),
		ClientSecret:   optionalString(intent.ClientSecret),
		Amount:         order.TotalAmount,
		Currency:       s.currency,
	}
	if err := s.store.Payments().Upsert(ctx, payment); err != nil {
		return nil, internalError(log, "Failed to save payment", err)
	}

	log.Info("payment intent created", zap.String("intent_id", intent.ID))
	return payment, nil
}

func (s *paymentServiceImpl) GetPayment(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*models.Payment, *ServiceError) {
	payment, err := s.store.Payments().GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeOrderNotFound, "Payment not found")
		}
		return nil, internalError(logger.WithTrace(ctx, s.logger), "Failed to load payment", err)
	}
	if !isAdmin && payment.UserID != userID {
		return nil, notFoundError(CodeOrderNotFound, "Payment not found")
	}
	return payment, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func currencyOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return strings.ToUpper(v)
}
