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

// InventoryService reserves stock for unpaid orders and moves stock when
// payments are confirmed or refunded.
type InventoryService interface {
	// LockInventory reserves every item for the order or nothing at all.
	LockInventory(ctx context.Context, orderID uuid.UUID, items []models.ItemRequest) *ServiceError
	ReleaseInventoryLocks(ctx context.Context, orderID uuid.UUID) (int64, *ServiceError)
	CleanupExpiredLocks(ctx context.Context) (int64, *ServiceError)
	// RestockInventory returns committed stock of the order exactly once and
	// reports whether this call did it.
	RestockInventory(ctx context.Context, orderID uuid.UUID) (bool, *ServiceError)
	// RestockInventoryTx is RestockInventory inside the caller's transaction.
	RestockInventoryTx(ctx context.Context, tx repository.Store, orderID uuid.UUID) (bool, error)
	Availability(ctx context.Context, productID uuid.UUID) (*models.Availability, *ServiceError)
	AdjustStock(ctx context.Context, productID uuid.UUID, stock int) (*models.Availability, *ServiceError)
}

type inventoryServiceImpl struct {
	store   repository.Store
	ttl     time.Duration
	metrics *BusinessMetrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewInventoryService(store repository.Store, ttl time.Duration, metrics *BusinessMetrics, logger *zap.Logger) InventoryService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &inventoryServiceImpl{
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// mergeItems folds repeated products into one line, keeping first-seen order.
func mergeItems(items []models.ItemRequest) ([]models.ItemRequest, *ServiceError) {
	merged := make([]models.ItemRequest, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			svcErr := badRequest(CodeInvalidQuantity, "Quantity must be at least 1")
			svcErr.Details = map[string]interface{}{"productId": it.ProductID}
			return nil, svcErr
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

func insufficientStock(productID uuid.UUID, requested, available int) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("Insufficient stock for product %s", productID),
		Details: map[string]interface{}{
			"productId": productID,
			"requested": requested,
			"available": available,
		},
	}
}

func productUnavailable(productID uuid.UUID) *ServiceError {
	svcErr := badRequest(CodeProductUnavailable, "Product is unavailable")
	svcErr.Details = map[string]interface{}{"productId": productID}
	return svcErr
}

func (s *inventoryServiceImpl) LockInventory(ctx context.Context, orderID uuid.UUID, items []models.ItemRequest) (svcErr *ServiceError) {
	ctx, span := startSpan(ctx, "inventory.lock", attribute.String("order.id", orderID.String()))
	defer func() { endSpan(span, svcErr) }()
	log := logger.WithTrace(ctx, s.logger)

	if len(items) == 0 {
		return badRequest(CodeEmptyCart, "No items to reserve")
	}
	merged, svcErr := mergeItems(items)
	if svcErr != nil {
		return svcErr
	}

	ids := make([]uuid.UUID, len(merged))
	for i, it := range merged {
		ids[i] = it.ProductID
	}

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		now := s.now()

		products, err := tx.Products().LockByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		locked, err := tx.Inventory().LockedQuantities(ctx, ids, now)
		if err != nil {
			return err
		}

		locks := make([]models.InventoryLock, 0, len(merged))
		for _, it := range merged {
			p, ok := byID[it.ProductID]
			if !ok || !p.IsActive {
				return productUnavailable(it.ProductID)
			}
			available := p.StockQuantity - locked[it.ProductID]
			if available < 0 {
				available = 0
			}
			if available < it.Quantity {
				return insufficientStock(it.ProductID, it.Quantity, available)
			}
			locks = append(locks, models.InventoryLock{
				OrderID:   orderID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				ExpiresAt: now.Add(s.ttl),
			})
		}
		return tx.Inventory().CreateLocks(ctx, locks)
	})
	if err != nil {
		if svcErr, ok := asServiceError(err); ok {
			log.Info("inventory lock rejected",
				zap.String("order_id", orderID.String()),
				zap.String("code", svcErr.Code),
			)
			return svcErr
		}
		return internalError(log, "Failed to lock inventory", err)
	}

	s.metrics.Add(awspkg.MetricInventoryReserved, len(merged))
	log.Info("inventory locked",
		zap.String("order_id", orderID.String()),
		zap.Int("lines", len(merged)),
		zap.Duration("ttl", s.ttl),
	)
	return nil
}

func (s *inventoryServiceImpl) ReleaseInventoryLocks(ctx context.Context, orderID uuid.UUID) (int64, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	n, err := s.store.Inventory().DeleteByOrder(ctx, orderID)
	if err != nil {
		return 0, internalError(log, "Failed to release inventory locks", err)
	}
	if n > 0 {
		s.metrics.Add(awspkg.MetricInventoryReleased, int(n))
		log.Info("inventory locks released", zap.String("order_id", orderID.String()), zap.Int64("count", n))
	}
	return n, nil
}

func (s *inventoryServiceImpl) CleanupExpiredLocks(ctx context.Context) (int64, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	n, err := s.store.Inventory().DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, internalError(log, "Failed to clean up expired locks", err)
	}
	if n > 0 {
		s.metrics.Add(awspkg.MetricLocksExpired, int(n))
		log.Info("expired inventory locks removed", zap.Int64("count", n))
	}
	return n, nil
}

func (s *inventoryServiceImpl) RestockInventory(ctx context.Context, orderID uuid.UUID) (bool, *ServiceError) {
	var restocked bool
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		restocked, err = s.RestockInventoryTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return false, internalError(logger.WithTrace(ctx, s.logger), "Failed to restock inventory", err)
	}
	return restocked, nil
}

func (s *inventoryServiceImpl) RestockInventoryTx(ctx context.Context, tx repository.Store, orderID uuid.UUID) (bool, error) {
	claimed, err := tx.Orders().MarkRestocked(ctx, orderID, s.now())
	if err != nil {
		return false, fmt.Errorf("claim restock: %w", err)
	}
	if !claimed {
		s.logger.Info("restock skipped, already restocked or never committed", zap.String("order_id", orderID.String()))
		return false, nil
	}

	order, err := tx.Orders().GetByID(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("load order for restock: %w", err)
	}
	for _, item := range order.Items {
		if err := tx.Products().IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return false, fmt.Errorf("restock product %s: %w", item.ProductID, err)
		}
	}

	s.metrics.Inc(awspkg.MetricInventoryRestock)
	s.logger.Info("inventory restocked", zap.String("order_id", orderID.String()), zap.Int("lines", len(order.Items)))
	return true, nil
}

func (s *inventoryServiceImpl) Availability(ctx context.Context, productID uuid.UUID) (*models.Availability, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	product, err := s.store.Products().GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeProductUnavailable, "Product not found")
		}
		return nil, internalError(log, "Failed to load product", err)
	}

	locked, err := s.store.Inventory().LockedQuantities(ctx, []uuid.UUID{productID}, s.now())
	if err != nil {
		return nil, internalError(log, "Failed to load inventory locks", err)
	}
	return availabilityOf(product, locked[productID]), nil
}

func (s *inventoryServiceImpl) AdjustStock(ctx context.Context, productID uuid.UUID, stock int) (*models.Availability, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	if stock < 0 {
		return nil, badRequest(CodeValidation, "Stock quantity cannot be negative")
	}
	if err := s.store.Products().SetStock(ctx, productID, stock); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeProductUnavailable, "Product not found")
		}
		return nil, internalError(log, "Failed to adjust stock", err)
	}
	log.Info("stock adjusted", zap.String("product_id", productID.String()), zap.Int("stock", stock))
	return s.Availability(ctx, productID)
}

func availabilityOf(p *models.Product, locked int) *models.Availability {
	available := p.StockQuantity - locked
	if available < 0 {
		available = 0
	}
	return &models.Availability{
		ProductID:     p.ID,
		StockQuantity: p.StockQuantity,
		Locked:        locked,
		Available:     available,
	}
}
