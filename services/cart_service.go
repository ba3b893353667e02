package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/common/logger"
	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/pkg/resilience"
	"github.com/aravind-gm/oranew/repository"
)

// CartService manages the caller's persisted cart, the default checkout source.
type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*models.CartView, *ServiceError)
	SetItem(ctx context.Context, userID uuid.UUID, req *models.CartItemRequest) (*models.CartView, *ServiceError)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartView, *ServiceError)
	ClearCart(ctx context.Context, userID uuid.UUID) *ServiceError
}

type cartServiceImpl struct {
	store    repository.Store
	fallback *resilience.Retrier
	logger   *zap.Logger
}

func NewCartService(store repository.Store, logger *zap.Logger) CartService {
	// The store already retries, so the availability badge gets one attempt.
	return &cartServiceImpl{
		store:    store,
		fallback: resilience.NewRetrier(resilience.Config{MaxAttempts: 1}, logger),
		logger:   logger,
	}
}

func (s *cartServiceImpl) GetCart(ctx context.Context, userID uuid.UUID) (*models.CartView, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	lines, err := s.store.Carts().ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError(log, "Failed to load cart", err)
	}
	view := &models.CartView{Items: []models.CartLine{}}
	if len(lines) == 0 {
		return view, nil
	}

	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.store.Products().GetByIDs(ctx, ids)
	if err != nil {
		return nil, internalError(log, "Failed to load cart products", err)
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	locked := resilience.WithFallback(ctx, s.fallback, "cart.availability", func(ctx context.Context) (map[uuid.UUID]int, error) {
		return s.store.Inventory().LockedQuantities(ctx, ids, time.Now())
	}, map[uuid.UUID]int{})

	var subtotal float64
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		lineTotal := roundMoney(p.Price * float64(l.Quantity))
		view.Items = append(view.Items, models.CartLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    l.Quantity,
			LineTotal:   lineTotal,
			Available:   p.IsActive && availabilityOf(&p, locked[p.ID]).Available >= l.Quantity,
		})
		subtotal += lineTotal
	}
	view.Subtotal = roundMoney(subtotal)
	return view, nil
}

func (s *cartServiceImpl) SetItem(ctx context.Context, userID uuid.UUID, req *models.CartItemRequest) (*models.CartView, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	if req.Quantity < 1 {
		return nil, badRequest(CodeInvalidQuantity, "Quantity must be at least 1")
	}
	product, err := s.store.Products().GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, productUnavailable(req.ProductID)
		}
		return nil, internalError(log, "Failed to load product", err)
	}
	if !product.IsActive {
		return nil, productUnavailable(req.ProductID)
	}

	if err := s.store.Carts().Upsert(ctx, &models.CartItem{
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}); err != nil {
		return nil, internalError(log, "Failed to update cart", err)
	}
	return s.GetCart(ctx, userID)
}

func (s *cartServiceImpl) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartView, *ServiceError) {
	n, err := s.store.Carts().Remove(ctx, userID, productID)
	if err != nil {
		return nil, internalError(logger.WithTrace(ctx, s.logger), "Failed to update cart", err)
	}
	if n == 0 {
		return nil, notFoundError(CodeCartItemNotFound, "Item is not in the cart")
	}
	return s.GetCart(ctx, userID)
}

func (s *cartServiceImpl) ClearCart(ctx context.Context, userID uuid.UUID) *ServiceError {
	if _, err := s.store.Carts().Clear(ctx, userID); err != nil {
		return internalError(logger.WithTrace(ctx, s.logger), "Failed to clear cart", err)
	}
	return nil
}
