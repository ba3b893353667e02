package services

import (
	"context"
	"encoding/json"
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

// CouponService validates and redeems discount coupons.
type CouponService interface {
	// Validate checks the coupon against an order amount without consuming a use.
	Validate(ctx context.Context, code string, orderAmount float64, userID uuid.UUID) (*models.CouponValidation, *ServiceError)
	// Redeem consumes one use of the coupon for the order. Redeeming again
	// for the same order succeeds without consuming another use.
	Redeem(ctx context.Context, code string, orderID, userID uuid.UUID) (*RedeemResult, *ServiceError)
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, *ServiceError)
	GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, *ServiceError)
	ListCoupons(ctx context.Context, page models.Page) ([]models.Coupon, int64, *ServiceError)
	DeactivateCoupon(ctx context.Context, id uuid.UUID) *ServiceError
}

type RedeemResult struct {
	CouponID        uuid.UUID `json:"couponId"`
	Code            string    `json:"code"`
	OrderID         uuid.UUID `json:"orderId"`
	AlreadyRedeemed bool      `json:"alreadyRedeemed"`
}

type couponServiceImpl struct {
	store       repository.Store
	snsClient   awspkg.SNSPublisher
	snsTopicArn string
	metrics     *BusinessMetrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewCouponService(
	store repository.Store,
	snsClient awspkg.SNSPublisher,
	snsTopicArn string,
	metrics *BusinessMetrics,
	logger *zap.Logger,
) CouponService {
	return &couponServiceImpl{
		store:       store,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *couponServiceImpl) lookup(ctx context.Context, code string) (*models.Coupon, *ServiceError) {
	coupon, err := s.store.Coupons().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeCouponNotFound, "Coupon not found")
		}
		return nil, internalError(logger.WithTrace(ctx, s.logger), "Failed to load coupon", err)
	}
	return coupon, nil
}

// checkWindow applies every rule except the usage limit.
func (s *couponServiceImpl) checkWindow(coupon *models.Coupon, orderAmount float64) *ServiceError {
	now := s.now()
	switch {
	case !coupon.IsActive:
		return badRequest(CodeCouponInactive, "Coupon is not active")
	case now.Before(coupon.ValidFrom):
		return badRequest(CodeCouponNotStarted, "Coupon is not yet valid")
	case now.After(coupon.ValidUntil):
		return badRequest(CodeCouponExpired, "Coupon has expired")
	case orderAmount < coupon.MinOrderAmount:
		svcErr := badRequest(CodeCouponMinOrderNotMet, fmt.Sprintf("Minimum order value of %.2f required", coupon.MinOrderAmount))
		svcErr.Details = map[string]interface{}{"minOrderAmount": coupon.MinOrderAmount}
		return svcErr
	}
	return nil
}

func usageExhausted(coupon *models.Coupon) bool {
	return coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit
}

// DiscountFor computes the discount a coupon grants on amount.
func DiscountFor(coupon *models.Coupon, amount float64) float64 {
	var discount float64
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		discount = amount * coupon.DiscountValue / 100
	case models.DiscountTypeFixed:
		discount = coupon.DiscountValue
	}
	if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
		discount = *coupon.MaxDiscount
	}
	if discount > amount {
		discount = amount
	}
	if discount < 0 {
		discount = 0
	}
	return roundMoney(discount)
}

func (s *couponServiceImpl) Validate(ctx context.Context, code string, orderAmount float64, userID uuid.UUID) (result *models.CouponValidation, svcErr *ServiceError) {
	ctx, span := startSpan(ctx, "coupon.validate", attribute.String("coupon.code", repository.NormalizeCode(code)))
	defer func() { endSpan(span, svcErr) }()

	if orderAmount <= 0 {
		return nil, badRequest(CodeValidation, "Order amount must be greater than 0")
	}

	coupon, svcErr := s.lookup(ctx, code)
	if svcErr != nil {
		return nil, svcErr
	}
	if svcErr := s.checkWindow(coupon, orderAmount); svcErr != nil {
		return nil, svcErr
	}
	if usageExhausted(coupon) {
		return nil, badRequest(CodeCouponUsageLimit, "Coupon usage limit reached")
	}

	discount := DiscountFor(coupon, orderAmount)
	return &models.CouponValidation{
		Valid:          true,
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		DiscountType:   coupon.DiscountType,
		DiscountValue:  coupon.DiscountValue,
		DiscountAmount: discount,
		FinalAmount:    roundMoney(orderAmount - discount),
	}, nil
}

func (s *couponServiceImpl) Redeem(ctx context.Context, code string, orderID, userID uuid.UUID) (result *RedeemResult, svcErr *ServiceError) {
	ctx, span := startSpan(ctx, "coupon.redeem",
		attribute.String("coupon.code", repository.NormalizeCode(code)),
		attribute.String("order.id", orderID.String()),
	)
	defer func() { endSpan(span, svcErr) }()
	log := logger.WithTrace(ctx, s.logger)

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeOrderNotFound, "Order not found")
		}
		return nil, internalError(log, "Failed to load order", err)
	}
	if order.UserID != userID {
		return nil, newError(http.StatusForbidden, CodeForbidden, "Order does not belong to user")
	}
	// The coupon must be the one checkout priced into the order.
	if order.CouponCode == nil || repository.NormalizeCode(*order.CouponCode) != repository.NormalizeCode(code) {
		return nil, badRequest(CodeCouponNotApplied, "Coupon was not applied to this order")
	}

	coupon, svcErr := s.lookup(ctx, code)
	if svcErr != nil {
		return nil, svcErr
	}

	result = &RedeemResult{CouponID: coupon.ID, Code: coupon.Code, OrderID: orderID}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		result.AlreadyRedeemed = false
		inserted, err := tx.Coupons().InsertRedemption(ctx, &models.CouponRedemption{
			CouponID: coupon.ID,
			OrderID:  orderID,
			UserID:   userID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.AlreadyRedeemed = true
			return nil
		}
		if svcErr := s.checkWindow(coupon, order.Subtotal); svcErr != nil {
			return svcErr
		}
		return tx.Coupons().IncrementUsage(ctx, coupon.ID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUsageLimitReached) {
			return nil, badRequest(CodeCouponUsageLimit, "Coupon usage limit reached")
		}
		return nil, fromTxError(log, "Failed to redeem coupon", err)
	}

	if result.AlreadyRedeemed {
		log.Info("coupon already redeemed for order", zap.String("code", coupon.Code), zap.String("order_id", orderID.String()))
		return result, nil
	}

	s.metrics.Inc(awspkg.MetricCouponsRedeemed)
	s.publishRedeemedEvent(ctx, coupon, orderID, userID)
	log.Info("coupon redeemed", zap.String("code", coupon.Code), zap.String("order_id", orderID.String()))
	return result, nil
}

func (s *couponServiceImpl) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, *ServiceError) {
	log := logger.WithTrace(ctx, s.logger)

	if !req.ValidUntil.After(req.ValidFrom) {
		return nil, badRequest(CodeValidation, "validUntil must be after validFrom")
	}
	if req.DiscountType == models.DiscountTypePercentage && req.DiscountValue > 100 {
		return nil, badRequest(CodeValidation, "Percentage discount cannot exceed 100")
	}

	coupon := &models.Coupon{
		Code:           repository.NormalizeCode(req.Code),
		DiscountType:   req.DiscountType,
		DiscountValue:  req.DiscountValue,
		MinOrderAmount: req.MinOrderAmount,
		MaxDiscount:    req.MaxDiscount,
		UsageLimit:     req.UsageLimit,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		IsActive:       true,
	}
	if err := s.store.Coupons().Create(ctx, coupon); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(http.StatusConflict, CodeCouponExists, "Coupon code already exists")
		}
		return nil, internalError(log, "Failed to create coupon", err)
	}

	log.Info("coupon created", zap.String("code", coupon.Code), zap.String("type", string(coupon.DiscountType)))
	return coupon, nil
}

func (s *couponServiceImpl) GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, *ServiceError) {
	coupon, err := s.store.Coupons().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(CodeCouponNotFound, "Coupon not found")
		}
		return nil, internalError(logger.WithTrace(ctx, s.logger), "Failed to load coupon", err)
	}
	return coupon, nil
}

func (s *couponServiceImpl) ListCoupons(ctx context.Context, page models.Page) ([]models.Coupon, int64, *ServiceError) {
	coupons, total, err := s.store.Coupons().List(ctx, page)
	if err != nil {
		return nil, 0, internalError(logger.WithTrace(ctx, s.logger), "Failed to list coupons", err)
	}
	return coupons, total, nil
}

func (s *couponServiceImpl) DeactivateCoupon(ctx context.Context, id uuid.UUID) *ServiceError {
	log := logger.WithTrace(ctx, s.logger)
	if err := s.store.Coupons().Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError(CodeCouponNotFound, "Coupon not found")
		}
		return internalError(log, "Failed to deactivate coupon", err)
	}
	log.Info("coupon deactivated", zap.String("coupon_id", id.String()))
	return nil
}

func (s *couponServiceImpl) publishRedeemedEvent(ctx context.Context, coupon *models.Coupon, orderID, userID uuid.UUID) {
	if s.snsClient == nil || s.snsTopicArn == "" {
		s.logger.Debug("SNS not configured, skipping coupon.redeemed event")
		return
	}

	event := models.CouponEvent{
		Type:      models.CouponEventRedeemed,
		CouponID:  coupon.ID,
		Code:      coupon.Code,
		OrderID:   orderID,
		UserID:    userID,
		Timestamp: s.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal coupon event", zap.Error(err))
		return
	}
	if err := s.snsClient.Publish(ctx, s.snsTopicArn, body, map[string]string{"eventType": event.Type}); err != nil {
		s.logger.Warn("Failed to publish coupon event", zap.String("code", coupon.Code), zap.Error(err))
	}
}
