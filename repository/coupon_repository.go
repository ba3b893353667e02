package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravind-gm/oranew/models"
)

type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context, page models.Page) ([]models.Coupon, int64, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// InsertRedemption records the redemption unless the coupon was already
	// redeemed for the same order, and reports whether a row was written.
	InsertRedemption(ctx context.Context, redemption *models.CouponRedemption) (bool, error)
	// IncrementUsage consumes one use only while the coupon is active and
	// under its limit, returning ErrUsageLimitReached otherwise.
	IncrementUsage(ctx context.Context, couponID uuid.UUID) error
}

type gormCouponRepo struct {
	s *GormStore
}

func NewGormCouponRepository(db *gorm.DB) CouponRepository {
	return &gormCouponRepo{s: NewGormStore(db, nil)}
}

// NormalizeCode is the canonical form coupon codes are stored and looked up in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *gormCouponRepo) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	coupon.Code = NormalizeCode(coupon.Code)
	err := r.s.run(ctx, "coupons.create", func(db *gorm.DB) error {
		return db.Create(coupon).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *gormCouponRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var c models.Coupon
	err := r.s.run(ctx, "coupons.get", func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&c).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *gormCouponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.s.run(ctx, "coupons.get_by_code", func(db *gorm.DB) error {
		return db.Where("code = ?", NormalizeCode(code)).First(&c).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *gormCouponRepo) List(ctx context.Context, page models.Page) ([]models.Coupon, int64, error) {
	var (
		coupons []models.Coupon
		total   int64
	)
	offset := page.Normalize()
	err := r.s.run(ctx, "coupons.list", func(db *gorm.DB) error {
		if err := db.Model(&models.Coupon{}).Count(&total).Error; err != nil {
			return err
		}
		return db.Order("created_at DESC").Offset(offset).Limit(page.Limit).Find(&coupons).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return coupons, total, nil
}

func (r *gormCouponRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.s.run(ctx, "coupons.deactivate", func(db *gorm.DB) error {
		res := db.Model(&models.Coupon{}).Where("id = ?", id).Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormCouponRepo) InsertRedemption(ctx context.Context, redemption *models.CouponRedemption) (bool, error) {
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	var created bool
	err := r.s.run(ctx, "coupons.insert_redemption", func(db *gorm.DB) error {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(redemption)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return nil
	})
	return created, err
}

func (r *gormCouponRepo) IncrementUsage(ctx context.Context, couponID uuid.UUID) error {
	return r.s.run(ctx, "coupons.increment_usage", func(db *gorm.DB) error {
		res := db.Model(&models.Coupon{}).
			Where("id = ? AND is_active = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", couponID, true).
			UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUsageLimitReached
		}
		return nil
	})
}
