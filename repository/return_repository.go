package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravind-gm/oranew/models"
)

type ReturnRepository interface {
	Create(ctx context.Context, ret *models.Return) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Return, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Return, error)
	// FindOpenByOrder returns the order's return that is not yet rejected,
	// or ErrNotFound.
	FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Return, error)
	List(ctx context.Context, status models.ReturnStatus, page models.Page) ([]models.Return, int64, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
}

type gormReturnRepo struct {
	s *GormStore
}

func (r *gormReturnRepo) Create(ctx context.Context, ret *models.Return) error {
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	return r.s.run(ctx, "returns.create", func(db *gorm.DB) error {
		return db.Create(ret).Error
	})
}

func (r *gormReturnRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.s.run(ctx, "returns.get", func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&ret).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &ret, nil
}

func (r *gormReturnRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.s.run(ctx, "returns.get_for_update", func(db *gorm.DB) error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&ret).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &ret, nil
}

func (r *gormReturnRepo) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.s.run(ctx, "returns.find_open", func(db *gorm.DB) error {
		return db.Where("order_id = ? AND status <> ?", orderID, models.ReturnStatusRejected).First(&ret).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &ret, nil
}

func (r *gormReturnRepo) List(ctx context.Context, status models.ReturnStatus, page models.Page) ([]models.Return, int64, error) {
	var (
		returns []models.Return
		total   int64
	)
	offset := page.Normalize()
	err := r.s.run(ctx, "returns.list", func(db *gorm.DB) error {
		q := db.Model(&models.Return{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		if err := q.Count(&total).Error; err != nil {
			return err
		}
		return q.Order("created_at DESC").Offset(offset).Limit(page.Limit).Find(&returns).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return returns, total, nil
}

func (r *gormReturnRepo) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return r.s.run(ctx, "returns.update", func(db *gorm.DB) error {
		res := db.Model(&models.Return{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
