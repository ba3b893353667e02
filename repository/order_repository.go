package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravind-gm/oranew/models"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetByIDForUpdate row-locks the order until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.Order, int64, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	// Delete removes the order and, through the foreign keys, its items and locks.
	Delete(ctx context.Context, id uuid.UUID) error
	// MarkRestocked sets restocked_at once for an order whose stock was committed.
	// It reports whether this call claimed the order.
	MarkRestocked(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type gormOrderRepo struct {
	s *GormStore
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &gormOrderRepo{s: NewGormStore(db, nil)}
}

func (r *gormOrderRepo) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.s.run(ctx, "orders.create", func(db *gorm.DB) error {
		return db.Create(order).Error
	})
}

func (r *gormOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.s.run(ctx, "orders.get", func(db *gorm.DB) error {
		return db.Preload("Items").Where("id = ?", id).First(&order).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *gormOrderRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.s.run(ctx, "orders.get_for_update", func(db *gorm.DB) error {
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&order).Error; err != nil {
			return err
		}
		return db.Where("order_id = ?", id).Find(&order.Items).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *gormOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.Order, int64, error) {
	var (
		orders []models.Order
		total  int64
	)
	offset := page.Normalize()

	err := r.s.run(ctx, "orders.list", func(db *gorm.DB) error {
		q := db.Model(&models.Order{})
		if userID != uuid.Nil {
			q = q.Where("user_id = ?", userID)
		}
		if err := q.Count(&total).Error; err != nil {
			return err
		}
		return q.Preload("Items").Order("created_at DESC").Offset(offset).Limit(page.Limit).Find(&orders).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *gormOrderRepo) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return r.s.run(ctx, "orders.update", func(db *gorm.DB) error {
		res := db.Model(&models.Order{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.run(ctx, "orders.delete", func(db *gorm.DB) error {
		return db.Where("id = ?", id).Delete(&models.Order{}).Error
	})
}

func (r *gormOrderRepo) MarkRestocked(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var claimed bool
	err := r.s.run(ctx, "orders.mark_restocked", func(db *gorm.DB) error {
		res := db.Model(&models.Order{}).
			Where("id = ? AND restocked_at IS NULL AND stock_committed_at IS NOT NULL", id).
			UpdateColumn("restocked_at", at)
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected == 1
		return nil
	})
	return claimed, err
}
