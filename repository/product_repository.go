package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravind-gm/oranew/models"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	// LockByIDs row-locks the products in id order.
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	// DecrementStock subtracts qty only when enough stock remains and returns
	// ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) error
	SetStock(ctx context.Context, id uuid.UUID, stock int) error
}

type gormProductRepo struct {
	s *GormStore
}

func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &gormProductRepo{s: NewGormStore(db, nil)}
}

func (r *gormProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.s.run(ctx, "products.get", func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&p).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormProductRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.s.run(ctx, "products.get_many", func(db *gorm.DB) error {
		return db.Where("id IN ?", ids).Find(&products).Error
	})
	return products, err
}

func (r *gormProductRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.s.run(ctx, "products.lock", func(db *gorm.DB) error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).
			Order("id").
			Find(&products).Error
	})
	return products, err
}

func (r *gormProductRepo) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	return r.s.run(ctx, "products.decrement_stock", func(db *gorm.DB) error {
		res := db.Model(&models.Product{}).
			Where("id = ? AND stock_quantity >= ?", id, qty).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientStock
		}
		return nil
	})
}

func (r *gormProductRepo) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	return r.s.run(ctx, "products.increment_stock", func(db *gorm.DB) error {
		res := db.Model(&models.Product{}).
			Where("id = ?", id).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormProductRepo) SetStock(ctx context.Context, id uuid.UUID, stock int) error {
	return r.s.run(ctx, "products.set_stock", func(db *gorm.DB) error {
		res := db.Model(&models.Product{}).Where("id = ?", id).UpdateColumn("stock_quantity", stock)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
