package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravind-gm/oranew/models"
)

type CartRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	// Upsert sets the quantity of a product in the cart, adding the line when missing.
	Upsert(ctx context.Context, item *models.CartItem) error
	Remove(ctx context.Context, userID, productID uuid.UUID) (int64, error)
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
}

type gormCartRepo struct {
	s *GormStore
}

func (r *gormCartRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.s.run(ctx, "cart.list", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Order("created_at").Find(&items).Error
	})
	return items, err
}

func (r *gormCartRepo) Upsert(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.s.run(ctx, "cart.upsert", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).Create(item).Error
	})
}

func (r *gormCartRepo) Remove(ctx context.Context, userID, productID uuid.UUID) (int64, error) {
	var n int64
	err := r.s.run(ctx, "cart.remove", func(db *gorm.DB) error {
		res := db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.CartItem{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

func (r *gormCartRepo) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.s.run(ctx, "cart.clear", func(db *gorm.DB) error {
		res := db.Where("user_id = ?", userID).Delete(&models.CartItem{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
