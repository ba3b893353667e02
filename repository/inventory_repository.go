package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aravind-gm/oranew/models"
)

type InventoryRepository interface {
	// LockedQuantities sums the quantities of locks still live at now, keyed
	// by product. Products without live locks are absent.
	LockedQuantities(ctx context.Context, productIDs []uuid.UUID, now time.Time) (map[uuid.UUID]int, error)
	// LockedByOthers is LockedQuantities without the locks held by orderID.
	LockedByOthers(ctx context.Context, productIDs []uuid.UUID, orderID uuid.UUID, now time.Time) (map[uuid.UUID]int, error)
	CreateLocks(ctx context.Context, locks []models.InventoryLock) error
	DeleteByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormInventoryRepo struct {
	s *GormStore
}

func NewGormInventoryRepository(db *gorm.DB) InventoryRepository {
	return &gormInventoryRepo{s: NewGormStore(db, nil)}
}

func (r *gormInventoryRepo) LockedQuantities(ctx context.Context, productIDs []uuid.UUID, now time.Time) (map[uuid.UUID]int, error) {
	return r.sumLive(ctx, "inventory.locked_quantities", productIDs, now, nil)
}

func (r *gormInventoryRepo) LockedByOthers(ctx context.Context, productIDs []uuid.UUID, orderID uuid.UUID, now time.Time) (map[uuid.UUID]int, error) {
	return r.sumLive(ctx, "inventory.locked_by_others", productIDs, now, &orderID)
}

func (r *gormInventoryRepo) sumLive(ctx context.Context, op string, productIDs []uuid.UUID, now time.Time, exclude *uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ProductID uuid.UUID
		Locked    int
	}
	err := r.s.run(ctx, op, func(db *gorm.DB) error {
		q := db.Model(&models.InventoryLock{}).
			Select("product_id, COALESCE(SUM(quantity), 0) AS locked").
			Where("product_id IN ? AND expires_at > ?", productIDs, now)
		if exclude != nil {
			q = q.Where("order_id <> ?", *exclude)
		}
		return q.Group("product_id").Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.ProductID] = row.Locked
	}
	return out, nil
}

func (r *gormInventoryRepo) CreateLocks(ctx context.Context, locks []models.InventoryLock) error {
	if len(locks) == 0 {
		return nil
	}
	for i := range locks {
		if locks[i].ID == uuid.Nil {
			locks[i].ID = uuid.New()
		}
	}
	return r.s.run(ctx, "inventory.create_locks", func(db *gorm.DB) error {
		return db.Create(&locks).Error
	})
}

func (r *gormInventoryRepo) DeleteByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := r.s.run(ctx, "inventory.release", func(db *gorm.DB) error {
		res := db.Where("order_id = ?", orderID).Delete(&models.InventoryLock{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

func (r *gormInventoryRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.s.run(ctx, "inventory.cleanup", func(db *gorm.DB) error {
		res := db.Where("expires_at <= ?", now).Delete(&models.InventoryLock{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
