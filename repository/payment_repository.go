package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravind-gm/oranew/models"
)

type PaymentRepository interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	// Upsert writes the payment keyed by order id, overwriting the gateway
	// and status columns of an existing row.
	Upsert(ctx context.Context, payment *models.Payment) error
	UpdateByOrderID(ctx context.Context, orderID uuid.UUID, fields map[string]interface{}) error
}

type gormPaymentRepo struct {
	s *GormStore
}

func (r *gormPaymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.s.run(ctx, "payments.get", func(db *gorm.DB) error {
		return db.Where("order_id = ?", orderID).First(&p).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormPaymentRepo) Upsert(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.s.run(ctx, "payments.upsert", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "gateway", "transaction_id", "gateway_order_id", "client_secret",
				"amount", "currency", "confirmed_at", "failed_at", "updated_at",
			}),
		}).Create(payment).Error
	})
}

func (r *gormPaymentRepo) UpdateByOrderID(ctx context.Context, orderID uuid.UUID, fields map[string]interface{}) error {
	return r.s.run(ctx, "payments.update", func(db *gorm.DB) error {
		res := db.Model(&models.Payment{}).Where("order_id = ?", orderID).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
