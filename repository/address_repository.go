package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aravind-gm/oranew/models"
)

type AddressRepository interface {
	Create(ctx context.Context, addr *models.Address) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

type gormAddressRepo struct {
	s *GormStore
}

func (r *gormAddressRepo) Create(ctx context.Context, addr *models.Address) error {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	return r.s.run(ctx, "addresses.create", func(db *gorm.DB) error {
		return db.Create(addr).Error
	})
}

func (r *gormAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.s.run(ctx, "addresses.get", func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&addr).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &addr, nil
}
