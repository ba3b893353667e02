package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/aravind-gm/oranew/pkg/resilience"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("record already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// Store hands out repositories that share one database handle. Repositories
// from the Store passed to a Transaction callback all run in that
// transaction.
type Store interface {
	Orders() OrderRepository
	Products() ProductRepository
	Inventory() InventoryRepository
	Coupons() CouponRepository
	Payments() PaymentRepository
	Returns() ReturnRepository
	Addresses() AddressRepository
	Carts() CartRepository

	// Transaction runs fn in a single database transaction. When the
	// transaction fails with a transient error the whole of fn is re-run, so
	// fn must not have effects outside the database.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// WithoutRetry returns a view over the same handle whose statements run
	// once. Callers with their own recovery path use it so the two never nest.
	WithoutRetry() Store
}

type GormStore struct {
	db      *gorm.DB
	retrier *resilience.Retrier
	inTx    bool
}

// NewGormStore wraps db. A nil retrier disables retries.
func NewGormStore(db *gorm.DB, retrier *resilience.Retrier) *GormStore {
	return &GormStore{db: db, retrier: retrier}
}

func (s *GormStore) Orders() OrderRepository { return &gormOrderRepo{s} }
func (s *GormStore) Products() ProductRepository { return &gormProductRepo{s} }
func (s *GormStore) Inventory() InventoryRepository { return &gormInventoryRepo{s} }
func (s *GormStore) Coupons() CouponRepository { return &gormCouponRepo{s} }
func (s *GormStore) Payments() PaymentRepository { return &gormPaymentRepo{s} }
func (s *GormStore) Returns() ReturnRepository { return &gormReturnRepo{s} }
func (s *GormStore) Addresses() AddressRepository { return &gormAddressRepo{s} }
func (s *GormStore) Carts() CartRepository { return &gormCartRepo{s} }

func (s *GormStore) WithoutRetry() Store {
	return &GormStore{db: s.db, inTx: s.inTx}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	exec := func(ctx context.Context) error {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&GormStore{db: tx, inTx: true})
		})
		return resilience.Classify(err)
	}
	if s.retrier == nil {
		return exec(ctx)
	}
	return s.retrier.Do(ctx, "transaction", exec)
}

// run executes one statement. Driver errors are classified; outside a
// transaction transient failures are retried.
func (s *GormStore) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	exec := func(ctx context.Context) error {
		return resilience.Classify(fn(s.db.WithContext(ctx)))
	}
	if s.inTx || s.retrier == nil {
		return exec(ctx)
	}
	return s.retrier.Do(ctx, op, exec)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
