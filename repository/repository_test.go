package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	apperrors "github.com/aravind-gm/oranew/common/errors"
	"github.com/aravind-gm/oranew/pkg/resilience"
	"github.com/aravind-gm/oranew/repository"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func fastRetrier() *resilience.Retrier {
	return resilience.NewRetrier(resilience.Config{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		Multiplier:      2,
		MaxInterval:     time.Millisecond,
	}, nil)
}

func TestLockedQuantities_OnlyCountsLiveLocks(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormInventoryRepository(gormDB)

	p1, p2 := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT product_id, COALESCE\(SUM\(quantity\), 0\) AS locked FROM "inventory_locks" WHERE product_id IN \(\$1,\$2\) AND expires_at > \$3 GROUP BY`).
		WithArgs(p1, p2, now).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "locked"}).AddRow(p1.String(), 3))

	locked, err := repo.LockedQuantities(context.Background(), []uuid.UUID{p1, p2}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, locked[p1])
	assert.Equal(t, 0, locked[p2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockedQuantities_NoProducts(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormInventoryRepository(gormDB)

	locked, err := repo.LockedQuantities(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockedByOthers_ExcludesOwnOrder(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormInventoryRepository(gormDB)

	p1, orderID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT product_id, COALESCE\(SUM\(quantity\), 0\) AS locked FROM "inventory_locks" WHERE \(?product_id IN \(\$1\) AND expires_at > \$2\)? AND order_id <> \$3 GROUP BY`).
		WithArgs(p1, now, orderID).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "locked"}).AddRow(p1.String(), 1))

	locked, err := repo.LockedByOthers(context.Background(), []uuid.UUID{p1}, orderID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, locked[p1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpired_ReturnsCount(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormInventoryRepository(gormDB)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "inventory_locks" WHERE expires_at <= $1`)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStock_InsufficientWhenNoRowMatches(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormProductRepository(gormDB)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET "stock_quantity"=stock_quantity - $1 WHERE id = $2 AND stock_quantity >= $3`)).
		WithArgs(2, id, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.DecrementStock(context.Background(), id, 2)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStock_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormProductRepository(gormDB)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET "stock_quantity"=stock_quantity - $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.DecrementStock(context.Background(), id, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRestocked_ClaimsOnce(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)
	id := uuid.New()
	at := time.Now()

	query := regexp.QuoteMeta(`UPDATE "orders" SET "restocked_at"=$1 WHERE id = $2 AND restocked_at IS NULL AND stock_committed_at IS NOT NULL`)

	mock.ExpectBegin()
	mock.ExpectExec(query).WithArgs(at, id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(query).WithArgs(at, id).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	first, err := repo.MarkRestocked(context.Background(), id, at)
	require.NoError(t, err)
	second, err := repo.MarkRestocked(context.Background(), id, at)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUsage_LimitReached(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCouponRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "coupons" SET "usage_count"=usage_count \+ 1 WHERE .*usage_count < usage_limit`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.IncrementUsage(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrUsageLimitReached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGetByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	o, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, o)
}

func TestOrderGetByID_ClassifiesConnectionLoss(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.True(t, apperrors.IsRetryable(err))
}

func TestStoreWithoutRetry_RunsOnce(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB, fastRetrier())

	connErr := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	for i := 0; i < 3; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).WillReturnError(connErr)
	}

	// One statement for the bare view, two for the retrying store.
	_, err := store.WithoutRetry().Orders().GetByID(context.Background(), uuid.New())
	assert.True(t, apperrors.IsRetryable(err))

	_, err = store.Orders().GetByID(context.Background(), uuid.New())
	assert.True(t, apperrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreTransaction_RetriesSerializationFailure(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB, fastRetrier())
	now := time.Now()

	del := regexp.QuoteMeta(`DELETE FROM "inventory_locks" WHERE expires_at <= $1`)

	mock.ExpectBegin()
	mock.ExpectExec(del).WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(del).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := store.Transaction(context.Background(), func(tx repository.Store) error {
		calls++
		_, err := tx.Inventory().DeleteExpired(context.Background(), now)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreTransaction_DoesNotRetryDomainErrors(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB, fastRetrier())

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := store.Transaction(context.Background(), func(tx repository.Store) error {
		calls++
		return repository.ErrInsufficientStock
	})

	assert.ErrorIs(t, err, repository.ErrInsufficientStock)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
