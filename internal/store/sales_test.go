package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSaleWithLineItem_Commits(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sales").
		WithArgs(int64(1), int64(2), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))
	mock.ExpectQuery("INSERT INTO line_items").
		WithArgs(int64(10), int64(7), int64(10000), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectCommit()

	sale := &models.Sale{SellerID: 1, BuyerID: 2, DtSale: now}
	item := &models.LineItem{ProductID: 7, UnitPrice: 10000, Amount: 1}

	err := s.CreateSaleWithLineItem(context.Background(), sale, item)
	require.NoError(t, err)

	assert.Equal(t, int64(10), sale.ID)
	assert.Equal(t, int64(10), item.SaleID)
	assert.Equal(t, int64(100), item.ID)
	require.Len(t, sale.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSaleWithLineItem_RollsBackWhenLineItemFails(t *testing.T) {
	failures := map[string]error{
		"connection lost":   errors.New("connection reset by peer"),
		"product vanished":  &pq.Error{Code: pgForeignKeyViolation, Constraint: "line_items_product_id_fkey"},
		"amount constraint": &pq.Error{Code: pgCheckViolation, Constraint: "line_items_amount_check"},
		"context cancelled": context.Canceled,
	}

	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectBegin()
			mock.ExpectQuery("INSERT INTO sales").
				WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), time.Now()))
			mock.ExpectQuery("INSERT INTO line_items").WillReturnError(failure)
			mock.ExpectRollback()

			sale := &models.Sale{SellerID: 1, BuyerID: 2, DtSale: time.Now()}
			item := &models.LineItem{ProductID: 7, UnitPrice: 10000, Amount: 1}

			err := s.CreateSaleWithLineItem(context.Background(), sale, item)
			require.Error(t, err)
			assert.Empty(t, sale.Items)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateSaleWithLineItem_UnknownBuyerIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sales").
		WillReturnError(&pq.Error{Code: pgForeignKeyViolation, Constraint: "sales_buyer_id_fkey"})
	mock.ExpectRollback()

	err := s.CreateSaleWithLineItem(context.Background(),
		&models.Sale{SellerID: 1, BuyerID: 99, DtSale: time.Now()},
		&models.LineItem{ProductID: 7, UnitPrice: 100, Amount: 1})

	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, "buyer not found", apperr.MessageOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSaleByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM sales WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetSaleByID(context.Background(), 42)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSaleByIdempotencyKey_ScopedToSeller(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM sales WHERE seller_id = \\$1 AND idempotency_key = \\$2").
		WithArgs(int64(1), "k1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id"}))
	mock.ExpectQuery("SELECT \\* FROM sales WHERE seller_id = \\$1 AND idempotency_key = \\$2").
		WithArgs(int64(5), "k1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id"}).AddRow(int64(101), int64(5)))

	sale, err := s.GetSaleByIdempotencyKey(context.Background(), 1, "k1")
	require.NoError(t, err)
	assert.Nil(t, sale)

	sale, err = s.GetSaleByIdempotencyKey(context.Background(), 5, "k1")
	require.NoError(t, err)
	require.NotNil(t, sale)
	assert.Equal(t, int64(101), sale.ID)
	assert.Equal(t, int64(5), sale.SellerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSaleWithLineItem_DuplicateKeyForSellerIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sales").
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "sales_seller_id_idempotency_key_key"})
	mock.ExpectRollback()

	key := "k1"
	sale := &models.Sale{SellerID: 1, BuyerID: 2, DtSale: time.Now(), IdempotencyKey: &key}
	err := s.CreateSaleWithLineItem(context.Background(), sale, &models.LineItem{ProductID: 7, UnitPrice: 100, Amount: 1})

	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, "a sale with this idempotency key already exists", apperr.MessageOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
