package store

import (
	"context"
	"database/sql"
	"errors"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateSaleWithLineItem writes the sale header and its line item in a single
// transaction. If either insert fails nothing is persisted.
func (s *Store) CreateSaleWithLineItem(ctx context.Context, sale *models.Sale, item *models.LineItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO sales (seller_id, buyer_id, dt_sale, idempotency_key)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`

		err := tx.GetContext(ctx, sale, query,
			sale.SellerID, sale.BuyerID, sale.DtSale, sale.IdempotencyKey)
		if err != nil {
			return translateError("create sale", err)
		}

		item.SaleID = sale.ID
		query = `
			INSERT INTO line_items (sale_id, product_id, unit_price, amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id`

		err = tx.GetContext(ctx, &item.ID, query,
			item.SaleID, item.ProductID, item.UnitPrice, item.Amount)
		if err != nil {
			return translateError("create line item", err)
		}

		sale.Items = []models.LineItem{*item}
		return nil
	})
}

// GetSaleByID retrieves a sale header by ID
func (s *Store) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sale %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get sale", err)
	}
	return &sale, nil
}

// GetSaleByIdempotencyKey returns nil when the seller never used the key.
// Keys are scoped per seller.
func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, sellerID int64, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale,
		"SELECT * FROM sales WHERE seller_id = $1 AND idempotency_key = $2", sellerID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get sale by idempotency key", err)
	}
	return &sale, nil
}

// ListSales returns every sale, newest first
func (s *Store) ListSales(ctx context.Context) ([]models.Sale, error) {
	sales := []models.Sale{}
	if err := s.db.SelectContext(ctx, &sales, "SELECT * FROM sales ORDER BY created_at DESC"); err != nil {
		return nil, apperr.Internal("list sales", err)
	}
	return sales, nil
}

// ListSalesByBuyer returns the sales where userID is the buyer
func (s *Store) ListSalesByBuyer(ctx context.Context, buyerID int64) ([]models.Sale, error) {
	sales := []models.Sale{}
	err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM sales WHERE buyer_id = $1 ORDER BY created_at DESC", buyerID)
	if err != nil {
		return nil, apperr.Internal("list sales by buyer", err)
	}
	return sales, nil
}

// GetLineItemsBySaleID retrieves all items for a sale
func (s *Store) GetLineItemsBySaleID(ctx context.Context, saleID int64) ([]models.LineItem, error) {
	items := []models.LineItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM line_items WHERE sale_id = $1 ORDER BY id", saleID)
	if err != nil {
		return nil, apperr.Internal("list line items", err)
	}
	return items, nil
}

// UpdateLineItem patches the price and amount of a line item
func (s *Store) UpdateLineItem(ctx context.Context, item *models.LineItem) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE line_items SET unit_price = $1, amount = $2 WHERE id = $3",
		item.UnitPrice, item.Amount, item.ID)
	if err != nil {
		return translateError("update line item", err)
	}
	return requireAffected(res, apperr.NotFound("line item %d not found", item.ID))
}
