package store

import (
	"context"
	"database/sql"
	"errors"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
)

// ProductFilter narrows SearchProducts; prices are in cents
type ProductFilter struct {
	Name     string
	PriceMin int64
	PriceMax int64
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get product", err)
	}
	return &product, nil
}

// SearchProducts returns products whose name contains filter.Name and whose
// suggested price lies in [PriceMin, PriceMax]
func (s *Store) SearchProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, `
		SELECT * FROM products
		WHERE name ILIKE $1 AND suggested_price BETWEEN $2 AND $3
		ORDER BY id`,
		"%"+filter.Name+"%", filter.PriceMin, filter.PriceMax)
	if err != nil {
		return nil, apperr.Internal("search products", err)
	}
	return products, nil
}

// ProductNameTaken reports whether another product already uses name
func (s *Store) ProductNameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := s.db.GetContext(ctx, &taken,
		"SELECT EXISTS(SELECT 1 FROM products WHERE name = $1 AND id <> $2)", name, excludeID)
	if err != nil {
		return false, apperr.Internal("check product name", err)
	}
	return taken, nil
}

// CreateProduct creates a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, suggested_price)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, product, query, product.Name, product.SuggestedPrice)
	return translateError("create product", err)
}

// UpdateProduct overwrites name and suggested price
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET name = $1, suggested_price = $2 WHERE id = $3",
		product.Name, product.SuggestedPrice, product.ID)
	if err != nil {
		return translateError("update product", err)
	}
	return requireAffected(res, apperr.NotFound("product %d not found", product.ID))
}

// CountLineItemsByProduct counts the sales a product appears in
func (s *Store) CountLineItemsByProduct(ctx context.Context, productID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM line_items WHERE product_id = $1", productID)
	if err != nil {
		return 0, apperr.Internal("count product sales", err)
	}
	return count, nil
}

// DeleteProduct removes a product that was never sold
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return translateDeleteError("delete product", "product", err)
	}
	return requireAffected(res, apperr.NotFound("product %d not found", id))
}
