package service

import (
	"context"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
)

// ProductReader loads catalog products
type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// ResolvePrice returns the unit price of a line item for an already loaded
// product: callerPrice when it is positive, otherwise the product's suggested
// price. A resolved price that is not positive is InvalidInput. Prices are in cents.
func ResolvePrice(product *models.Product, callerPrice *int64) (int64, error) {
	price := product.SuggestedPrice
	if callerPrice != nil && *callerPrice > 0 {
		price = *callerPrice
	}
	if price <= 0 {
		return 0, apperr.InvalidInput("invalid price for product %d", product.ID)
	}
	return price, nil
}
