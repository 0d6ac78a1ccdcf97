package store

import (
	"context"
	"database/sql"
	"errors"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
)

// CreateDelivery books a delivery. The unique constraint on sale_id makes a
// second booking for the same sale fail with a conflict, whichever request
// reaches the database last.
func (s *Store) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	query := `
		INSERT INTO deliveries (sale_id, address_id, delivery_forecast)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, delivery, query,
		delivery.SaleID, delivery.AddressID, delivery.DeliveryForecast)
	return translateError("create delivery", err)
}

// GetDeliveryBySaleID returns nil when the sale has no delivery
func (s *Store) GetDeliveryBySaleID(ctx context.Context, saleID int64) (*models.Delivery, error) {
	var delivery models.Delivery
	err := s.db.GetContext(ctx, &delivery, "SELECT * FROM deliveries WHERE sale_id = $1", saleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get delivery", err)
	}
	return &delivery, nil
}

// CountDeliveriesByAddress counts the deliveries that use an address
func (s *Store) CountDeliveriesByAddress(ctx context.Context, addressID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM deliveries WHERE address_id = $1", addressID)
	if err != nil {
		return 0, apperr.Internal("count address deliveries", err)
	}
	return count, nil
}
