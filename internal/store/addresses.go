package store

import (
	"context"
	"database/sql"
	"errors"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
)

// AddressFilter narrows SearchAddresses. Zero values are ignored.
type AddressFilter struct {
	CityID int64
	Street string
	Cep    string
}

// GetAddressByID retrieves an address by ID
func (s *Store) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	var address models.Address
	err := s.db.GetContext(ctx, &address, "SELECT * FROM addresses WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("address %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get address", err)
	}
	return &address, nil
}

// SearchAddresses returns the addresses matching the filter
func (s *Store) SearchAddresses(ctx context.Context, filter AddressFilter) ([]models.Address, error) {
	query := "SELECT * FROM addresses WHERE 1=1"
	args := []interface{}{}

	if filter.CityID != 0 {
		args = append(args, filter.CityID)
		query += " AND city_id = $" + itoa(len(args))
	}
	if filter.Street != "" {
		args = append(args, "%"+filter.Street+"%")
		query += " AND street ILIKE $" + itoa(len(args))
	}
	if filter.Cep != "" {
		args = append(args, filter.Cep)
		query += " AND cep = $" + itoa(len(args))
	}
	query += " ORDER BY id"

	addresses := []models.Address{}
	if err := s.db.SelectContext(ctx, &addresses, query, args...); err != nil {
		return nil, apperr.Internal("search addresses", err)
	}
	return addresses, nil
}

// FindDuplicateAddress returns an address with the same city, street, number
// and cep, or nil
func (s *Store) FindDuplicateAddress(ctx context.Context, a *models.Address) (*models.Address, error) {
	var address models.Address
	err := s.db.GetContext(ctx, &address, `
		SELECT * FROM addresses
		WHERE city_id = $1 AND street ILIKE $2 AND number = $3 AND cep = $4
		LIMIT 1`,
		a.CityID, a.Street, a.Number, a.Cep)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("find duplicate address", err)
	}
	return &address, nil
}

// CreateAddress inserts an address
func (s *Store) CreateAddress(ctx context.Context, a *models.Address) error {
	query := `
		INSERT INTO addresses (city_id, street, number, complement, cep)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, a, query, a.CityID, a.Street, a.Number, a.Complement, a.Cep)
	return translateError("create address", err)
}

// UpdateAddress overwrites the mutable fields of an address
func (s *Store) UpdateAddress(ctx context.Context, a *models.Address) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE addresses SET street = $1, number = $2, complement = $3, cep = $4 WHERE id = $5",
		a.Street, a.Number, a.Complement, a.Cep, a.ID)
	if err != nil {
		return translateError("update address", err)
	}
	return requireAffected(res, apperr.NotFound("address %d not found", a.ID))
}

// DeleteAddress removes an address not used by any delivery
func (s *Store) DeleteAddress(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM addresses WHERE id = $1", id)
	if err != nil {
		return translateDeleteError("delete address", "address", err)
	}
	return requireAffected(res, apperr.NotFound("address %d not found", id))
}

// ListStates returns every state ordered by name
func (s *Store) ListStates(ctx context.Context) ([]models.State, error) {
	states := []models.State{}
	if err := s.db.SelectContext(ctx, &states, "SELECT * FROM states ORDER BY name"); err != nil {
		return nil, apperr.Internal("list states", err)
	}
	return states, nil
}

// GetStateByID retrieves a state by ID
func (s *Store) GetStateByID(ctx context.Context, id int64) (*models.State, error) {
	var state models.State
	err := s.db.GetContext(ctx, &state, "SELECT * FROM states WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("state %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get state", err)
	}
	return &state, nil
}

// GetCityByID retrieves a city by ID
func (s *Store) GetCityByID(ctx context.Context, id int64) (*models.City, error) {
	var city models.City
	err := s.db.GetContext(ctx, &city, "SELECT * FROM cities WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("city %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get city", err)
	}
	return &city, nil
}

// ListCitiesByState returns the cities of a state ordered by name
func (s *Store) ListCitiesByState(ctx context.Context, stateID int64) ([]models.City, error) {
	cities := []models.City{}
	err := s.db.SelectContext(ctx, &cities,
		"SELECT * FROM cities WHERE state_id = $1 ORDER BY name", stateID)
	if err != nil {
		return nil, apperr.Internal("list cities", err)
	}
	return cities, nil
}
