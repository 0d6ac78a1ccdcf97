package service

import (
	"context"
	"strings"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/store"
	"marketplace-backoffice/internal/util"

	"go.uber.org/zap"
)

// AddressStore is the persistence used for addresses
type AddressStore interface {
	GetAddressByID(ctx context.Context, id int64) (*models.Address, error)
	SearchAddresses(ctx context.Context, filter store.AddressFilter) ([]models.Address, error)
	FindDuplicateAddress(ctx context.Context, a *models.Address) (*models.Address, error)
	CreateAddress(ctx context.Context, a *models.Address) error
	UpdateAddress(ctx context.Context, a *models.Address) error
	DeleteAddress(ctx context.Context, id int64) error
	CountDeliveriesByAddress(ctx context.Context, addressID int64) (int, error)
	GetStateByID(ctx context.Context, id int64) (*models.State, error)
	GetCityByID(ctx context.Context, id int64) (*models.City, error)
}

// AddressService manages delivery addresses
type AddressService struct {
	store  AddressStore
	logger *zap.Logger
}

func NewAddressService(store AddressStore) *AddressService {
	return &AddressService{store: store, logger: util.GetLogger()}
}

// AddressRequest carries address fields. On patch nil fields are kept.
type AddressRequest struct {
	Street     *string `json:"street"`
	Number     *int    `json:"number"`
	Complement *string `json:"complement"`
	Cep        *string `json:"cep" binding:"omitempty,cep"`
}

// NormalizeCep accepts 8 digits or the 5+3 hyphenated form and returns the
// 8 digits
func NormalizeCep(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 9 && raw[5] == '-' {
		raw = raw[:5] + raw[6:]
	}
	if len(raw) != 8 {
		return "", apperr.InvalidInput("cep must have 8 digits")
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", apperr.InvalidInput("cep must have 8 digits")
		}
	}
	return raw, nil
}

// SearchAddresses filters by city, street substring and cep
func (s *AddressService) SearchAddresses(ctx context.Context, cityID int64, street, cep string) ([]models.Address, error) {
	filter := store.AddressFilter{CityID: cityID, Street: strings.TrimSpace(street)}
	if strings.TrimSpace(cep) != "" {
		normalized, err := NormalizeCep(cep)
		if err != nil {
			return nil, err
		}
		filter.Cep = normalized
	}
	return s.store.SearchAddresses(ctx, filter)
}

// CreateAddress registers an address in a city of the state. An identical
// address is returned instead of duplicated; created reports which happened.
func (s *AddressService) CreateAddress(ctx context.Context, stateID, cityID int64, req *AddressRequest) (address *models.Address, created bool, err error) {
	if _, err := s.store.GetStateByID(ctx, stateID); err != nil {
		return nil, false, err
	}
	city, err := s.store.GetCityByID(ctx, cityID)
	if err != nil {
		return nil, false, err
	}
	if city.StateID != stateID {
		return nil, false, apperr.NotFound("city %d not found in state %d", cityID, stateID)
	}

	if req.Street == nil || req.Number == nil || req.Cep == nil {
		return nil, false, apperr.InvalidInput("street, number and cep are required")
	}

	a := &models.Address{CityID: cityID}
	if err := applyAddress(a, req); err != nil {
		return nil, false, err
	}

	dup, err := s.store.FindDuplicateAddress(ctx, a)
	if err != nil {
		return nil, false, err
	}
	if dup != nil {
		return dup, false, nil
	}

	if err := s.store.CreateAddress(ctx, a); err != nil {
		return nil, false, err
	}
	s.logger.Info("address created", zap.Int64("address_id", a.ID), zap.Int64("city_id", cityID))
	return a, true, nil
}

// PatchAddress changes the given fields of an address
func (s *AddressService) PatchAddress(ctx context.Context, id int64, req *AddressRequest) (*models.Address, error) {
	if req.Street == nil && req.Number == nil && req.Complement == nil && req.Cep == nil {
		return nil, apperr.InvalidInput("at least one field is required")
	}
	a, err := s.store.GetAddressByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyAddress(a, req); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAddress(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func applyAddress(a *models.Address, req *AddressRequest) error {
	if req.Street != nil {
		street := strings.TrimSpace(*req.Street)
		if street == "" {
			return apperr.InvalidInput("street must not be empty")
		}
		a.Street = street
	}
	if req.Number != nil {
		if *req.Number <= 0 {
			return apperr.InvalidInput("number must be greater than zero")
		}
		a.Number = *req.Number
	}
	if req.Complement != nil {
		a.Complement = strings.TrimSpace(*req.Complement)
	}
	if req.Cep != nil {
		cep, err := NormalizeCep(*req.Cep)
		if err != nil {
			return err
		}
		a.Cep = cep
	}
	return nil
}

// DeleteAddress removes an address no delivery uses
func (s *AddressService) DeleteAddress(ctx context.Context, id int64) error {
	if _, err := s.store.GetAddressByID(ctx, id); err != nil {
		return err
	}
	used, err := s.store.CountDeliveriesByAddress(ctx, id)
	if err != nil {
		return err
	}
	if used > 0 {
		return apperr.Conflict("address %d is used by a delivery", id)
	}
	return s.store.DeleteAddress(ctx, id)
}
