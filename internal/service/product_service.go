package service

import (
	"context"
	"math"
	"strings"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/store"
	"marketplace-backoffice/internal/util"

	"go.uber.org/zap"
)

// ProductStore is the persistence used by the catalog
type ProductStore interface {
	ProductReader
	SearchProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error)
	ProductNameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	CountLineItemsByProduct(ctx context.Context, productID int64) (int, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// ProductService manages the catalog
type ProductService struct {
	store  ProductStore
	logger *zap.Logger
}

func NewProductService(store ProductStore) *ProductService {
	return &ProductService{store: store, logger: util.GetLogger()}
}

// ProductRequest carries product fields. Nil fields are left unchanged by Patch.
type ProductRequest struct {
	Name           *string `json:"name"`
	SuggestedPrice *int64  `json:"suggested_price"`
}

// SearchProducts filters by name substring and price range. A nil bound is
// open.
func (s *ProductService) SearchProducts(ctx context.Context, name string, priceMin, priceMax *int64) ([]models.Product, error) {
	filter := store.ProductFilter{Name: strings.TrimSpace(name), PriceMin: 0, PriceMax: math.MaxInt64}
	if priceMin != nil {
		filter.PriceMin = *priceMin
	}
	if priceMax != nil {
		filter.PriceMax = *priceMax
	}
	if priceMin != nil && priceMax != nil && filter.PriceMax <= filter.PriceMin {
		return nil, apperr.InvalidInput("price_max must be greater than price_min")
	}
	return s.store.SearchProducts(ctx, filter)
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.store.GetProductByID(ctx, id)
}

// CreateProduct adds a product; names are unique
func (s *ProductService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	if req.Name == nil || req.SuggestedPrice == nil {
		return nil, apperr.InvalidInput("name and suggested_price are required")
	}
	product := &models.Product{}
	if err := s.apply(ctx, product, req); err != nil {
		return nil, err
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	s.logger.Info("product created", zap.Int64("product_id", product.ID))
	return product, nil
}

// ReplaceProduct overwrites both fields of a product
func (s *ProductService) ReplaceProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	if req.Name == nil || req.SuggestedPrice == nil {
		return nil, apperr.InvalidInput("name and suggested_price are required")
	}
	return s.PatchProduct(ctx, id, req)
}

// PatchProduct changes the given fields of a product
func (s *ProductService) PatchProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	if req.Name == nil && req.SuggestedPrice == nil {
		return nil, apperr.InvalidInput("name or suggested_price is required")
	}
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, product, req); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *ProductService) apply(ctx context.Context, product *models.Product, req *ProductRequest) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return apperr.InvalidInput("name must not be empty")
		}
		taken, err := s.store.ProductNameTaken(ctx, name, product.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("product %q already exists", name)
		}
		product.Name = name
	}
	if req.SuggestedPrice != nil {
		if *req.SuggestedPrice <= 0 {
			return apperr.InvalidInput("suggested_price must be greater than zero")
		}
		product.SuggestedPrice = *req.SuggestedPrice
	}
	return nil
}

// DeleteProduct removes a product that was never sold
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := s.store.GetProductByID(ctx, id); err != nil {
		return err
	}
	sold, err := s.store.CountLineItemsByProduct(ctx, id)
	if err != nil {
		return err
	}
	if sold > 0 {
		return apperr.Conflict("product %d has been sold and cannot be deleted", id)
	}
	return s.store.DeleteProduct(ctx, id)
}
