package service

import (
	"context"
	"time"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/broker"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SaleStore is the persistence used by the sale workflow
type SaleStore interface {
	ProductReader
	UserExists(ctx context.Context, id int64) (bool, error)
	CreateSaleWithLineItem(ctx context.Context, sale *models.Sale, item *models.LineItem) error
	GetSaleByID(ctx context.Context, id int64) (*models.Sale, error)
	GetSaleByIdempotencyKey(ctx context.Context, sellerID int64, key string) (*models.Sale, error)
	ListSales(ctx context.Context) ([]models.Sale, error)
	ListSalesByBuyer(ctx context.Context, buyerID int64) ([]models.Sale, error)
	GetLineItemsBySaleID(ctx context.Context, saleID int64) ([]models.LineItem, error)
	UpdateLineItem(ctx context.Context, item *models.LineItem) error
	GetDeliveryBySaleID(ctx context.Context, saleID int64) (*models.Delivery, error)
}

// SaleEvents publishes sale events
type SaleEvents interface {
	PublishSaleCreated(ctx context.Context, event *models.SaleCreatedEvent) error
}

// IdempotencyCache remembers which sale a seller's idempotency key produced
type IdempotencyCache interface {
	GetIdempotencyKey(ctx context.Context, sellerID int64, key string) (int64, error)
	SetIdempotencyKey(ctx context.Context, sellerID int64, key string, saleID int64, ttl time.Duration) error
}

// SaleService handles sale business logic
type SaleService struct {
	store          SaleStore
	events         SaleEvents
	idempotency    IdempotencyCache
	idempotencyTTL time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewSaleService creates a new sale service. events and idempotency may be nil.
func NewSaleService(store SaleStore, events SaleEvents, idempotency IdempotencyCache, idempotencyTTL time.Duration) *SaleService {
	return &SaleService{
		store:          store,
		events:         events,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		now:            time.Now,
		logger:         util.GetLogger(),
	}
}

// CreateSaleRequest represents a request to sell one product line. Prices are
// in cents.
type CreateSaleRequest struct {
	SellerID       int64      `json:"-"`
	BuyerID        int64      `json:"buyer_id" binding:"required"`
	ProductID      int64      `json:"product_id"`
	UnitPrice      *int64     `json:"unit_price,omitempty"`
	Amount         *int       `json:"amount,omitempty"`
	DtSale         *time.Time `json:"dt_sale,omitempty"`
	IdempotencyKey string     `json:"-"`
}

// CreateSaleResponse represents the response after creating a sale
type CreateSaleResponse struct {
	SaleID    int64 `json:"sale_id"`
	UnitPrice int64 `json:"unit_price"`
	Amount    int   `json:"amount"`
	Replayed  bool  `json:"-"`
}

// CreateSaleWithLineItem creates a sale header and its single line item
// atomically
func (s *SaleService) CreateSaleWithLineItem(ctx context.Context, req *CreateSaleRequest) (*CreateSaleResponse, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.CreateSaleWithLineItem",
		attribute.Int64("seller_id", req.SellerID),
		attribute.Int64("product_id", req.ProductID),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		util.SaleCreationLatency.Observe(time.Since(start).Seconds())
	}()

	resp, err := s.createSale(ctx, req)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		util.RecordError(span, err)
		return nil, err
	}
	return resp, nil
}

func (s *SaleService) createSale(ctx context.Context, req *CreateSaleRequest) (*CreateSaleResponse, error) {
	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		return nil, apperr.InvalidInput("amount must be greater than zero")
	}

	if req.ProductID == 0 {
		return nil, apperr.InvalidInput("product_id is required")
	}

	if req.IdempotencyKey != "" {
		replay, err := s.findReplay(ctx, req.SellerID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			return replay, nil
		}
	}

	product, err := s.store.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	if err := s.requireUser(ctx, req.SellerID, "seller"); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, req.BuyerID, "buyer"); err != nil {
		return nil, err
	}

	price, err := ResolvePrice(product, req.UnitPrice)
	if err != nil {
		return nil, err
	}

	sale := &models.Sale{
		SellerID: req.SellerID,
		BuyerID:  req.BuyerID,
		DtSale:   s.now().UTC(),
	}
	if req.DtSale != nil {
		sale.DtSale = req.DtSale.UTC()
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		sale.IdempotencyKey = &key
	}

	item := &models.LineItem{
		ProductID: product.ID,
		UnitPrice: price,
		Amount:    amount,
	}

	if err := s.store.CreateSaleWithLineItem(ctx, sale, item); err != nil {
		if req.IdempotencyKey != "" && apperr.Is(err, apperr.KindConflict) {
			// A concurrent request with the same key won the insert.
			if replay, rerr := s.findReplay(ctx, req.SellerID, req.IdempotencyKey); rerr == nil && replay != nil {
				return replay, nil
			}
		}
		return nil, err
	}

	util.SalesCreatedTotal.Inc()
	s.logger.Info("sale created",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("seller_id", sale.SellerID),
		zap.Int64("buyer_id", sale.BuyerID),
		zap.Int64("product_id", item.ProductID),
	)

	s.remember(ctx, req.SellerID, req.IdempotencyKey, sale.ID)
	s.publishCreated(ctx, sale, item)

	return &CreateSaleResponse{
		SaleID:    sale.ID,
		UnitPrice: item.UnitPrice,
		Amount:    item.Amount,
	}, nil
}

func (s *SaleService) requireUser(ctx context.Context, id int64, role string) error {
	if id == 0 {
		return apperr.InvalidInput("%s_id is required", role)
	}
	exists, err := s.store.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("%s %d not found", role, id)
	}
	return nil
}

// findReplay returns the response of the sale the seller already created with
// key, or nil. Keys are scoped per seller; another seller's sale is never replayed.
func (s *SaleService) findReplay(ctx context.Context, sellerID int64, key string) (*CreateSaleResponse, error) {
	var sale *models.Sale

	if s.idempotency != nil {
		saleID, err := s.idempotency.GetIdempotencyKey(ctx, sellerID, key)
		if err != nil {
			s.logger.Warn("idempotency cache read failed", zap.Error(err))
		}
		if saleID != 0 {
			sale, err = s.store.GetSaleByID(ctx, saleID)
			if err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return nil, err
			}
			if sale != nil && sale.SellerID != sellerID {
				sale = nil
			}
		}
	}

	if sale == nil {
		var err error
		sale, err = s.store.GetSaleByIdempotencyKey(ctx, sellerID, key)
		if err != nil {
			return nil, err
		}
		if sale == nil {
			return nil, nil
		}
	}

	items, err := s.store.GetLineItemsBySaleID(ctx, sale.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("duplicate sale request detected",
		zap.String("idempotency_key", key),
		zap.Int64("seller_id", sellerID),
		zap.Int64("sale_id", sale.ID))

	resp := &CreateSaleResponse{SaleID: sale.ID, Replayed: true}
	if len(items) > 0 {
		resp.UnitPrice = items[0].UnitPrice
		resp.Amount = items[0].Amount
	}
	return resp, nil
}

func (s *SaleService) remember(ctx context.Context, sellerID int64, key string, saleID int64) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.SetIdempotencyKey(ctx, sellerID, key, saleID, s.idempotencyTTL); err != nil {
		s.logger.Warn("idempotency cache write failed", zap.Int64("sale_id", saleID), zap.Error(err))
	}
}

func (s *SaleService) publishCreated(ctx context.Context, sale *models.Sale, item *models.LineItem) {
	if s.events == nil {
		return
	}
	event := &models.SaleCreatedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeSaleCreated),
		SaleID:    sale.ID,
		SellerID:  sale.SellerID,
		BuyerID:   sale.BuyerID,
		ProductID: item.ProductID,
		UnitPrice: item.UnitPrice,
		Amount:    item.Amount,
	}
	if err := s.events.PublishSaleCreated(ctx, event); err != nil {
		s.logger.Error("failed to publish SaleCreated event", zap.Int64("sale_id", sale.ID), zap.Error(err))
	}
}

// GetSale retrieves a sale with its line items and delivery
func (s *SaleService) GetSale(ctx context.Context, saleID int64) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.GetSale")
	defer span.End()

	sale, err := s.store.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetLineItemsBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	delivery, err := s.store.GetDeliveryBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	sale.Delivery = delivery

	return sale, nil
}

// ListSales returns every sale, newest first
func (s *SaleService) ListSales(ctx context.Context) ([]models.Sale, error) {
	return s.store.ListSales(ctx)
}

// ListSalesByBuyer returns the purchases of a user
func (s *SaleService) ListSalesByBuyer(ctx context.Context, buyerID int64) ([]models.Sale, error) {
	exists, err := s.store.UserExists(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("user %d not found", buyerID)
	}
	return s.store.ListSalesByBuyer(ctx, buyerID)
}

// UpdateLineItemRequest patches the price or amount of a sale's line item
type UpdateLineItemRequest struct {
	UnitPrice *int64 `json:"unit_price,omitempty"`
	Amount    *int   `json:"amount,omitempty"`
}

// UpdateLineItem patches the line item of productID on saleID. Keys are
// immutable, only price and amount change.
func (s *SaleService) UpdateLineItem(ctx context.Context, saleID, productID int64, req *UpdateLineItemRequest) (*models.LineItem, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.UpdateLineItem")
	defer span.End()

	if req.UnitPrice == nil && req.Amount == nil {
		return nil, apperr.InvalidInput("unit_price or amount is required")
	}
	if req.UnitPrice != nil && *req.UnitPrice <= 0 {
		return nil, apperr.InvalidInput("unit_price must be greater than zero")
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return nil, apperr.InvalidInput("amount must be greater than zero")
	}

	if _, err := s.store.GetSaleByID(ctx, saleID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	items, err := s.store.GetLineItemsBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}

	var item *models.LineItem
	for i := range items {
		if items[i].ProductID == productID {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return nil, apperr.InvalidInput("product %d is not part of sale %d", productID, saleID)
	}

	if req.UnitPrice != nil {
		item.UnitPrice = *req.UnitPrice
	}
	if req.Amount != nil {
		item.Amount = *req.Amount
	}

	if err := s.store.UpdateLineItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}
