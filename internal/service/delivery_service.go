package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/broker"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DeliveryStore is the persistence used by the delivery scheduler
type DeliveryStore interface {
	GetSaleByID(ctx context.Context, id int64) (*models.Sale, error)
	GetAddressByID(ctx context.Context, id int64) (*models.Address, error)
	GetDeliveryBySaleID(ctx context.Context, saleID int64) (*models.Delivery, error)
	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
}

// DeliveryEvents publishes delivery events
type DeliveryEvents interface {
	PublishDeliveryScheduled(ctx context.Context, event *models.DeliveryScheduledEvent) error
}

// Locker is a best-effort distributed lock. AcquireLock returns a token
// identifying the holder, which ReleaseLock requires.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

const (
	defaultLockAttempts = 5
	defaultLockBackoff  = 50 * time.Millisecond
)

// DeliveryService books deliveries for sales
type DeliveryService struct {
	store   DeliveryStore
	events  DeliveryEvents
	locker  Locker
	lockTTL time.Duration

	// contended locks are retried this many times before scheduling proceeds unlocked
	lockAttempts int
	lockBackoff  time.Duration

	now    func() time.Time
	logger *zap.Logger
}

// NewDeliveryService creates a new delivery service. events and locker may be nil.
func NewDeliveryService(store DeliveryStore, events DeliveryEvents, locker Locker, lockTTL time.Duration) *DeliveryService {
	return &DeliveryService{
		store:   store,
		events:  events,
		locker:  locker,
		lockTTL: lockTTL,

		lockAttempts: defaultLockAttempts,
		lockBackoff:  defaultLockBackoff,

		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// ScheduleDeliveryRequest represents a request to book a delivery
type ScheduleDeliveryRequest struct {
	SaleID           int64  `json:"-"`
	AddressID        *int64 `json:"address_id"`
	DeliveryForecast string `json:"delivery_forecast"`
}

// ParseForecast accepts RFC3339 timestamps and yyyy-mm-dd dates (UTC midnight)
func ParseForecast(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperr.InvalidInput("delivery_forecast is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.InvalidInput("delivery_forecast must be RFC3339 or yyyy-mm-dd")
}

// ScheduleDelivery books the single delivery of a sale
func (s *DeliveryService) ScheduleDelivery(ctx context.Context, req *ScheduleDeliveryRequest) (*models.Delivery, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.ScheduleDelivery",
		attribute.Int64("sale_id", req.SaleID),
	)
	defer span.End()

	delivery, err := s.schedule(ctx, req)
	if err != nil {
		util.DeliveriesRejectedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		util.RecordError(span, err)
		return nil, err
	}
	return delivery, nil
}

func (s *DeliveryService) schedule(ctx context.Context, req *ScheduleDeliveryRequest) (*models.Delivery, error) {
	if req.AddressID == nil || *req.AddressID == 0 {
		return nil, apperr.InvalidInput("address_id is required")
	}

	if _, err := s.store.GetSaleByID(ctx, req.SaleID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetAddressByID(ctx, *req.AddressID); err != nil {
		return nil, err
	}

	forecast, err := ParseForecast(req.DeliveryForecast)
	if err != nil {
		return nil, err
	}
	if forecast.Before(s.now()) {
		return nil, apperr.InvalidInput("delivery_forecast must not be in the past")
	}

	unlock, err := s.lockSale(ctx, req.SaleID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.store.GetDeliveryBySaleID(ctx, req.SaleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("a delivery is already scheduled for this sale")
	}

	delivery := &models.Delivery{
		SaleID:           req.SaleID,
		AddressID:        *req.AddressID,
		DeliveryForecast: forecast,
	}
	// The unique constraint on sale_id settles races the lock did not catch.
	if err := s.store.CreateDelivery(ctx, delivery); err != nil {
		return nil, err
	}

	util.DeliveriesScheduledTotal.Inc()
	s.logger.Info("delivery scheduled",
		zap.Int64("delivery_id", delivery.ID),
		zap.Int64("sale_id", delivery.SaleID),
		zap.Int64("address_id", delivery.AddressID),
	)
	s.publishScheduled(ctx, delivery)

	return delivery, nil
}

// lockSale takes the per-sale scheduling lock. The lock only serializes
// concurrent bookings; it never rejects one. When it stays contended or the
// backend is unavailable, scheduling proceeds and the unique constraint on
// deliveries.sale_id decides.
func (s *DeliveryService) lockSale(ctx context.Context, saleID int64) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := fmt.Sprintf("delivery:sale:%d", saleID)
	for attempt := 1; ; attempt++ {
		token, acquired, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			s.logger.Warn("delivery lock unavailable", zap.Int64("sale_id", saleID), zap.Error(err))
			return noop, nil
		}
		if acquired {
			return func() {
				if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
					s.logger.Warn("failed to release delivery lock", zap.Int64("sale_id", saleID), zap.Error(err))
				}
			}, nil
		}
		if attempt >= s.lockAttempts {
			s.logger.Warn("delivery lock still held, scheduling without it",
				zap.Int64("sale_id", saleID), zap.Int("attempts", attempt))
			return noop, nil
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Internal("wait for delivery lock", ctx.Err())
		case <-time.After(s.lockBackoff):
		}
	}
}

func (s *DeliveryService) publishScheduled(ctx context.Context, d *models.Delivery) {
	if s.events == nil {
		return
	}
	event := &models.DeliveryScheduledEvent{
		BaseEvent:        broker.NewBaseEvent(models.EventTypeDeliveryScheduled),
		DeliveryID:       d.ID,
		SaleID:           d.SaleID,
		AddressID:        d.AddressID,
		DeliveryForecast: d.DeliveryForecast,
	}
	if err := s.events.PublishDeliveryScheduled(ctx, event); err != nil {
		s.logger.Error("failed to publish DeliveryScheduled event", zap.Int64("sale_id", d.SaleID), zap.Error(err))
	}
}

// GetDelivery returns the delivery of a sale
func (s *DeliveryService) GetDelivery(ctx context.Context, saleID int64) (*models.Delivery, error) {
	if _, err := s.store.GetSaleByID(ctx, saleID); err != nil {
		return nil, err
	}
	delivery, err := s.store.GetDeliveryBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, apperr.NotFound("sale %d has no delivery", saleID)
	}
	return delivery, nil
}
