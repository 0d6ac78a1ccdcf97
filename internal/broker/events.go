package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is the part of a producer the publisher needs
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	sales EventWriter
	roles EventWriter
}

// NewEventPublisher creates a new event publisher. Sale and delivery events
// go to sales, role events to roles.
func NewEventPublisher(sales, roles EventWriter) *EventPublisher {
	return &EventPublisher{sales: sales, roles: roles}
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishSaleCreated publishes SaleCreated event
func (ep *EventPublisher) PublishSaleCreated(ctx context.Context, event *models.SaleCreatedEvent) error {
	key := fmt.Sprintf("sale-%d", event.SaleID)
	return ep.sales.PublishEvent(ctx, key, event)
}

// PublishDeliveryScheduled publishes DeliveryScheduled event, keyed by sale
// so it is ordered after the sale's creation
func (ep *EventPublisher) PublishDeliveryScheduled(ctx context.Context, event *models.DeliveryScheduledEvent) error {
	key := fmt.Sprintf("sale-%d", event.SaleID)
	return ep.sales.PublishEvent(ctx, key, event)
}

// PublishRolePermissionsChanged publishes RolePermissionsChanged event
func (ep *EventPublisher) PublishRolePermissionsChanged(ctx context.Context, event *models.RolePermissionsChangedEvent) error {
	key := fmt.Sprintf("role-%d", event.RoleID)
	return ep.roles.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onRolePermissionsChanged func(context.Context, *models.RolePermissionsChangedEvent) error
	logger                   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnRolePermissionsChanged registers a handler for RolePermissionsChanged events
func (eh *EventHandler) OnRolePermissionsChanged(handler func(context.Context, *models.RolePermissionsChangedEvent) error) {
	eh.onRolePermissionsChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID),
	)

	switch baseEvent.EventType {
	case models.EventTypeRolePermissionsChanged:
		if eh.onRolePermissionsChanged != nil {
			var event models.RolePermissionsChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RolePermissionsChanged event: %w", err)
			}
			return eh.onRolePermissionsChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
