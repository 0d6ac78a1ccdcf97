package worker

import (
	"context"

	"marketplace-backoffice/internal/broker"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/util"

	"go.uber.org/zap"
)

// EventLedger records which events were already applied
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// CacheInvalidator drops the cached permissions of a role
type CacheInvalidator interface {
	Invalidate(ctx context.Context, roleID int64) error
}

// PermissionCacheWorker invalidates cached role permissions when a role's
// permission set changes, so every instance stops using the stale set
type PermissionCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       EventLedger
	cache        CacheInvalidator
	logger       *zap.Logger
}

// NewPermissionCacheWorker creates a new permission cache worker
func NewPermissionCacheWorker(
	consumer *broker.Consumer,
	ledger EventLedger,
	cache CacheInvalidator,
) *PermissionCacheWorker {
	w := &PermissionCacheWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ledger:       ledger,
		cache:        cache,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnRolePermissionsChanged(w.HandleRolePermissionsChanged)
	return w
}

// Start starts the worker
func (w *PermissionCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("starting permission cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PermissionCacheWorker) Stop() error {
	w.logger.Info("stopping permission cache worker")
	return w.consumer.Close()
}

// HandleRolePermissionsChanged invalidates the role once per event id
func (w *PermissionCacheWorker) HandleRolePermissionsChanged(ctx context.Context, event *models.RolePermissionsChangedEvent) error {
	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := w.cache.Invalidate(ctx, event.RoleID); err != nil {
		return err
	}

	w.logger.Info("role permissions invalidated", zap.Int64("role_id", event.RoleID))
	return w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType)
}
