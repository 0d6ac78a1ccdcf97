package broker

import (
	"context"
	"encoding/json"
	"testing"

	"marketplace-backoffice/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	keys   []string
	events []interface{}
}

func (w *recordingWriter) PublishEvent(_ context.Context, key string, event interface{}) error {
	w.keys = append(w.keys, key)
	w.events = append(w.events, event)
	return nil
}

func TestEventPublisher_RoutesByTopic(t *testing.T) {
	sales := &recordingWriter{}
	roles := &recordingWriter{}
	pub := NewEventPublisher(sales, roles)
	ctx := context.Background()

	require.NoError(t, pub.PublishSaleCreated(ctx, &models.SaleCreatedEvent{SaleID: 5}))
	require.NoError(t, pub.PublishDeliveryScheduled(ctx, &models.DeliveryScheduledEvent{SaleID: 5, DeliveryID: 9}))
	require.NoError(t, pub.PublishRolePermissionsChanged(ctx, &models.RolePermissionsChangedEvent{RoleID: 3}))

	assert.Equal(t, []string{"sale-5", "sale-5"}, sales.keys)
	assert.Equal(t, []string{"role-3"}, roles.keys)
}

func TestNewBaseEvent(t *testing.T) {
	a := NewBaseEvent(models.EventTypeSaleCreated)
	b := NewBaseEvent(models.EventTypeSaleCreated)

	assert.Equal(t, models.EventTypeSaleCreated, a.EventType)
	assert.NotEmpty(t, a.EventID)
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.False(t, a.Timestamp.IsZero())
}

func TestHandleMessage_RolePermissionsChanged(t *testing.T) {
	event := models.RolePermissionsChangedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeRolePermissionsChanged),
		RoleID:    7,
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.RolePermissionsChangedEvent
	h := NewEventHandler()
	h.OnRolePermissionsChanged(func(_ context.Context, e *models.RolePermissionsChangedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.RoleID)
	assert.Equal(t, event.EventID, got.EventID)
}

func TestHandleMessage_IgnoresOtherEvents(t *testing.T) {
	payload, err := json.Marshal(models.SaleCreatedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeSaleCreated),
		SaleID:    1,
	})
	require.NoError(t, err)

	called := false
	h := NewEventHandler()
	h.OnRolePermissionsChanged(func(context.Context, *models.RolePermissionsChangedEvent) error {
		called = true
		return nil
	})

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	assert.False(t, called)
}

func TestHandleMessage_RejectsGarbage(t *testing.T) {
	h := NewEventHandler()
	err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
