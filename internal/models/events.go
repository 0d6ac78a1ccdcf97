package models

import "time"

// Event types
const (
	EventTypeSaleCreated            = "SALE_CREATED"
	EventTypeDeliveryScheduled      = "DELIVERY_SCHEDULED"
	EventTypeRolePermissionsChanged = "ROLE_PERMISSIONS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCreatedEvent published when a sale and its line item are committed
type SaleCreatedEvent struct {
	BaseEvent
	SaleID    int64 `json:"sale_id"`
	SellerID  int64 `json:"seller_id"`
	BuyerID   int64 `json:"buyer_id"`
	ProductID int64 `json:"product_id"`
	UnitPrice int64 `json:"unit_price"`
	Amount    int   `json:"amount"`
}

// DeliveryScheduledEvent published when a delivery is booked
type DeliveryScheduledEvent struct {
	BaseEvent
	DeliveryID       int64     `json:"delivery_id"`
	SaleID           int64     `json:"sale_id"`
	AddressID        int64     `json:"address_id"`
	DeliveryForecast time.Time `json:"delivery_forecast"`
}

// RolePermissionsChangedEvent published when a role's permission set changes
type RolePermissionsChangedEvent struct {
	BaseEvent
	RoleID int64 `json:"role_id"`
}
