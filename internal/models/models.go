package models

import "time"

// Permission vocabulary
const (
	PermissionRead   = "READ"
	PermissionWrite  = "WRITE"
	PermissionUpdate = "UPDATE"
	PermissionDelete = "DELETE"
	PermissionOwner  = "OWNER"
)

// RoleOwner is the role whose holders may manage roles and permissions.
const RoleOwner = "OWNER"

// User represents a back-office user
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	BirthDate    time.Time `db:"birth_date" json:"birth_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Role groups permissions
type Role struct {
	ID          int64        `db:"id" json:"id"`
	Description string       `db:"description" json:"description"`
	Permissions []Permission `db:"-" json:"permissions,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"-"`
}

// Permission is one entry of the permission vocabulary
type Permission struct {
	ID          int64  `db:"id" json:"id"`
	Description string `db:"description" json:"description"`
}

// RolePermission is a row of the role/permission assignment
type RolePermission struct {
	RoleID      int64  `db:"role_id"`
	Description string `db:"description"`
}

// Product represents a product in the catalog. Prices are in cents.
type Product struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	SuggestedPrice int64     `db:"suggested_price" json:"suggested_price"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Sale is the header of a sale between two users
type Sale struct {
	ID             int64      `db:"id" json:"id"`
	SellerID       int64      `db:"seller_id" json:"seller_id"`
	BuyerID        int64      `db:"buyer_id" json:"buyer_id"`
	DtSale         time.Time  `db:"dt_sale" json:"dt_sale"`
	IdempotencyKey *string    `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	Items          []LineItem `db:"-" json:"items,omitempty"`
	Delivery       *Delivery  `db:"-" json:"delivery,omitempty"`
}

// LineItem joins a sale and a product with the agreed price and quantity
type LineItem struct {
	ID        int64 `db:"id" json:"id"`
	SaleID    int64 `db:"sale_id" json:"sale_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
	Amount    int   `db:"amount" json:"amount"`
}

// State is a federative unit
type State struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Initials string `db:"initials" json:"initials"`
}

// City belongs to a state
type City struct {
	ID      int64  `db:"id" json:"id"`
	StateID int64  `db:"state_id" json:"state_id"`
	Name    string `db:"name" json:"name"`
}

// Address is a delivery destination. Cep holds exactly 8 digits.
type Address struct {
	ID         int64     `db:"id" json:"id"`
	CityID     int64     `db:"city_id" json:"city_id"`
	Street     string    `db:"street" json:"street"`
	Number     int       `db:"number" json:"number"`
	Complement string    `db:"complement" json:"complement"`
	Cep        string    `db:"cep" json:"cep"`
	CreatedAt  time.Time `db:"created_at" json:"-"`
}

// Delivery books the shipping of a sale; at most one per sale
type Delivery struct {
	ID               int64     `db:"id" json:"id"`
	SaleID           int64     `db:"sale_id" json:"sale_id"`
	AddressID        int64     `db:"address_id" json:"address_id"`
	DeliveryForecast time.Time `db:"delivery_forecast" json:"delivery_forecast"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for idempotency of consumed events
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
