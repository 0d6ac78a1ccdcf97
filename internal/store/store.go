package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-backoffice/internal/apperr"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres error codes inspected by translateError
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// constraintEntities names the referenced entity of each foreign key so a
// violation on insert can be reported as "<entity> not found".
var constraintEntities = map[string]string{
	"sales_seller_id_fkey":                 "seller",
	"sales_buyer_id_fkey":                  "buyer",
	"line_items_sale_id_fkey":              "sale",
	"line_items_product_id_fkey":           "product",
	"deliveries_sale_id_fkey":              "sale",
	"deliveries_address_id_fkey":           "address",
	"addresses_city_id_fkey":               "city",
	"users_roles_user_id_fkey":             "user",
	"users_roles_role_id_fkey":             "role",
	"roles_permissions_role_id_fkey":       "role",
	"roles_permissions_permission_id_fkey": "permission",
}

var uniqueMessages = map[string]string{
	"deliveries_sale_id_key":              "a delivery is already scheduled for this sale",
	"products_name_key":                   "a product with this name already exists",
	"users_email_key":                     "a user with this email already exists",
	"roles_description_key":               "a role with this description already exists",
	"permissions_description_key":         "a permission with this description already exists",
	"sales_seller_id_idempotency_key_key": "a sale with this idempotency key already exists",
	"line_items_sale_id_product_id_key":   "the product is already on this sale",
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpenConns int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection pool
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction. Any error returned by fn rolls the
// transaction back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateError("commit transaction", err)
	}
	return nil
}

// translateError classifies a write error by the constraint that fired.
// Foreign key violations mean a referenced row does not exist.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgForeignKeyViolation:
			entity, ok := constraintEntities[pqErr.Constraint]
			if !ok {
				entity = "referenced entity"
			}
			return &apperr.Error{Kind: apperr.KindNotFound, Message: entity + " not found", Err: err}
		case pgUniqueViolation:
			msg, ok := uniqueMessages[pqErr.Constraint]
			if !ok {
				msg = "resource already exists"
			}
			return &apperr.Error{Kind: apperr.KindConflict, Message: msg, Err: err}
		case pgCheckViolation:
			return &apperr.Error{Kind: apperr.KindInvalidInput, Message: "value out of range: " + pqErr.Constraint, Err: err}
		}
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(op, err)
}

// translateDeleteError reports a foreign key violation on delete as a
// conflict: the row is still referenced.
func translateDeleteError(op, entity string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
		return &apperr.Error{Kind: apperr.KindConflict, Message: entity + " is still referenced and cannot be deleted", Err: err}
	}
	return translateError(op, err)
}
