package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// UserFilter narrows ListUsers. Zero values are ignored.
type UserFilter struct {
	Name         string
	BirthDateMin *time.Time
	BirthDateMax *time.Time
}

// CreateUser inserts a user and assigns the given roles in one transaction.
// Role ids that do not exist are skipped.
func (s *Store) CreateUser(ctx context.Context, user *models.User, roleIDs []int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO users (name, email, password_hash, birth_date)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`

		if err := tx.GetContext(ctx, user, query,
			user.Name, user.Email, user.PasswordHash, user.BirthDate); err != nil {
			return translateError("create user", err)
		}

		if len(roleIDs) == 0 {
			return nil
		}
		return assignRoles(ctx, tx, user.ID, roleIDs)
	})
}

func assignRoles(ctx context.Context, tx *sqlx.Tx, userID int64, roleIDs []int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE id = ANY($2)
		ON CONFLICT DO NOTHING`,
		userID, pq.Array(roleIDs))
	return translateError("assign roles", err)
}

// AssignRolesToUser adds roles to an existing user; assignments that already
// exist are left untouched.
func (s *Store) AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return assignRoles(ctx, tx, userID, roleIDs)
	})
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get user", err)
	}
	return &user, nil
}

// GetUserByEmail returns nil when no user has the email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get user by email", err)
	}
	return &user, nil
}

// UserExists reports whether a user with the id exists
func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", id)
	if err != nil {
		return false, apperr.Internal("check user", err)
	}
	return exists, nil
}

// ListUsers returns users matching the filter ordered by id
func (s *Store) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error) {
	query := "SELECT * FROM users WHERE 1=1"
	args := []interface{}{}

	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		query += " AND name ILIKE $" + itoa(len(args))
	}
	if filter.BirthDateMin != nil {
		args = append(args, *filter.BirthDateMin)
		query += " AND birth_date > $" + itoa(len(args))
	}
	if filter.BirthDateMax != nil {
		args = append(args, *filter.BirthDateMax)
		query += " AND birth_date < $" + itoa(len(args))
	}
	query += " ORDER BY id"

	users := []models.User{}
	if err := s.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, apperr.Internal("list users", err)
	}
	return users, nil
}

// DeleteUser removes a user. Users referenced by sales cannot be deleted.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return translateDeleteError("delete user", "user", err)
	}
	return requireAffected(res, apperr.NotFound("user %d not found", id))
}
