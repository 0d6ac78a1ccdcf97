package store

import (
	"context"
	"database/sql"
	"errors"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PermissionsForRoles returns one row per (role, permission) assignment of the
// given roles. Unknown role ids simply produce no rows.
func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]models.RolePermission, error) {
	rows := []models.RolePermission{}
	if len(roleIDs) == 0 {
		return rows, nil
	}

	query, args, err := sqlx.In(`
		SELECT rp.role_id, p.description
		FROM roles_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (?)`, roleIDs)
	if err != nil {
		return nil, apperr.Internal("build permissions query", err)
	}
	query = s.db.Rebind(query)

	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Internal("load role permissions", err)
	}
	return rows, nil
}

// GetRolesByIDs loads the roles with the given ids
func (s *Store) GetRolesByIDs(ctx context.Context, ids []int64) ([]models.Role, error) {
	roles := []models.Role{}
	if len(ids) == 0 {
		return roles, nil
	}

	query, args, err := sqlx.In("SELECT * FROM roles WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, apperr.Internal("build roles query", err)
	}
	query = s.db.Rebind(query)

	if err := s.db.SelectContext(ctx, &roles, query, args...); err != nil {
		return nil, apperr.Internal("load roles", err)
	}
	return roles, nil
}

// GetRoleByID retrieves a role with its permissions
func (s *Store) GetRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	var role models.Role
	err := s.db.GetContext(ctx, &role, "SELECT * FROM roles WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("role %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("get role", err)
	}

	role.Permissions, err = s.permissionsOfRole(ctx, id)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRoleByDescription returns nil when no role has the description
func (s *Store) GetRoleByDescription(ctx context.Context, description string) (*models.Role, error) {
	var role models.Role
	err := s.db.GetContext(ctx, &role, "SELECT * FROM roles WHERE description = $1", description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get role by description", err)
	}
	return &role, nil
}

func (s *Store) permissionsOfRole(ctx context.Context, roleID int64) ([]models.Permission, error) {
	perms := []models.Permission{}
	err := s.db.SelectContext(ctx, &perms, `
		SELECT p.id, p.description
		FROM permissions p
		JOIN roles_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.id`, roleID)
	if err != nil {
		return nil, apperr.Internal("load permissions of role", err)
	}
	return perms, nil
}

// ListRoles returns every role with its permissions
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles := []models.Role{}
	if err := s.db.SelectContext(ctx, &roles, "SELECT * FROM roles ORDER BY id"); err != nil {
		return nil, apperr.Internal("list roles", err)
	}

	for i := range roles {
		perms, err := s.permissionsOfRole(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// RoleIDsForUser returns the ids of the roles assigned to a user
func (s *Store) RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	err := s.db.SelectContext(ctx, &ids,
		"SELECT role_id FROM users_roles WHERE user_id = $1 ORDER BY role_id", userID)
	if err != nil {
		return nil, apperr.Internal("load user roles", err)
	}
	return ids, nil
}

// CreateRole inserts a role and links the existing permissions among
// permissionIDs in one transaction
func (s *Store) CreateRole(ctx context.Context, role *models.Role, permissionIDs []int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, role,
			"INSERT INTO roles (description) VALUES ($1) RETURNING id, created_at", role.Description)
		if err != nil {
			return translateError("create role", err)
		}

		if len(permissionIDs) == 0 {
			return nil
		}
		_, err = linkPermissions(ctx, tx, role.ID, permissionIDs)
		return err
	})
}

// AddPermissionsToRole links permissions to a role, skipping those already
// linked. It returns how many links were created.
func (s *Store) AddPermissionsToRole(ctx context.Context, roleID int64, permissionIDs []int64) (int64, error) {
	var added int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		added, err = linkPermissions(ctx, tx, roleID, permissionIDs)
		return err
	})
	return added, err
}

func linkPermissions(ctx context.Context, tx *sqlx.Tx, roleID int64, permissionIDs []int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO roles_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE id = ANY($2)
		ON CONFLICT DO NOTHING`,
		roleID, pq.Array(permissionIDs))
	if err != nil {
		return 0, translateError("link permissions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Internal("rows affected", err)
	}
	return n, nil
}

// GetPermissionsByIDs loads the permissions with the given ids
func (s *Store) GetPermissionsByIDs(ctx context.Context, ids []int64) ([]models.Permission, error) {
	perms := []models.Permission{}
	if len(ids) == 0 {
		return perms, nil
	}
	err := s.db.SelectContext(ctx, &perms,
		"SELECT id, description FROM permissions WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	if err != nil {
		return nil, apperr.Internal("load permissions", err)
	}
	return perms, nil
}

// CreatePermission inserts a permission of the vocabulary
func (s *Store) CreatePermission(ctx context.Context, perm *models.Permission) error {
	err := s.db.GetContext(ctx, &perm.ID,
		"INSERT INTO permissions (description) VALUES ($1) RETURNING id", perm.Description)
	return translateError("create permission", err)
}
