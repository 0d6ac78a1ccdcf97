package service

import (
	"context"
	"strings"
	"unicode"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/broker"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/util"

	"go.uber.org/zap"
)

// RoleStore is the persistence used for role management
type RoleStore interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	GetRoleByID(ctx context.Context, id int64) (*models.Role, error)
	GetRoleByDescription(ctx context.Context, description string) (*models.Role, error)
	CreateRole(ctx context.Context, role *models.Role, permissionIDs []int64) error
	AddPermissionsToRole(ctx context.Context, roleID int64, permissionIDs []int64) (int64, error)
	GetPermissionsByIDs(ctx context.Context, ids []int64) ([]models.Permission, error)
	CreatePermission(ctx context.Context, perm *models.Permission) error
}

// RoleEvents publishes role events
type RoleEvents interface {
	PublishRolePermissionsChanged(ctx context.Context, event *models.RolePermissionsChangedEvent) error
}

// RoleService manages roles and the permission vocabulary
type RoleService struct {
	store  RoleStore
	events RoleEvents
	logger *zap.Logger
}

// NewRoleService creates a role service. events may be nil.
func NewRoleService(store RoleStore, events RoleEvents) *RoleService {
	return &RoleService{store: store, events: events, logger: util.GetLogger()}
}

// CreateRoleRequest represents a request to create a role
type CreateRoleRequest struct {
	Description string  `json:"description" binding:"required"`
	Permissions []int64 `json:"permissions"`
}

// PermissionIDsRequest lists permission ids to add to a role
type PermissionIDsRequest struct {
	Permissions []int64 `json:"permissions" binding:"required"`
}

// CreatePermissionRequest represents a request to create a permission
type CreatePermissionRequest struct {
	Description string `json:"description" binding:"required"`
}

var vocabulary = map[string]struct{}{
	models.PermissionRead:   {},
	models.PermissionWrite:  {},
	models.PermissionUpdate: {},
	models.PermissionDelete: {},
	models.PermissionOwner:  {},
}

func (s *RoleService) ListRoles(ctx context.Context) ([]models.Role, error) {
	return s.store.ListRoles(ctx)
}

// CreateRole creates a role with the existing permissions among the ids
func (s *RoleService) CreateRole(ctx context.Context, req *CreateRoleRequest) (*models.Role, error) {
	description := strings.ToUpper(strings.TrimSpace(req.Description))
	if description == "" {
		return nil, apperr.InvalidInput("description is required")
	}
	if isNumeric(description) {
		return nil, apperr.InvalidInput("description must not be numeric")
	}

	existing, err := s.store.GetRoleByDescription(ctx, description)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("role %s already exists", description)
	}

	role := &models.Role{Description: description}
	if err := s.store.CreateRole(ctx, role, dedupeIDs(req.Permissions)); err != nil {
		return nil, err
	}

	s.logger.Info("role created", zap.Int64("role_id", role.ID), zap.String("description", description))
	return s.store.GetRoleByID(ctx, role.ID)
}

// AddPermissions links permissions to a role. Permissions already linked are
// skipped; at least one of the ids must exist.
func (s *RoleService) AddPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (*models.Role, error) {
	if len(permissionIDs) == 0 {
		return nil, apperr.InvalidInput("permissions is required")
	}
	if _, err := s.store.GetRoleByID(ctx, roleID); err != nil {
		return nil, err
	}

	ids := dedupeIDs(permissionIDs)
	perms, err := s.store.GetPermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return nil, apperr.InvalidInput("none of the permissions exist")
	}

	added, err := s.store.AddPermissionsToRole(ctx, roleID, ids)
	if err != nil {
		return nil, err
	}

	if added > 0 {
		s.logger.Info("role permissions changed", zap.Int64("role_id", roleID), zap.Int64("added", added))
		s.publishChanged(ctx, roleID)
	}
	return s.store.GetRoleByID(ctx, roleID)
}

func (s *RoleService) publishChanged(ctx context.Context, roleID int64) {
	if s.events == nil {
		return
	}
	event := &models.RolePermissionsChangedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeRolePermissionsChanged),
		RoleID:    roleID,
	}
	if err := s.events.PublishRolePermissionsChanged(ctx, event); err != nil {
		s.logger.Error("failed to publish RolePermissionsChanged event", zap.Int64("role_id", roleID), zap.Error(err))
	}
}

// CreatePermission adds an entry of the permission vocabulary
func (s *RoleService) CreatePermission(ctx context.Context, req *CreatePermissionRequest) (*models.Permission, error) {
	description := strings.ToUpper(strings.TrimSpace(req.Description))
	if _, ok := vocabulary[description]; !ok {
		return nil, apperr.InvalidInput("permission must be one of READ, WRITE, UPDATE, DELETE or OWNER")
	}

	perm := &models.Permission{Description: description}
	if err := s.store.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
