// Package rbac resolves the permissions granted to a set of roles.
package rbac

import (
	"context"
	"sort"
	"time"

	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/util"

	"go.uber.org/zap"
)

// PermissionSet is a set of permission descriptions
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from descriptions, collapsing duplicates
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether perm is in the set
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Intersects reports whether at least one of required is granted
func (s PermissionSet) Intersects(required []string) bool {
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Sorted returns the descriptions in lexical order
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RoleStore is the persistence the resolver reads from
type RoleStore interface {
	PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]models.RolePermission, error)
	GetRolesByIDs(ctx context.Context, ids []int64) ([]models.Role, error)
}

// PermissionCache caches the permission descriptions of single roles.
// A miss is reported with ok == false.
type PermissionCache interface {
	GetRolePermissions(ctx context.Context, roleID int64) (perms []string, ok bool, err error)
	SetRolePermissions(ctx context.Context, roleID int64, perms []string, ttl time.Duration) error
	InvalidateRole(ctx context.Context, roleID int64) error
}

// Resolver computes the union of permissions reachable from role ids
type Resolver struct {
	store    RoleStore
	cache    PermissionCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(store RoleStore, cache PermissionCache, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// Resolve returns the union of permissions granted by roleIDs. No roles, or
// only unknown roles, yield an empty set.
func (r *Resolver) Resolve(ctx context.Context, roleIDs []int64) (PermissionSet, error) {
	granted := PermissionSet{}
	ids := dedupe(roleIDs)
	if len(ids) == 0 {
		return granted, nil
	}

	missing := ids
	if r.cache != nil {
		missing = r.fromCache(ctx, ids, granted)
		if len(missing) == 0 {
			return granted, nil
		}
	}

	rows, err := r.store.PermissionsForRoles(ctx, missing)
	if err != nil {
		return nil, err
	}

	perRole := make(map[int64][]string, len(missing))
	for _, row := range rows {
		granted[row.Description] = struct{}{}
		perRole[row.RoleID] = append(perRole[row.RoleID], row.Description)
	}

	if r.cache != nil {
		r.fillCache(ctx, missing, perRole)
	}

	return granted, nil
}

// fromCache adds cached permissions to granted and returns the roles that
// still have to be loaded. Cache failures degrade to a full load.
func (r *Resolver) fromCache(ctx context.Context, ids []int64, granted PermissionSet) []int64 {
	var missing []int64
	for _, id := range ids {
		perms, ok, err := r.cache.GetRolePermissions(ctx, id)
		if err != nil {
			r.logger.Warn("permission cache read failed", zap.Int64("role_id", id), zap.Error(err))
			util.PermissionCacheTotal.WithLabelValues("error").Inc()
			missing = append(missing, id)
			continue
		}
		if !ok {
			util.PermissionCacheTotal.WithLabelValues("miss").Inc()
			missing = append(missing, id)
			continue
		}
		util.PermissionCacheTotal.WithLabelValues("hit").Inc()
		for _, p := range perms {
			granted[p] = struct{}{}
		}
	}
	return missing
}

func (r *Resolver) fillCache(ctx context.Context, ids []int64, perRole map[int64][]string) {
	for _, id := range ids {
		if err := r.cache.SetRolePermissions(ctx, id, perRole[id], r.cacheTTL); err != nil {
			r.logger.Warn("permission cache write failed", zap.Int64("role_id", id), zap.Error(err))
		}
	}
}

// Invalidate drops the cached permissions of a role
func (r *Resolver) Invalidate(ctx context.Context, roleID int64) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.InvalidateRole(ctx, roleID)
}

// RoleDescriptions returns the descriptions of the existing roles among roleIDs
func (r *Resolver) RoleDescriptions(ctx context.Context, roleIDs []int64) ([]string, error) {
	ids := dedupe(roleIDs)
	if len(ids) == 0 {
		return []string{}, nil
	}

	roles, err := r.store.GetRolesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, role.Description)
	}
	return out, nil
}

// Authorize reports whether granted intersects required
func Authorize(granted PermissionSet, required []string) bool {
	return granted.Intersects(required)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
