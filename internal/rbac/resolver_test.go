package rbac

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"marketplace-backoffice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoleStore struct {
	roles   map[int64]string
	grants  map[int64][]string
	calls   int
	loadErr error
}

func (f *fakeRoleStore) PermissionsForRoles(_ context.Context, roleIDs []int64) ([]models.RolePermission, error) {
	f.calls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var rows []models.RolePermission
	for _, id := range roleIDs {
		for _, p := range f.grants[id] {
			rows = append(rows, models.RolePermission{RoleID: id, Description: p})
		}
	}
	return rows, nil
}

func (f *fakeRoleStore) GetRolesByIDs(_ context.Context, ids []int64) ([]models.Role, error) {
	var out []models.Role
	for _, id := range ids {
		if d, ok := f.roles[id]; ok {
			out = append(out, models.Role{ID: id, Description: d})
		}
	}
	return out, nil
}

type fakeCache struct {
	data    map[int64][]string
	readErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[int64][]string{}}
}

func (c *fakeCache) GetRolePermissions(_ context.Context, roleID int64) ([]string, bool, error) {
	if c.readErr != nil {
		return nil, false, c.readErr
	}
	p, ok := c.data[roleID]
	return p, ok, nil
}

func (c *fakeCache) SetRolePermissions(_ context.Context, roleID int64, perms []string, _ time.Duration) error {
	c.data[roleID] = append([]string{}, perms...)
	return nil
}

func (c *fakeCache) InvalidateRole(_ context.Context, roleID int64) error {
	delete(c.data, roleID)
	return nil
}

func TestResolve_UnionOfRoles(t *testing.T) {
	store := &fakeRoleStore{grants: map[int64][]string{
		1: {models.PermissionRead},
		2: {models.PermissionRead, models.PermissionWrite},
	}}
	r := NewResolver(store, nil, time.Minute)

	got, err := r.Resolve(context.Background(), []int64{1, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermissionRead, models.PermissionWrite}, got.Sorted())
}

func TestResolve_EmptyAndUnknownRoles(t *testing.T) {
	store := &fakeRoleStore{grants: map[int64][]string{1: {models.PermissionRead}}}
	r := NewResolver(store, nil, time.Minute)

	got, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, store.calls)

	got, err = r.Resolve(context.Background(), []int64{42, 43})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	store := &fakeRoleStore{loadErr: errors.New("connection refused")}
	r := NewResolver(store, nil, time.Minute)

	_, err := r.Resolve(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestResolve_UsesCache(t *testing.T) {
	store := &fakeRoleStore{grants: map[int64][]string{
		1: {models.PermissionUpdate},
		2: {},
	}}
	cache := newFakeCache()
	r := NewResolver(store, cache, time.Minute)
	ctx := context.Background()

	first, err := r.Resolve(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)

	second, err := r.Resolve(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls, "cached roles, including empty ones, must not hit the store")
	assert.Equal(t, first, second)

	store.grants[1] = []string{models.PermissionDelete}
	require.NoError(t, r.Invalidate(ctx, 1))

	third, err := r.Resolve(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, []string{models.PermissionDelete}, third.Sorted())
}

func TestResolve_CacheFailureFallsBackToStore(t *testing.T) {
	store := &fakeRoleStore{grants: map[int64][]string{1: {models.PermissionRead}}}
	cache := newFakeCache()
	cache.readErr = errors.New("redis down")
	r := NewResolver(store, cache, time.Minute)

	got, err := r.Resolve(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.True(t, got.Has(models.PermissionRead))
}

func TestRoleDescriptions(t *testing.T) {
	store := &fakeRoleStore{roles: map[int64]string{1: "OWNER", 2: "SELLER"}}
	r := NewResolver(store, nil, time.Minute)

	got, err := r.RoleDescriptions(context.Background(), []int64{2, 99, 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"OWNER", "SELLER"}, got)

	got, err = r.RoleDescriptions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// Authorize must allow iff the permissions reachable from the roles intersect
// the requirement, for arbitrary role/permission graphs.
func TestAuthorize_RandomGraphs(t *testing.T) {
	vocabulary := []string{
		models.PermissionRead,
		models.PermissionWrite,
		models.PermissionUpdate,
		models.PermissionDelete,
		models.PermissionOwner,
	}
	rng := rand.New(rand.NewSource(20240611))

	for i := 0; i < 500; i++ {
		store := &fakeRoleStore{grants: map[int64][]string{}}
		roleCount := rng.Intn(6)
		for id := int64(1); id <= int64(roleCount); id++ {
			for _, p := range vocabulary {
				if rng.Intn(3) == 0 {
					store.grants[id] = append(store.grants[id], p)
				}
			}
		}

		var held []int64
		for j := rng.Intn(4); j > 0; j-- {
			held = append(held, int64(rng.Intn(roleCount+2)+1))
		}

		var required []string
		for _, p := range vocabulary {
			if rng.Intn(2) == 0 {
				required = append(required, p)
			}
		}

		expected := false
		for _, id := range held {
			for _, p := range store.grants[id] {
				for _, req := range required {
					if p == req {
						expected = true
					}
				}
			}
		}

		var cache PermissionCache
		if i%2 == 0 {
			cache = newFakeCache()
		}
		granted, err := NewResolver(store, cache, time.Minute).Resolve(context.Background(), held)
		require.NoError(t, err)
		assert.Equal(t, expected, Authorize(granted, required),
			"roles=%v grants=%v required=%v", held, store.grants, required)
	}
}
