package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/store"
)

// memStore is an in-memory stand-in for *store.Store that keeps the same
// constraint semantics the service layer depends on
type memStore struct {
	mu sync.Mutex

	nextID     int64
	users      map[int64]*models.User
	userRoles  map[int64][]int64
	roles      map[int64]*models.Role
	perms      map[int64]models.Permission
	products   map[int64]*models.Product
	sales      map[int64]*models.Sale
	items      map[int64][]models.LineItem
	deliveries map[int64]*models.Delivery
	addresses  map[int64]*models.Address
	states     map[int64]*models.State
	cities     map[int64]*models.City

	failLineItem error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:     100,
		users:      map[int64]*models.User{},
		userRoles:  map[int64][]int64{},
		roles:      map[int64]*models.Role{},
		perms:      map[int64]models.Permission{},
		products:   map[int64]*models.Product{},
		sales:      map[int64]*models.Sale{},
		items:      map[int64][]models.LineItem{},
		deliveries: map[int64]*models.Delivery{},
		addresses:  map[int64]*models.Address{},
		states:     map[int64]*models.State{},
		cities:     map[int64]*models.City{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

// users

func (m *memStore) CreateUser(_ context.Context, user *models.User, roleIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return apperr.Conflict("a user with this email already exists")
		}
	}
	user.ID = m.id()
	user.CreatedAt = time.Now()
	cp := *user
	m.users[user.ID] = &cp
	for _, r := range roleIDs {
		if _, ok := m.roles[r]; ok {
			m.userRoles[user.ID] = append(m.userRoles[user.ID], r)
		}
	}
	return nil
}

func (m *memStore) AssignRolesToUser(_ context.Context, userID int64, roleIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range roleIDs {
		if _, ok := m.roles[r]; !ok {
			continue
		}
		dup := false
		for _, have := range m.userRoles[userID] {
			dup = dup || have == r
		}
		if !dup {
			m.userRoles[userID] = append(m.userRoles[userID], r)
		}
	}
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UserExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok, nil
}

func (m *memStore) ListUsers(_ context.Context, filter store.UserFilter) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		if filter.Name != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.BirthDateMin != nil && !u.BirthDate.After(*filter.BirthDateMin) {
			continue
		}
		if filter.BirthDateMax != nil && !u.BirthDate.Before(*filter.BirthDateMax) {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperr.NotFound("user %d not found", id)
	}
	for _, s := range m.sales {
		if s.SellerID == id || s.BuyerID == id {
			return apperr.Conflict("user is still referenced and cannot be deleted")
		}
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) RoleIDsForUser(_ context.Context, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64{}, m.userRoles[userID]...), nil
}

// roles

func (m *memStore) addRole(description string, permIDs ...int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := &models.Role{ID: m.id(), Description: description}
	for _, p := range permIDs {
		role.Permissions = append(role.Permissions, m.perms[p])
	}
	m.roles[role.ID] = role
	return role.ID
}

func (m *memStore) addPermission(description string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.perms[id] = models.Permission{ID: id, Description: description}
	return id
}

func (m *memStore) ListRoles(_ context.Context) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Role{}
	for _, r := range m.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) GetRoleByID(_ context.Context, id int64) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, apperr.NotFound("role %d not found", id)
	}
	cp := *r
	cp.Permissions = append([]models.Permission{}, r.Permissions...)
	return &cp, nil
}

func (m *memStore) GetRoleByDescription(_ context.Context, description string) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Description == description {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateRole(_ context.Context, role *models.Role, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role.ID = m.id()
	cp := *role
	for _, p := range permissionIDs {
		if perm, ok := m.perms[p]; ok {
			cp.Permissions = append(cp.Permissions, perm)
		}
	}
	m.roles[role.ID] = &cp
	return nil
}

func (m *memStore) AddPermissionsToRole(_ context.Context, roleID int64, permissionIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := m.roles[roleID]
	var added int64
	for _, p := range permissionIDs {
		perm, ok := m.perms[p]
		if !ok {
			continue
		}
		linked := false
		for _, have := range role.Permissions {
			linked = linked || have.ID == p
		}
		if !linked {
			role.Permissions = append(role.Permissions, perm)
			added++
		}
	}
	return added, nil
}

func (m *memStore) GetPermissionsByIDs(_ context.Context, ids []int64) ([]models.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Permission{}
	for _, id := range ids {
		if p, ok := m.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreatePermission(_ context.Context, perm *models.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.perms {
		if p.Description == perm.Description {
			return apperr.Conflict("a permission with this description already exists")
		}
	}
	perm.ID = m.id()
	m.perms[perm.ID] = *perm
	return nil
}

// products

func (m *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.NotFound("product %d not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SearchProducts(_ context.Context, filter store.ProductFilter) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.products {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) &&
			p.SuggestedPrice >= filter.PriceMin && p.SuggestedPrice <= filter.PriceMax {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ProductNameTaken(_ context.Context, name string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Name == name && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateProduct(_ context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product.ID = m.id()
	cp := *product
	m.products[product.ID] = &cp
	return nil
}

func (m *memStore) UpdateProduct(_ context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; !ok {
		return apperr.NotFound("product %d not found", product.ID)
	}
	cp := *product
	m.products[product.ID] = &cp
	return nil
}

func (m *memStore) CountLineItemsByProduct(_ context.Context, productID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, items := range m.items {
		for _, it := range items {
			if it.ProductID == productID {
				n++
			}
		}
	}
	return n, nil
}

func (m *memStore) DeleteProduct(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	return nil
}

// sales

func (m *memStore) CreateSaleWithLineItem(_ context.Context, sale *models.Sale, item *models.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[sale.SellerID]; !ok {
		return apperr.NotFound("seller not found")
	}
	if _, ok := m.users[sale.BuyerID]; !ok {
		return apperr.NotFound("buyer not found")
	}
	if sale.IdempotencyKey != nil {
		for _, s := range m.sales {
			if s.SellerID == sale.SellerID && s.IdempotencyKey != nil && *s.IdempotencyKey == *sale.IdempotencyKey {
				return apperr.Conflict("a sale with this idempotency key already exists")
			}
		}
	}
	// The line item write happens after the header; a failure leaves nothing.
	if m.failLineItem != nil {
		return m.failLineItem
	}
	sale.ID = m.id()
	sale.CreatedAt = time.Now()
	item.ID = m.id()
	item.SaleID = sale.ID
	sale.Items = []models.LineItem{*item}
	cp := *sale
	m.sales[sale.ID] = &cp
	m.items[sale.ID] = []models.LineItem{*item}
	return nil
}

func (m *memStore) GetSaleByID(_ context.Context, id int64) (*models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return nil, apperr.NotFound("sale %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetSaleByIdempotencyKey(_ context.Context, sellerID int64, key string) (*models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sales {
		if s.SellerID == sellerID && s.IdempotencyKey != nil && *s.IdempotencyKey == key {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListSales(_ context.Context) ([]models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Sale{}
	for _, s := range m.sales {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) ListSalesByBuyer(_ context.Context, buyerID int64) ([]models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Sale{}
	for _, s := range m.sales {
		if s.BuyerID == buyerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) GetLineItemsBySaleID(_ context.Context, saleID int64) ([]models.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LineItem{}, m.items[saleID]...), nil
}

func (m *memStore) UpdateLineItem(_ context.Context, item *models.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items[item.SaleID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = *item
			return nil
		}
	}
	return apperr.NotFound("line item %d not found", item.ID)
}

// deliveries

func (m *memStore) GetDeliveryBySaleID(_ context.Context, saleID int64) (*models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[saleID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) CreateDelivery(_ context.Context, delivery *models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[delivery.SaleID]; ok {
		return apperr.Conflict("a delivery is already scheduled for this sale")
	}
	delivery.ID = m.id()
	delivery.CreatedAt = time.Now()
	cp := *delivery
	m.deliveries[delivery.SaleID] = &cp
	return nil
}

func (m *memStore) CountDeliveriesByAddress(_ context.Context, addressID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.deliveries {
		if d.AddressID == addressID {
			n++
		}
	}
	return n, nil
}

// addresses and locations

func (m *memStore) GetAddressByID(_ context.Context, id int64) (*models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.addresses[id]
	if !ok {
		return nil, apperr.NotFound("address %d not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) SearchAddresses(_ context.Context, filter store.AddressFilter) ([]models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Address{}
	for _, a := range m.addresses {
		if filter.CityID != 0 && a.CityID != filter.CityID {
			continue
		}
		if filter.Cep != "" && a.Cep != filter.Cep {
			continue
		}
		if filter.Street != "" && !strings.Contains(strings.ToLower(a.Street), strings.ToLower(filter.Street)) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) FindDuplicateAddress(_ context.Context, a *models.Address) (*models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.addresses {
		if have.CityID == a.CityID && strings.EqualFold(have.Street, a.Street) &&
			have.Number == a.Number && have.Cep == a.Cep {
			cp := *have
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateAddress(_ context.Context, a *models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	cp := *a
	m.addresses[a.ID] = &cp
	return nil
}

func (m *memStore) UpdateAddress(_ context.Context, a *models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.addresses[a.ID] = &cp
	return nil
}

func (m *memStore) DeleteAddress(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.addresses, id)
	return nil
}

func (m *memStore) ListStates(_ context.Context) ([]models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.State{}
	for _, s := range m.states {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) GetStateByID(_ context.Context, id int64) (*models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil, apperr.NotFound("state %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetCityByID(_ context.Context, id int64) (*models.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cities[id]
	if !ok {
		return nil, apperr.NotFound("city %d not found", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCitiesByState(_ context.Context, stateID int64) ([]models.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.City{}
	for _, c := range m.cities {
		if c.StateID == stateID {
			out = append(out, *c)
		}
	}
	return out, nil
}

// seed helpers for fixed ids

func (m *memStore) putUser(id int64, email string) {
	m.users[id] = &models.User{ID: id, Name: "user", Email: email}
}

func (m *memStore) putProduct(id int64, name string, price int64) {
	m.products[id] = &models.Product{ID: id, Name: name, SuggestedPrice: price}
}

func (m *memStore) putAddress(id, cityID int64) {
	m.addresses[id] = &models.Address{ID: id, CityID: cityID, Street: "Rua A", Number: 1, Cep: "01001000"}
}

// recordingEvents captures published events

type recordingEvents struct {
	mu         sync.Mutex
	sales      []*models.SaleCreatedEvent
	deliveries []*models.DeliveryScheduledEvent
	roles      []*models.RolePermissionsChangedEvent
}

func (r *recordingEvents) PublishSaleCreated(_ context.Context, e *models.SaleCreatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales = append(r.sales, e)
	return nil
}

func (r *recordingEvents) PublishDeliveryScheduled(_ context.Context, e *models.DeliveryScheduledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, e)
	return nil
}

func (r *recordingEvents) PublishRolePermissionsChanged(_ context.Context, e *models.RolePermissionsChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, e)
	return nil
}

// memLocker is a SETNX-style lock with owner tokens

type memLocker struct {
	mu       sync.Mutex
	held     map[string]string
	next     int
	attempts int
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]string{}}
}

func (l *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.next++
	token := fmt.Sprintf("token-%d", l.next)
	l.held[key] = token
	return token, true, nil
}

func (l *memLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// memIdempotency maps keys to sale ids

type memIdempotency struct {
	keys map[string]int64
}

func idemKey(sellerID int64, key string) string {
	return fmt.Sprintf("%d:%s", sellerID, key)
}

func (c *memIdempotency) GetIdempotencyKey(_ context.Context, sellerID int64, key string) (int64, error) {
	return c.keys[idemKey(sellerID, key)], nil
}

func (c *memIdempotency) SetIdempotencyKey(_ context.Context, sellerID int64, key string, saleID int64, _ time.Duration) error {
	c.keys[idemKey(sellerID, key)] = saleID
	return nil
}
