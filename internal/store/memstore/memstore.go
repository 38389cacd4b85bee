// Package memstore keeps the storefront collections in process memory. It
// honours the same contracts as the Postgres store and backs local runs and
// tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
)

type Store struct {
	mu sync.RWMutex

	products      map[int64]models.Product
	carts         map[int64]models.Cart // keyed by user id
	orders        map[int64]models.Order
	orderNumbers  map[string]int64
	nextProductID int64
	nextCartID    int64
	nextOrderID   int64
	nextItemID    int64

	now  func() time.Time
	last time.Time
}

func New() *Store {
	return &Store{
		products:     make(map[int64]models.Product),
		carts:        make(map[int64]models.Cart),
		orders:       make(map[int64]models.Order),
		orderNumbers: make(map[string]int64),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// tick returns a strictly increasing timestamp. Callers hold mu.
func (s *Store) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func copyCart(c models.Cart) *models.Cart {
	items := make(models.CartItems, len(c.Items))
	for i, item := range c.Items {
		item.Product = item.Product.Reference()
		items[i] = item
	}
	c.Items = items
	return &c
}

func copyOrder(o models.Order) *models.Order {
	items := make([]models.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return &o
}

func (s *Store) GetCartByUserID(_ context.Context, userID int64) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[userID]
	if !ok {
		return nil, fmt.Errorf("cart for user %d: %w", userID, store.ErrNotFound)
	}
	return copyCart(cart), nil
}

func (s *Store) CreateCart(_ context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cart.UserID]; ok {
		return fmt.Errorf("cart for user %d: %w", cart.UserID, store.ErrDuplicate)
	}

	s.nextCartID++
	now := s.tick()
	cart.ID = s.nextCartID
	cart.Version = 0
	cart.CreatedAt = now
	cart.UpdatedAt = now
	s.carts[cart.UserID] = *copyCart(*cart)
	return nil
}

func (s *Store) UpdateCart(_ context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.carts[cart.UserID]
	if !ok || current.ID != cart.ID || current.Version != cart.Version {
		return fmt.Errorf("cart %d at version %d: %w", cart.ID, cart.Version, store.ErrVersionConflict)
	}

	cart.Version++
	cart.UpdatedAt = s.tick()
	cart.CreatedAt = current.CreatedAt
	s.carts[cart.UserID] = *copyCart(*cart)
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.orderNumbers[order.OrderNumber]; taken {
		return fmt.Errorf("order number %s: %w", order.OrderNumber, store.ErrDuplicate)
	}

	s.nextOrderID++
	now := s.tick()
	order.ID = s.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		s.nextItemID++
		order.Items[i].ID = s.nextItemID
		order.Items[i].Product = order.Items[i].Product.Reference()
	}

	s.orders[order.ID] = *copyOrder(*order)
	s.orderNumbers[order.OrderNumber] = order.ID
	return nil
}

func (s *Store) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	return copyOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, customerID int64, page, limit int) ([]models.Order, int, error) {
	page, limit = models.NormalizePaging(page, limit)

	s.mu.RLock()
	matched := make([]models.Order, 0)
	for _, o := range s.orders {
		if customerID == 0 || o.CustomerID == customerID {
			matched = append(matched, *copyOrder(o))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return window(matched, page, limit), len(matched), nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetProductBySlug(_ context.Context, slug string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Slug == slug {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("product %q: %w", slug, store.ErrNotFound)
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *Store) UpsertProduct(_ context.Context, p *models.Product) error {
	if p.Slug == "" {
		p.Slug = models.Slugify(p.Name)
	}
	if p.Status == "" {
		p.Status = models.ProductStatusDraft
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tick()
	for id, existing := range s.products {
		if existing.Slug == p.Slug {
			p.ID = id
			p.CreatedAt = existing.CreatedAt
			p.UpdatedAt = now
			s.products[id] = *p
			return nil
		}
	}

	s.nextProductID++
	p.ID = s.nextProductID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = *p
	return nil
}

func (s *Store) ListProducts(_ context.Context, q models.ProductQuery) ([]models.Product, int, error) {
	page, limit := models.NormalizePaging(q.Page, q.Limit)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	s.mu.RLock()
	matched := make([]models.Product, 0)
	for _, p := range s.products {
		if p.Status != models.ProductStatusPublished {
			continue
		}
		if q.Featured && !p.Featured {
			continue
		}
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		matched = append(matched, p)
	}
	s.mu.RUnlock()

	sort.Slice(matched, productLess(matched, q))
	return window(matched, page, limit), len(matched), nil
}

func matchesSearch(p models.Product, needle string) bool {
	fields := []string{p.Name, p.ShortDescription, strings.Join(p.Tags, " "), p.SEO.Keywords}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// productLess mirrors the ordering of the SQL store: the primary key from
// sortBy, then featured first unless sorting by featured, then id.
func productLess(ps []models.Product, q models.ProductQuery) func(i, j int) bool {
	desc := !strings.EqualFold(q.SortOrder, "asc")
	sortBy := q.SortBy
	if q.Featured {
		sortBy = "createdAt"
	}

	primary := func(a, b models.Product) int {
		switch sortBy {
		case "updatedAt":
			return compareTime(a.UpdatedAt, b.UpdatedAt)
		case "price":
			return a.Price.Cmp(b.Price)
		case "name":
			return strings.Compare(a.Name, b.Name)
		case "featured":
			return compareBool(a.Featured, b.Featured)
		default:
			return compareTime(a.CreatedAt, b.CreatedAt)
		}
	}

	return func(i, j int) bool {
		a, b := ps[i], ps[j]
		if c := primary(a, b); c != 0 {
			return (c > 0) == desc
		}
		if !q.Featured && sortBy != "featured" {
			if c := compareBool(a.Featured, b.Featured); c != 0 {
				return c > 0
			}
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}

func window[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
