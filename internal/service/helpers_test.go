package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// ==================== Mocks ====================

type recordingPublisher struct {
	mu     sync.Mutex
	carts  []*models.CartUpdatedEvent
	orders []*models.OrderCreatedEvent
	err    error
}

func (p *recordingPublisher) PublishCartUpdated(_ context.Context, e *models.CartUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.carts = append(p.carts, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, e)
	return p.err
}

func (p *recordingPublisher) cartOps() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]string, 0, len(p.carts))
	for _, e := range p.carts {
		ops = append(ops, e.Operation)
	}
	return ops
}

// conflictingCartStore fails the first n updates with a version conflict
type conflictingCartStore struct {
	*memstore.Store
	mu        sync.Mutex
	conflicts int
	updates   int
}

func (s *conflictingCartStore) UpdateCart(ctx context.Context, cart *models.Cart) error {
	s.mu.Lock()
	s.updates++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return store.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.Store.UpdateCart(ctx, cart)
}

// takenNumbersStore rejects the first n order inserts as duplicates
type takenNumbersStore struct {
	*memstore.Store
	taken    int
	attempts []string
}

func (s *takenNumbersStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.attempts = append(s.attempts, order.OrderNumber)
	if s.taken > 0 {
		s.taken--
		return store.ErrDuplicate
	}
	return s.Store.CreateOrder(ctx, order)
}

type memoryCache struct {
	mu       sync.Mutex
	products map[int64]models.Product
	sets     int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{products: make(map[int64]models.Product)}
}

func (c *memoryCache) GetProduct(_ context.Context, id int64) (*models.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *memoryCache) SetProduct(_ context.Context, p *models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = *p
	c.sets++
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]int64)}
}

func (m *memoryIdempotency) GetIdempotentOrder(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	return id, ok, nil
}

func (m *memoryIdempotency) SetIdempotentOrder(_ context.Context, key string, id int64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; !ok {
		m.keys[key] = id
	}
	return nil
}

type recordingFulfillment struct {
	orders []*models.Order
}

func (f *recordingFulfillment) PublishOrder(_ context.Context, o *models.Order) error {
	f.orders = append(f.orders, o)
	return nil
}

// ==================== Fixtures ====================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(n int) *int {
	return &n
}

func addProduct(t *testing.T, s *memstore.Store, name, price string) models.Product {
	t.Helper()
	p := models.Product{
		Name:     name,
		Price:    dec(price),
		Quantity: 10,
		Status:   models.ProductStatusPublished,
	}
	require.NoError(t, s.UpsertProduct(context.Background(), &p))
	return p
}
