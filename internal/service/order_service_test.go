package service

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	db          *memstore.Store
	svc         *OrderService
	events      *recordingPublisher
	idempotency *memoryIdempotency
	fulfillment *recordingFulfillment
	pen, book   models.Product
}

func newTestOrderService(t *testing.T, orders OrderStore, db *memstore.Store) *orderFixture {
	t.Helper()
	f := &orderFixture{
		db:          db,
		events:      &recordingPublisher{},
		idempotency: newMemoryIdempotency(),
		fulfillment: &recordingFulfillment{},
	}
	f.pen = addProduct(t, db, "Pen", "5.00")
	f.book = addProduct(t, db, "Book", "3.00")
	f.svc = NewOrderService(orders, NewProductService(db, nil), f.events, f.idempotency, f.fulfillment,
		OrderServiceConfig{OrderNumberAttempts: 3, IdempotencyTTL: time.Hour})
	return f
}

func validAddress() *models.ShippingAddress {
	return &models.ShippingAddress{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Address:    "12 Analytical Way",
		City:       "London",
		PostalCode: "N1 9GU",
	}
}

func (f *orderFixture) validRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		Customer: 42,
		Items: []OrderItemRequest{
			{Product: models.Ref(f.pen.ID), Quantity: 2, UnitPrice: decPtr("5.00")},
			{Product: models.Expand(f.book), Quantity: 1, UnitPrice: decPtr("3.00")},
		},
		ShippingAddress: validAddress(),
	}
}

// ==================== CreateOrder ====================

func TestCreateOrder_RecomputesTotal(t *testing.T) {
	db := memstore.New()
	f := newTestOrderService(t, db, db)

	req := f.validRequest()
	req.TotalAmount = decPtr("1.00")

	order, created, err := f.svc.CreateOrder(context.Background(), req, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, order.TotalAmount.Equal(dec("13.00")))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-\d{4}$`), order.OrderNumber)
	assert.False(t, order.Items[1].Product.IsExpanded())

	require.Len(t, f.events.orders, 1)
	assert.Equal(t, order.ID, f.events.orders[0].OrderID)
	require.Len(t, f.fulfillment.orders, 1)
}

func TestCreateOrder_ValidationPersistsNothing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateOrderRequest)
		message string
	}{
		{"missing customer", func(r *CreateOrderRequest) { r.Customer = 0 }, "Customer ID is required"},
		{"missing items", func(r *CreateOrderRequest) { r.Items = nil }, "Order items are required"},
		{"missing address", func(r *CreateOrderRequest) { r.ShippingAddress = nil }, "Shipping address is required"},
		{"missing city", func(r *CreateOrderRequest) { r.ShippingAddress.City = "" }, "All shipping address fields are required"},
		{"blank zip code", func(r *CreateOrderRequest) { r.ShippingAddress.PostalCode = "  " }, "All shipping address fields are required"},
		{"zero quantity", func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }, "Order item quantity must be at least 1"},
		{"missing unit price", func(r *CreateOrderRequest) { r.Items[0].UnitPrice = nil }, "Each order item requires a unit price"},
		{"negative unit price", func(r *CreateOrderRequest) { r.Items[0].UnitPrice = decPtr("-1") }, "Order item unit price cannot be negative"},
		{"missing product", func(r *CreateOrderRequest) { r.Items[0].Product = models.ProductRef{} }, "Each order item requires a product"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memstore.New()
			f := newTestOrderService(t, db, db)
			req := f.validRequest()
			tt.mutate(req)

			_, _, err := f.svc.CreateOrder(context.Background(), req, "")
			require.ErrorIs(t, err, ErrValidation)
			assert.EqualError(t, err, tt.message)

			_, total, err := db.ListOrders(context.Background(), 0, 1, 10)
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Empty(t, f.events.orders)
		})
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	db := memstore.New()
	f := newTestOrderService(t, db, db)
	req := f.validRequest()
	req.Items = append(req.Items, OrderItemRequest{Product: models.Ref(777), Quantity: 1, UnitPrice: decPtr("1")})

	_, _, err := f.svc.CreateOrder(context.Background(), req, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrder_RegeneratesCollidingNumber(t *testing.T) {
	db := memstore.New()
	orders := &takenNumbersStore{Store: db, taken: 2}
	f := newTestOrderService(t, orders, db)

	n := 0
	f.svc.newOrderNumber = func() string {
		n++
		return fmt.Sprintf("ORD-20240101-%04d", n)
	}

	order, _, err := f.svc.CreateOrder(context.Background(), f.validRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD-20240101-0001", "ORD-20240101-0002", "ORD-20240101-0003"}, orders.attempts)
	assert.Equal(t, "ORD-20240101-0003", order.OrderNumber)
}

func TestCreateOrder_GivesUpOnPersistentCollisions(t *testing.T) {
	db := memstore.New()
	orders := &takenNumbersStore{Store: db, taken: 10}
	f := newTestOrderService(t, orders, db)

	_, _, err := f.svc.CreateOrder(context.Background(), f.validRequest(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Len(t, orders.attempts, 3)
}

func TestCreateOrder_SuppliedNumberConflict(t *testing.T) {
	db := memstore.New()
	f := newTestOrderService(t, db, db)
	ctx := context.Background()

	req := f.validRequest()
	req.OrderNumber = "ORD-20240101-1234"
	order, _, err := f.svc.CreateOrder(ctx, req, "")
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240101-1234", order.OrderNumber)

	again := f.validRequest()
	again.OrderNumber = "ORD-20240101-1234"
	_, _, err = f.svc.CreateOrder(ctx, again, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	db := memstore.New()
	f := newTestOrderService(t, db, db)
	ctx := context.Background()

	first, created, err := f.svc.CreateOrder(ctx, f.validRequest(), "checkout-1")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.svc.CreateOrder(ctx, f.validRequest(), "checkout-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	_, total, err := db.ListOrders(ctx, 0, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, f.events.orders, 1)
}

func TestCreateOrder_IdempotencyKeyStillValidates(t *testing.T) {
	db := memstore.New()
	f := newTestOrderService(t, db, db)
	ctx := context.Background()

	_, _, err := f.svc.CreateOrder(ctx, f.validRequest(), "checkout-2")
	require.NoError(t, err)

	bad := f.validRequest()
	bad.ShippingAddress = nil
	order, created, err := f.svc.CreateOrder(ctx, bad, "checkout-2")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, order)
	assert.False(t, created)
}

// ==================== Reads ====================

func TestGetOrder_NotFound(t *testing.T) {
	db := memstore.New()
	f := newTestOrderService(t, db, db)

	_, err := f.svc.GetOrder(context.Background(), 123)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrders_PaginatesPerCustomer(t *testing.T) {
	db := memstore.New()
	f := newTestOrderService(t, db, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.CreateOrder(ctx, f.validRequest(), "")
		require.NoError(t, err)
	}
	other := f.validRequest()
	other.Customer = 7
	_, _, err := f.svc.CreateOrder(ctx, other, "")
	require.NoError(t, err)

	page, err := f.svc.ListOrders(ctx, 42, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalDocs)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Docs, 2)
	assert.True(t, page.HasNextPage)
	assert.True(t, page.Docs[0].CreatedAt.After(page.Docs[1].CreatedAt))
}

// ==================== Order numbers ====================

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "ORD-20240309-0007", NewOrderNumber(now, func(int) int { return 7 }))
	assert.Equal(t, "ORD-20240309-9999", NewOrderNumber(now, func(n int) int { return n - 1 }))
	assert.Regexp(t, `^ORD-\d{8}-\d{4}$`, randomOrderNumber())
}
