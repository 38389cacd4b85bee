package service

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestCartService(carts CartStore, db *memstore.Store, maxAttempts int) (*CartService, *recordingPublisher) {
	events := &recordingPublisher{}
	products := NewProductService(db, nil)
	return NewCartService(carts, products, events, maxAttempts), events
}

// ==================== GetOrCreate ====================

func TestGetOrCreate_CreatesEmptyCartOnce(t *testing.T) {
	db := memstore.New()
	svc, _ := newTestCartService(db, db, 3)
	ctx := context.Background()

	cart, err := svc.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalAmount.IsZero())
	assert.Equal(t, 0, cart.ItemCount)

	again, err := svc.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}

func TestGetOrCreate_RequiresUser(t *testing.T) {
	db := memstore.New()
	svc, _ := newTestCartService(db, db, 3)

	_, err := svc.GetOrCreate(context.Background(), 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetOrCreate_ConcurrentFirstAccess(t *testing.T) {
	db := memstore.New()
	svc, _ := newTestCartService(db, db, 3)
	ctx := context.Background()

	ids := make([]int64, 16)
	var g errgroup.Group
	for i := range ids {
		i := i
		g.Go(func() error {
			cart, err := svc.GetOrCreate(ctx, 99)
			if err != nil {
				return err
			}
			ids[i] = cart.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

// ==================== AddItem ====================

func TestAddItem_MergesAndKeepsFirstPrice(t *testing.T) {
	db := memstore.New()
	svc, events := newTestCartService(db, db, 3)
	ctx := context.Background()
	p := addProduct(t, db, "Notebook", "10.00")

	_, err := svc.AddItem(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	// Price changes after the first add must not leak into the line.
	p.Price = dec("12.00")
	require.NoError(t, db.UpsertProduct(ctx, &p))

	cart, err := svc.AddItem(ctx, 1, p.ID, 2)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.True(t, cart.Items[0].UnitPrice.Equal(dec("10.00")))
	assert.True(t, cart.TotalAmount.Equal(dec("30.00")))
	assert.Equal(t, 3, cart.ItemCount)
	assert.Equal(t, []string{models.CartOperationAdd, models.CartOperationAdd}, events.cartOps())
}

func TestAddItem_Validation(t *testing.T) {
	db := memstore.New()
	svc, _ := newTestCartService(db, db, 3)
	p := addProduct(t, db, "Pen", "1.50")

	tests := []struct {
		name      string
		userID    int64
		productID int64
		quantity  int
		field     string
	}{
		{"missing user", 0, p.ID, 1, "userId"},
		{"missing product", 1, 0, 1, "productId"},
		{"zero quantity", 1, p.ID, 0, "quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(context.Background(), tt.userID, tt.productID, tt.quantity)
			require.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	db := memstore.New()
	svc, events := newTestCartService(db, db, 3)

	_, err := svc.AddItem(context.Background(), 1, 404, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, events.cartOps())
}

func TestAddItem_RetriesAfterVersionConflict(t *testing.T) {
	db := memstore.New()
	carts := &conflictingCartStore{Store: db, conflicts: 2}
	svc, _ := newTestCartService(carts, db, 3)
	p := addProduct(t, db, "Mug", "4.25")

	cart, err := svc.AddItem(context.Background(), 1, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, carts.updates)
	assert.Equal(t, 2, cart.ItemCount)
	assert.True(t, cart.TotalAmount.Equal(dec("8.50")))
}

func TestAddItem_GivesUpAfterMaxAttempts(t *testing.T) {
	db := memstore.New()
	carts := &conflictingCartStore{Store: db, conflicts: 5}
	svc, events := newTestCartService(carts, db, 2)
	p := addProduct(t, db, "Mug", "4.25")

	_, err := svc.AddItem(context.Background(), 1, p.ID, 1)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 2, carts.updates)
	assert.Empty(t, events.cartOps())
}

func TestAddItem_ConcurrentAddsNeverLoseIncrements(t *testing.T) {
	db := memstore.New()
	svc, _ := newTestCartService(db, db, 20)
	p := addProduct(t, db, "Sticker", "0.10")
	ctx := context.Background()

	const workers = 10
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := svc.AddItem(ctx, 5, p.ID, 1)
			return err
		})
	}
	require.NoError(t, g.Wait())

	cart, err := svc.GetOrCreate(ctx, 5)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, workers, cart.Items[0].Quantity)
	assert.True(t, cart.TotalAmount.Equal(dec("1.00")))
}

// ==================== UpdateItem / RemoveItem / Clear ====================

func TestUpdateItem(t *testing.T) {
	db := memstore.New()
	svc, _ := newTestCartService(db, db, 3)
	ctx := context.Background()
	a := addProduct(t, db, "Apple", "2.00")
	b := addProduct(t, db, "Banana", "0.50")

	_, err := svc.AddItem(ctx, 1, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 1, b.ID, 4)
	require.NoError(t, err)

	t.Run("sets quantity", func(t *testing.T) {
		cart, err := svc.UpdateItem(ctx, 1, a.ID, intPtr(5))
		require.NoError(t, err)
		assert.Equal(t, 9, cart.ItemCount)
		assert.True(t, cart.TotalAmount.Equal(dec("12.00")))
	})

	t.Run("absent line is a no-op", func(t *testing.T) {
		cart, err := svc.UpdateItem(ctx, 1, 999, intPtr(3))
		require.NoError(t, err)
		assert.Len(t, cart.Items, 2)
		assert.Equal(t, 9, cart.ItemCount)
	})

	t.Run("zero removes the line", func(t *testing.T) {
		cart, err := svc.UpdateItem(ctx, 1, b.ID, intPtr(0))
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, a.ID, cart.Items[0].Product.ID())
		assert.Equal(t, 5, cart.ItemCount)
	})

	t.Run("quantity is required", func(t *testing.T) {
		_, err := svc.UpdateItem(ctx, 1, a.ID, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestRemoveAndClear(t *testing.T) {
	db := memstore.New()
	svc, events := newTestCartService(db, db, 3)
	ctx := context.Background()
	a := addProduct(t, db, "Apple", "2.00")
	b := addProduct(t, db, "Banana", "0.50")

	_, err := svc.AddItem(ctx, 1, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 1, b.ID, 2)
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.True(t, cart.TotalAmount.Equal(dec("1.00")))

	cart, err = svc.RemoveItem(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	cart, err = svc.Clear(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalAmount.IsZero())
	assert.Equal(t, 0, cart.ItemCount)

	// The cart survives being emptied.
	again, err := svc.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	ops := events.cartOps()
	assert.Equal(t, models.CartOperationClear, ops[len(ops)-1])
}

func TestNoOpMutationsLeaveCartUntouched(t *testing.T) {
	db := memstore.New()
	svc, events := newTestCartService(db, db, 3)
	ctx := context.Background()
	a := addProduct(t, db, "Apple", "2.00")

	before, err := svc.AddItem(ctx, 1, a.ID, 2)
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() (*models.Cart, error)
	}{
		{"remove absent product", func() (*models.Cart, error) { return svc.RemoveItem(ctx, 1, 999) }},
		{"update absent product", func() (*models.Cart, error) { return svc.UpdateItem(ctx, 1, 999, intPtr(3)) }},
		{"update to same quantity", func() (*models.Cart, error) { return svc.UpdateItem(ctx, 1, a.ID, intPtr(2)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart, err := tt.run()
			require.NoError(t, err)
			assert.Equal(t, before.Version, cart.Version)
			assert.Equal(t, before.UpdatedAt, cart.UpdatedAt)
			assert.Equal(t, 2, cart.ItemCount)
		})
	}
	assert.Equal(t, []string{models.CartOperationAdd}, events.cartOps())

	emptied, err := svc.Clear(ctx, 1)
	require.NoError(t, err)
	again, err := svc.Clear(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, emptied.Version, again.Version)
	assert.Equal(t, []string{models.CartOperationAdd, models.CartOperationClear}, events.cartOps())
}

// ==================== Expand ====================

func TestExpand_MatchesBothReferenceShapes(t *testing.T) {
	db := memstore.New()
	svc, _ := newTestCartService(db, db, 3)
	ctx := context.Background()
	p := addProduct(t, db, "Lamp", "25.00")

	cart, err := svc.AddItem(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	expanded, err := svc.Expand(ctx, cart)
	require.NoError(t, err)
	require.True(t, expanded.Items[0].Product.IsExpanded())
	assert.Equal(t, "Lamp", expanded.Items[0].Product.Product().Name)
	assert.False(t, cart.Items[0].Product.IsExpanded())

	// An expanded line is found by the same canonical id as a bare one.
	assert.Equal(t, 0, expanded.FindItem(p.ID))
	assert.Equal(t, 0, cart.FindItem(p.ID))
}
