package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartService owns the per-user cart lifecycle
type CartService struct {
	store       CartStore
	products    *ProductService
	events      EventPublisher
	maxAttempts int
	newLineID   func() string
	logger      *zap.Logger
}

// NewCartService creates a new cart service. maxAttempts bounds how many
// times a mutation is re-applied after losing a concurrent write.
func NewCartService(store CartStore, products *ProductService, events EventPublisher, maxAttempts int) *CartService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CartService{
		store:       store,
		products:    products,
		events:      events,
		maxAttempts: maxAttempts,
		newLineID:   func() string { return uuid.New().String() },
		logger:      util.GetLogger(),
	}
}

// GetOrCreate returns the user's cart, creating an empty one on first access
func (s *CartService) GetOrCreate(ctx context.Context, userID int64) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetOrCreate")
	defer span.End()

	if userID <= 0 {
		return nil, invalid("userId", "User ID is required")
	}
	return s.getOrCreate(ctx, userID)
}

func (s *CartService) getOrCreate(ctx context.Context, userID int64) (*models.Cart, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart = models.NewCart(userID)
	err = s.store.CreateCart(ctx, cart)
	switch {
	case err == nil:
		util.CartsCreatedTotal.Inc()
		s.logger.Info("Cart created", zap.Int64("user_id", userID), zap.Int64("cart_id", cart.ID))
		return cart, nil
	case errors.Is(err, store.ErrDuplicate):
		// Another request created it first.
		cart, err = s.store.GetCartByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get cart: %w", err)
		}
		return cart, nil
	default:
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
}

// AddItem adds quantity units of a product. An existing line keeps the
// price it was first added at; a new line takes the current product price.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if err := validateCartKeys(userID, productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, invalid("quantity", "Quantity must be at least 1")
	}

	var product *models.Product
	return s.mutate(ctx, userID, models.CartOperationAdd, productID, func(ctx context.Context, cart *models.Cart) (bool, error) {
		if idx := cart.FindItem(productID); idx >= 0 {
			cart.Items[idx].Quantity += quantity
			return true, nil
		}

		if product == nil {
			p, err := s.products.GetProduct(ctx, productID)
			if err != nil {
				return false, err
			}
			product = p
		}

		cart.Items = append(cart.Items, models.CartItem{
			ID:        s.newLineID(),
			Product:   models.Ref(productID),
			Quantity:  quantity,
			UnitPrice: product.Price,
		})
		return true, nil
	})
}

// UpdateItem sets the quantity of a line. Zero or less removes the line;
// a product not in the cart leaves it unchanged.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID int64, quantity *int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if err := validateCartKeys(userID, productID); err != nil {
		return nil, err
	}
	if quantity == nil {
		return nil, invalid("quantity", "Quantity is required")
	}
	qty := *quantity

	op := models.CartOperationUpdate
	if qty <= 0 {
		op = models.CartOperationRemove
	}

	return s.mutate(ctx, userID, op, productID, func(_ context.Context, cart *models.Cart) (bool, error) {
		idx := cart.FindItem(productID)
		switch {
		case idx < 0:
			return false, nil
		case qty <= 0:
			return cart.RemoveItem(productID), nil
		case cart.Items[idx].Quantity == qty:
			return false, nil
		default:
			cart.Items[idx].Quantity = qty
			return true, nil
		}
	})
}

// RemoveItem drops the line for a product, if any
func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	if err := validateCartKeys(userID, productID); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, models.CartOperationRemove, productID, func(_ context.Context, cart *models.Cart) (bool, error) {
		return cart.RemoveItem(productID), nil
	})
}

// Clear empties the cart. The cart itself is kept.
func (s *CartService) Clear(ctx context.Context, userID int64) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	if userID <= 0 {
		return nil, invalid("userId", "User ID is required")
	}

	return s.mutate(ctx, userID, models.CartOperationClear, 0, func(_ context.Context, cart *models.Cart) (bool, error) {
		if len(cart.Items) == 0 {
			return false, nil
		}
		cart.Clear()
		return true, nil
	})
}

// Expand returns a copy of cart whose lines carry the full products.
// Lines whose product no longer exists stay as bare references.
func (s *CartService) Expand(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Expand")
	defer span.End()

	products, err := s.products.GetProductsByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, err
	}

	expanded := *cart
	expanded.Items = make(models.CartItems, len(cart.Items))
	for i, item := range cart.Items {
		if p, ok := products[item.Product.ID()]; ok {
			item.Product = models.Expand(p)
		}
		expanded.Items[i] = item
	}
	return &expanded, nil
}

// cartMutation edits cart in place and reports whether anything changed
type cartMutation func(ctx context.Context, cart *models.Cart) (bool, error)

// mutate loads (or creates) the cart, applies fn, reconciles the totals and
// writes it back under the version check. A lost race re-reads the cart and
// re-applies fn until maxAttempts is reached. A cart fn left unchanged is
// returned as read, without a write or an event.
func (s *CartService) mutate(ctx context.Context, userID int64, op string, productID int64, fn cartMutation) (*models.Cart, error) {
	for attempt := 1; ; attempt++ {
		cart, err := s.getOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		changed, err := fn(ctx, cart)
		if err != nil {
			return nil, err
		}
		if !changed {
			return cart, nil
		}
		cart.Reconcile()

		err = s.store.UpdateCart(ctx, cart)
		if err == nil {
			util.CartMutationsTotal.WithLabelValues(op).Inc()
			s.publish(ctx, cart, op, productID)
			return cart, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to save cart: %w", err)
		}

		util.CartVersionConflictsTotal.Inc()
		if attempt >= s.maxAttempts {
			s.logger.Warn("Cart update abandoned after concurrent writes",
				zap.Int64("user_id", userID),
				zap.String("operation", op),
				zap.Int("attempts", attempt))
			return nil, fmt.Errorf("cart for user %d was modified concurrently: %w", userID, ErrConflict)
		}
		s.logger.Debug("Retrying cart update",
			zap.Int64("user_id", userID),
			zap.Int("attempt", attempt))
	}
}

func (s *CartService) publish(ctx context.Context, cart *models.Cart, op string, productID int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCartUpdated(ctx, models.NewCartUpdatedEvent(cart, op, productID)); err != nil {
		util.EventsPublishFailed.WithLabelValues(models.EventTypeCartUpdated).Inc()
		s.logger.Error("Failed to publish CartUpdated event",
			zap.Int64("cart_id", cart.ID),
			zap.Error(err))
	}
}

func validateCartKeys(userID, productID int64) error {
	if userID <= 0 {
		return invalid("userId", "User ID is required")
	}
	if productID <= 0 {
		return invalid("productId", "Product ID is required")
	}
	return nil
}
