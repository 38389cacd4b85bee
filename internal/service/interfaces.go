package service

import (
	"context"
	"time"

	"storefront/internal/models"
)

// ProductStore is the read side of the catalog
type ProductStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int, error)
}

// CartStore persists carts with optimistic version checks
type CartStore interface {
	GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	UpdateCart(ctx context.Context, cart *models.Cart) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, customerID int64, page, limit int) ([]models.Order, int, error)
}

type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, event *models.CartUpdatedEvent) error
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// ProductCache is a read-through cache in front of ProductStore
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, bool, error)
	SetProduct(ctx context.Context, product *models.Product) error
}

// IdempotencyStore remembers which order a checkout request key produced
type IdempotencyStore interface {
	GetIdempotentOrder(ctx context.Context, key string) (int64, bool, error)
	SetIdempotentOrder(ctx context.Context, key string, orderID int64, ttl time.Duration) error
}

// FulfillmentPublisher hands persisted orders to the warehouse
type FulfillmentPublisher interface {
	PublishOrder(ctx context.Context, order *models.Order) error
}
