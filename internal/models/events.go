package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCartUpdated  = "CART_UPDATED"
	EventTypeOrderCreated = "ORDER_CREATED"
)

// Cart operations carried by CartUpdatedEvent
const (
	CartOperationAdd    = "add"
	CartOperationUpdate = "update"
	CartOperationRemove = "remove"
	CartOperationClear  = "clear"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a new event header
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// CartUpdatedEvent published after every persisted cart mutation
type CartUpdatedEvent struct {
	BaseEvent
	CartID      int64           `json:"cart_id"`
	UserID      int64           `json:"user_id"`
	Operation   string          `json:"operation"`
	ProductID   int64           `json:"product_id,omitempty"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Version     int64           `json:"version"`
}

// OrderCreatedEvent published when an order is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  int64           `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// NewOrderCreatedEvent builds the event for a persisted order
func NewOrderCreatedEvent(order *Order) *OrderCreatedEvent {
	items := make([]OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemData{
			ProductID: item.Product.ID(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	return &OrderCreatedEvent{
		BaseEvent:   NewBaseEvent(EventTypeOrderCreated),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}
}

// NewCartUpdatedEvent builds the event for a persisted cart mutation
func NewCartUpdatedEvent(cart *Cart, operation string, productID int64) *CartUpdatedEvent {
	return &CartUpdatedEvent{
		BaseEvent:   NewBaseEvent(EventTypeCartUpdated),
		CartID:      cart.ID,
		UserID:      cart.UserID,
		Operation:   operation,
		ProductID:   productID,
		ItemCount:   cart.ItemCount,
		TotalAmount: cart.TotalAmount,
		Version:     cart.Version,
	}
}
