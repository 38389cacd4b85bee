package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderServiceConfig tunes order creation
type OrderServiceConfig struct {
	OrderNumberAttempts int
	IdempotencyTTL      time.Duration
}

// OrderService handles checkout and order reads
type OrderService struct {
	orders         OrderStore
	products       *ProductService
	events         EventPublisher
	idempotency    IdempotencyStore
	fulfillment    FulfillmentPublisher
	cfg            OrderServiceConfig
	newOrderNumber func() string
	logger         *zap.Logger
}

// NewOrderService creates a new order service. idempotency and fulfillment
// may be nil.
func NewOrderService(
	orders OrderStore,
	products *ProductService,
	events EventPublisher,
	idempotency IdempotencyStore,
	fulfillment FulfillmentPublisher,
	cfg OrderServiceConfig,
) *OrderService {
	if cfg.OrderNumberAttempts < 1 {
		cfg.OrderNumberAttempts = 1
	}
	return &OrderService{
		orders:         orders,
		products:       products,
		events:         events,
		idempotency:    idempotency,
		fulfillment:    fulfillment,
		cfg:            cfg,
		newOrderNumber: randomOrderNumber,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a checkout submission
type CreateOrderRequest struct {
	Customer        int64                   `json:"customer"`
	Items           []OrderItemRequest      `json:"items"`
	ShippingAddress *models.ShippingAddress `json:"shippingAddress"`
	OrderNumber     string                  `json:"orderNumber,omitempty"`
	// TotalAmount is accepted for compatibility and ignored.
	TotalAmount *decimal.Decimal `json:"totalAmount,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	Product   models.ProductRef `json:"product"`
	Quantity  int               `json:"quantity"`
	UnitPrice *decimal.Decimal  `json:"unitPrice"`
}

// CreateOrder validates and persists an order. The returned bool is false
// when idempotencyKey matched an earlier request and its order is returned.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest, idempotencyKey string) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderCreateLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := buildOrder(req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, false, err
	}

	if existing := s.replay(ctx, idempotencyKey); existing != nil {
		return existing, false, nil
	}

	if err := s.checkProducts(ctx, order.Items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, false, err
	}

	if err := s.persist(ctx, order, req.OrderNumber != ""); err != nil {
		return nil, false, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("customer_id", order.CustomerID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))

	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.SetIdempotentOrder(ctx, idempotencyKey, order.ID, s.cfg.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to record idempotency key", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		}
	}

	s.announce(ctx, order)
	return order, true, nil
}

func (s *OrderService) replay(ctx context.Context, key string) *models.Order {
	if key == "" || s.idempotency == nil {
		return nil
	}

	orderID, ok, err := s.idempotency.GetIdempotentOrder(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		s.logger.Warn("Idempotent order could not be loaded",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return nil
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", order.ID))
	return order
}

// buildOrder validates the request and snapshots it into a pending order.
// The total is always computed here from the submitted lines.
func buildOrder(req *CreateOrderRequest) (*models.Order, error) {
	if req == nil || req.Customer <= 0 {
		return nil, invalid("customer", "Customer ID is required")
	}
	if len(req.Items) == 0 {
		return nil, invalid("items", "Order items are required")
	}
	if req.ShippingAddress == nil {
		return nil, invalid("shippingAddress", "Shipping address is required")
	}
	if !completeAddress(*req.ShippingAddress) {
		return nil, invalid("shippingAddress", "All shipping address fields are required")
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case item.Product.ID() <= 0:
			return nil, invalid(field+".product", "Each order item requires a product")
		case item.Quantity < 1:
			return nil, invalid(field+".quantity", "Order item quantity must be at least 1")
		case item.UnitPrice == nil:
			return nil, invalid(field+".unitPrice", "Each order item requires a unit price")
		case item.UnitPrice.IsNegative():
			return nil, invalid(field+".unitPrice", "Order item unit price cannot be negative")
		}

		items = append(items, models.OrderItem{
			Product:   item.Product.Reference(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Round(2),
		})
	}

	return &models.Order{
		OrderNumber:     strings.TrimSpace(req.OrderNumber),
		CustomerID:      req.Customer,
		Status:          models.OrderStatusPending,
		Items:           items,
		TotalAmount:     models.OrderTotal(items),
		ShippingAddress: *req.ShippingAddress,
	}, nil
}

func completeAddress(a models.ShippingAddress) bool {
	for _, field := range []string{a.FirstName, a.LastName, a.Address, a.City, a.PostalCode} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

func (s *OrderService) checkProducts(ctx context.Context, items []models.OrderItem) error {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Product.ID())
	}

	found, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return fmt.Errorf("product %d %w", id, ErrNotFound)
		}
	}
	return nil
}

// persist writes the order, drawing a fresh order number when a generated
// one is already taken. A caller-supplied number that is taken is a conflict.
func (s *OrderService) persist(ctx context.Context, order *models.Order, supplied bool) error {
	for attempt := 1; ; attempt++ {
		if !supplied {
			order.OrderNumber = s.newOrderNumber()
		}

		err := s.orders.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return fmt.Errorf("failed to create order: %w", err)
		}
		if supplied {
			util.OrdersFailedTotal.WithLabelValues("duplicate_number").Inc()
			return fmt.Errorf("order number %s already exists: %w", order.OrderNumber, ErrConflict)
		}

		util.OrderNumberCollisionsTotal.Inc()
		if attempt >= s.cfg.OrderNumberAttempts {
			util.OrdersFailedTotal.WithLabelValues("order_number_exhausted").Inc()
			return fmt.Errorf("failed to allocate an order number after %d attempts: %w", attempt, err)
		}
		s.logger.Debug("Order number collision, regenerating",
			zap.String("order_number", order.OrderNumber),
			zap.Int("attempt", attempt))
	}
}

// announce emits the downstream notifications. Failures are logged only;
// the order is already committed.
func (s *OrderService) announce(ctx context.Context, order *models.Order) {
	if s.events != nil {
		if err := s.events.PublishOrderCreated(ctx, models.NewOrderCreatedEvent(order)); err != nil {
			util.EventsPublishFailed.WithLabelValues(models.EventTypeOrderCreated).Inc()
			s.logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	if s.fulfillment != nil {
		if err := s.fulfillment.PublishOrder(ctx, order); err != nil {
			s.logger.Error("Failed to hand order to fulfillment", zap.Int64("order_id", order.ID), zap.Error(err))
		} else {
			util.FulfillmentPublishedTotal.Inc()
		}
	}
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("order %d %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListOrders returns a customer's orders newest first. A zero customerID
// lists all orders.
func (s *OrderService) ListOrders(ctx context.Context, customerID int64, page, limit int) (models.Page[models.Order], error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	page, limit = models.NormalizePaging(page, limit)
	orders, total, err := s.orders.ListOrders(ctx, customerID, page, limit)
	if err != nil {
		return models.Page[models.Order]{}, fmt.Errorf("failed to list orders: %w", err)
	}
	return models.NewPage(orders, total, page, limit), nil
}
