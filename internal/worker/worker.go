package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CartClearer empties a user's cart
type CartClearer interface {
	Clear(ctx context.Context, userID int64) (*models.Cart, error)
}

// CheckoutWorker empties the customer's cart once their order is created
type CheckoutWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	carts        CartClearer
	logger       *zap.Logger
}

// NewCheckoutWorker creates a new checkout worker
func NewCheckoutWorker(consumer *broker.Consumer, carts CartClearer) *CheckoutWorker {
	w := &CheckoutWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		carts:        carts,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderCreated(w.HandleOrderCreated)
	return w
}

// HandleOrderCreated clears the ordering customer's cart
func (w *CheckoutWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "CheckoutWorker.HandleOrderCreated")
	defer span.End()

	if event.CustomerID <= 0 {
		w.logger.Warn("OrderCreated event without customer", zap.Int64("order_id", event.OrderID))
		return nil
	}

	if _, err := w.carts.Clear(ctx, event.CustomerID); err != nil {
		return err
	}

	w.logger.Info("Cleared cart after checkout",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("customer_id", event.CustomerID))
	return nil
}

// Start starts the worker
func (w *CheckoutWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting checkout worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CheckoutWorker) Stop() error {
	w.logger.Info("Stopping checkout worker")
	return w.consumer.Close()
}
