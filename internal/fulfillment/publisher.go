// Package fulfillment hands committed orders to the warehouse over RabbitMQ.
package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Message is the warehouse's view of an order
type Message struct {
	OrderID         int64                  `json:"order_id"`
	OrderNumber     string                 `json:"order_number"`
	CustomerID      int64                  `json:"customer_id"`
	Items           []MessageItem          `json:"items"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	CreatedAt       time.Time              `json:"created_at"`
}

type MessageItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func encodeOrder(order *models.Order) ([]byte, error) {
	msg := Message{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		Items:           make([]MessageItem, 0, len(order.Items)),
		TotalAmount:     order.TotalAmount,
		ShippingAddress: order.ShippingAddress,
		CreatedAt:       order.CreatedAt,
	}
	for _, item := range order.Items {
		msg.Items = append(msg.Items, MessageItem{ProductID: item.Product.ID(), Quantity: item.Quantity})
	}
	return json.Marshal(msg)
}

type Publisher struct {
	pool      *ChannelPool
	queueName string
}

func NewPublisher(pool *ChannelPool, queueName string) *Publisher {
	return &Publisher{pool: pool, queueName: queueName}
}

// PublishOrder publishes an order to the warehouse queue as a persistent message
func (p *Publisher) PublishOrder(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "Fulfillment.PublishOrder")
	defer span.End()

	body, err := encodeOrder(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ch, err := p.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get channel from pool: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		"",          // default exchange
		p.queueName, // routing key
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    order.OrderNumber,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		// The channel may be in an unknown state; its slot is reopened on the next Get.
		ch.Close()
		p.pool.Put(ch)
		return fmt.Errorf("failed to publish order: %w", err)
	}
	p.pool.Put(ch)

	util.GetLogger().Debug("Published order to warehouse queue",
		zap.Int64("order_id", order.ID),
		zap.String("queue", p.queueName))
	return nil
}
