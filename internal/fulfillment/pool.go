package fulfillment

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// PublishChannel is the part of *amqp.Channel the pool and publisher use
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// ChannelPool shares one connection across a fixed number of channel slots,
// each channel with the fulfillment queue declared. A slot whose channel was
// closed by the broker, or could not be opened, stays in the pool empty and
// is refilled on its next Get.
type ChannelPool struct {
	conn       *amqp.Connection
	slots      chan PublishChannel
	newChannel func() (PublishChannel, error)
	mu         sync.Mutex
	closed     bool
	queueName  string
}

// NewChannelPool dials RabbitMQ and pre-creates size channels
func NewChannelPool(url, queueName string, size int) (*ChannelPool, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	pool := newPool(queueName, size, nil)
	pool.conn = conn
	pool.newChannel = pool.createChannel

	for i := 0; i < cap(pool.slots); i++ {
		<-pool.slots
		ch, err := pool.createChannel()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		pool.slots <- ch
	}

	util.GetLogger().Info("Created RabbitMQ channel pool",
		zap.Int("size", cap(pool.slots)),
		zap.String("queue", queueName))
	return pool, nil
}

// newPool builds a pool of size empty slots filled lazily by newChannel
func newPool(queueName string, size int, newChannel func() (PublishChannel, error)) *ChannelPool {
	if size < 1 {
		size = 1
	}
	p := &ChannelPool{
		slots:      make(chan PublishChannel, size),
		newChannel: newChannel,
		queueName:  queueName,
	}
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

func (p *ChannelPool) createChannel() (PublishChannel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return ch, nil
}

// Get waits for a free slot and returns its channel, opening a new one when
// the slot is empty or its channel has been closed. On failure the slot is
// handed back so a later Get can retry.
func (p *ChannelPool) Get(ctx context.Context) (PublishChannel, error) {
	select {
	case ch, ok := <-p.slots:
		if !ok {
			return nil, fmt.Errorf("channel pool closed")
		}
		if ch != nil && !ch.IsClosed() {
			return ch, nil
		}

		fresh, err := p.newChannel()
		if err != nil {
			p.release(nil)
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		util.GetLogger().Info("Replaced RabbitMQ channel", zap.String("queue", p.queueName))
		return fresh, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no channel available: %w", ctx.Err())
	}
}

// Put returns a channel's slot to the pool. A closed channel leaves the slot
// empty for the next Get to refill.
func (p *ChannelPool) Put(ch PublishChannel) {
	if ch != nil && ch.IsClosed() {
		ch = nil
	}
	p.release(ch)
}

func (p *ChannelPool) release(ch PublishChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if ch != nil {
			ch.Close()
		}
		return
	}

	select {
	case p.slots <- ch:
	default:
		if ch != nil {
			ch.Close()
		}
	}
}

// Ping reports whether the connection is still open
func (p *ChannelPool) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Close closes all channels and the connection
func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.slots)
	for ch := range p.slots {
		if ch != nil {
			ch.Close()
		}
	}
	if p.conn != nil {
		p.conn.Close()
	}
	util.GetLogger().Info("Closed RabbitMQ channel pool")
}
