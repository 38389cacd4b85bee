package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== Mocks ====================

type fakeChannel struct {
	mu         sync.Mutex
	id         int
	closed     bool
	publishErr error
	published  []amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		// A channel-level error closes the channel on the broker side.
		c.closed = true
		return c.publishErr
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type channelFactory struct {
	mu      sync.Mutex
	opened  []*fakeChannel
	failing int
}

func (f *channelFactory) open() (PublishChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing > 0 {
		f.failing--
		return nil, errors.New("connection refused")
	}
	ch := &fakeChannel{id: len(f.opened) + 1}
	f.opened = append(f.opened, ch)
	return ch, nil
}

// ==================== ChannelPool ====================

func TestChannelPool_ReusesLiveChannel(t *testing.T) {
	factory := &channelFactory{}
	pool := newPool("warehouse_orders", 1, factory.open)
	ctx := context.Background()

	ch, err := pool.Get(ctx)
	require.NoError(t, err)
	pool.Put(ch)

	again, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, ch, again)
	assert.Len(t, factory.opened, 1)
}

func TestChannelPool_ReplacesClosedChannel(t *testing.T) {
	factory := &channelFactory{}
	pool := newPool("warehouse_orders", 1, factory.open)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ch, err := pool.Get(ctx)
		require.NoError(t, err)
		ch.Close()
		pool.Put(ch)
	}

	ch, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ch.IsClosed())
	assert.Len(t, factory.opened, 4)
}

func TestChannelPool_FailedOpenKeepsSlot(t *testing.T) {
	factory := &channelFactory{failing: 2}
	pool := newPool("warehouse_orders", 1, factory.open)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := pool.Get(ctx)
	require.Error(t, err)
	_, err = pool.Get(ctx)
	require.Error(t, err)

	ch, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, ch)
}

func TestChannelPool_GetWaitsForContext(t *testing.T) {
	pool := newPool("warehouse_orders", 1, (&channelFactory{}).open)

	ch, err := pool.Get(context.Background())
	require.NoError(t, err)
	defer pool.Put(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pool.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelPool_Close(t *testing.T) {
	factory := &channelFactory{}
	pool := newPool("warehouse_orders", 2, factory.open)

	ch, err := pool.Get(context.Background())
	require.NoError(t, err)
	pool.Close()
	pool.Put(ch)

	assert.True(t, ch.IsClosed())
	_, err = pool.Get(context.Background())
	assert.Error(t, err)
}

// ==================== Publisher ====================

func TestPublishOrder_RecoversAfterChannelError(t *testing.T) {
	factory := &channelFactory{}
	pool := newPool("warehouse_orders", 1, factory.open)
	publisher := NewPublisher(pool, "warehouse_orders")
	ctx := context.Background()
	order := &models.Order{ID: 3, OrderNumber: "ORD-20240501-0003"}

	require.NoError(t, publisher.PublishOrder(ctx, order))
	factory.opened[0].publishErr = errors.New("channel exception")

	assert.Error(t, publisher.PublishOrder(ctx, order))

	start := time.Now()
	require.NoError(t, publisher.PublishOrder(ctx, order))
	assert.Less(t, time.Since(start), publishTimeout)

	require.Len(t, factory.opened, 2)
	published := factory.opened[1].published
	require.Len(t, published, 1)
	assert.Equal(t, "ORD-20240501-0003", published[0].MessageId)
	assert.Equal(t, amqp.Persistent, published[0].DeliveryMode)
}
