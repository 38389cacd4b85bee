package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClearer struct {
	cleared []int64
	err     error
}

func (m *mockClearer) Clear(_ context.Context, userID int64) (*models.Cart, error) {
	m.cleared = append(m.cleared, userID)
	if m.err != nil {
		return nil, m.err
	}
	return models.NewCart(userID), nil
}

func orderCreatedMessage(t *testing.T, customerID int64) kafka.Message {
	t.Helper()
	event := models.NewOrderCreatedEvent(&models.Order{ID: 1, OrderNumber: "ORD-20240101-0001", CustomerID: customerID})
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: raw}
}

func TestCheckoutWorker_ClearsCustomerCart(t *testing.T) {
	carts := &mockClearer{}
	w := NewCheckoutWorker(nil, carts)

	err := w.eventHandler.HandleMessage(context.Background(), orderCreatedMessage(t, 42))
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, carts.cleared)
}

func TestCheckoutWorker_SkipsEventsWithoutCustomer(t *testing.T) {
	carts := &mockClearer{}
	w := NewCheckoutWorker(nil, carts)

	require.NoError(t, w.eventHandler.HandleMessage(context.Background(), orderCreatedMessage(t, 0)))
	assert.Empty(t, carts.cleared)
}

func TestCheckoutWorker_ReportsFailureSoMessageIsNotCommitted(t *testing.T) {
	carts := &mockClearer{err: errors.New("db down")}
	w := NewCheckoutWorker(nil, carts)

	err := w.eventHandler.HandleMessage(context.Background(), orderCreatedMessage(t, 42))
	assert.Error(t, err)
}

func TestCheckoutWorker_IgnoresCartEvents(t *testing.T) {
	carts := &mockClearer{}
	w := NewCheckoutWorker(nil, carts)

	raw, err := json.Marshal(models.NewCartUpdatedEvent(models.NewCart(3), models.CartOperationAdd, 1))
	require.NoError(t, err)

	require.NoError(t, w.eventHandler.HandleMessage(context.Background(), kafka.Message{Value: raw}))
	assert.Empty(t, carts.cleared)
}
