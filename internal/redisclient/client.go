package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb        *redis.Client
	productTTL time.Duration
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int, productTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb, productTTL), nil
}

// NewFromRedis wraps an existing redis client
func NewFromRedis(rdb *redis.Client, productTTL time.Duration) *Client {
	return &Client{rdb: rdb, productTTL: productTTL}
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// GetProduct returns a cached product. The second result is false on a miss.
func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, bool, error) {
	raw, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached product: %w", err)
	}

	var product models.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next fill.
		return nil, false, nil
	}
	return &product, true, nil
}

// SetProduct caches a product for the configured TTL
func (c *Client) SetProduct(ctx context.Context, product *models.Product) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(product.ID), raw, c.productTTL).Err()
}

// InvalidateProduct drops a cached product
func (c *Client) InvalidateProduct(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}

// GetIdempotentOrder returns the order id stored under an idempotency key
func (c *Client) GetIdempotentOrder(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency entry %q: %w", key, err)
	}
	return id, true, nil
}

// SetIdempotentOrder stores an idempotency key with TTL. An existing key is
// kept, so the first order recorded under a key wins.
func (c *Client) SetIdempotentOrder(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.SetNX(ctx, idempotencyKey(key), orderID, ttl).Err()
}
