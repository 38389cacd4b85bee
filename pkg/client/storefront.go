package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

type cartBody struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
	Quantity  *int  `json:"quantity,omitempty"`
}

func userQuery(s Session) url.Values {
	return url.Values{"userId": {strconv.FormatInt(s.UserID, 10)}}
}

// GetCart returns the shopper's cart. With expand set, lines carry the full products.
func (c *Client) GetCart(ctx context.Context, s Session, expand bool) (*Cart, error) {
	q := userQuery(s)
	if expand {
		q.Set("depth", "1")
	}
	var cart Cart
	err := c.do(ctx, &s, request{method: http.MethodGet, path: "/cart", query: q}, &cart)
	return &cart, err
}

// AddToCart adds quantity units of a product. It is sent once: repeating a
// request whose response was lost would add the units twice.
func (c *Client) AddToCart(ctx context.Context, s Session, productID int64, quantity int) (*Cart, error) {
	body := cartBody{UserID: s.UserID, ProductID: productID, Quantity: &quantity}
	var cart Cart
	err := c.do(ctx, &s, request{method: http.MethodPost, path: "/cart", body: body}, &cart)
	return &cart, err
}

// UpdateCartItem sets a line's quantity; zero removes it
func (c *Client) UpdateCartItem(ctx context.Context, s Session, productID int64, quantity int) (*Cart, error) {
	body := cartBody{UserID: s.UserID, ProductID: productID, Quantity: &quantity}
	var cart Cart
	err := c.do(ctx, &s, request{method: http.MethodPatch, path: "/cart", body: body}, &cart)
	return &cart, err
}

// RemoveFromCart drops the line for a product
func (c *Client) RemoveFromCart(ctx context.Context, s Session, productID int64) (*Cart, error) {
	q := userQuery(s)
	q.Set("productId", strconv.FormatInt(productID, 10))
	var cart Cart
	err := c.do(ctx, &s, request{method: http.MethodDelete, path: "/cart", query: q}, &cart)
	return &cart, err
}

// ClearCart empties the shopper's cart
func (c *Client) ClearCart(ctx context.Context, s Session) (*Cart, error) {
	var cart Cart
	err := c.do(ctx, &s, request{method: http.MethodDelete, path: "/cart", query: userQuery(s)}, &cart)
	return &cart, err
}

// CreateOrder submits an order for the session's user. Each call carries a
// fresh idempotency key, so retries of the same call never double-order.
func (c *Client) CreateOrder(ctx context.Context, s Session, req OrderRequest) (*Order, error) {
	body := struct {
		Customer int64 `json:"customer"`
		OrderRequest
	}{Customer: s.UserID, OrderRequest: req}

	var order Order
	err := c.do(ctx, &s, request{
		method:  http.MethodPost,
		path:    "/orders",
		body:    body,
		headers: map[string]string{idempotencyHeader: uuid.New().String()},
	}, &order)
	return &order, err
}

// Checkout turns the shopper's cart into an order and then empties the cart.
// A failure to clear the cart is returned alongside the created order.
func (c *Client) Checkout(ctx context.Context, s Session, address ShippingAddress) (*Order, error) {
	cart, err := c.GetCart(ctx, s, false)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, fmt.Errorf("cart is empty")
	}

	order, err := c.CreateOrder(ctx, s, OrderFromCart(cart, address))
	if err != nil {
		return nil, err
	}

	if _, err := c.ClearCart(ctx, s); err != nil {
		return order, fmt.Errorf("order %s created but cart was not cleared: %w", order.OrderNumber, err)
	}
	return order, nil
}

// ListOrders returns the shopper's orders, newest first
func (c *Client) ListOrders(ctx context.Context, s Session, page, limit int) (*Page[Order], error) {
	q := url.Values{"where[customer][equals]": {strconv.FormatInt(s.UserID, 10)}}
	setPaging(q, page, limit)

	var out Page[Order]
	err := c.do(ctx, &s, request{method: http.MethodGet, path: "/orders", query: q}, &out)
	return &out, err
}

// GetOrder returns one order
func (c *Client) GetOrder(ctx context.Context, s Session, orderID int64) (*Order, error) {
	var order Order
	err := c.do(ctx, &s, request{method: http.MethodGet, path: "/orders/" + strconv.FormatInt(orderID, 10)}, &order)
	return &order, err
}

// ListProducts returns a page of published products
func (c *Client) ListProducts(ctx context.Context, pq ProductQuery) (*Page[Product], error) {
	q := url.Values{}
	setPaging(q, pq.Page, pq.Limit)
	if pq.Featured {
		q.Set("featured", "true")
	}
	if pq.SortBy != "" {
		q.Set("sortBy", pq.SortBy)
	}
	if pq.SortOrder != "" {
		q.Set("sortOrder", pq.SortOrder)
	}

	path := "/products"
	if pq.Search != "" {
		path = "/products/search"
		q.Set("q", pq.Search)
	}

	var out Page[Product]
	err := c.do(ctx, nil, request{method: http.MethodGet, path: path, query: q}, &out)
	return &out, err
}

// FeaturedProducts returns the newest featured products
func (c *Client) FeaturedProducts(ctx context.Context, limit int) (*Page[Product], error) {
	return c.ListProducts(ctx, ProductQuery{Featured: true, Limit: limit})
}

// SearchProducts returns published products matching query
func (c *Client) SearchProducts(ctx context.Context, query string, page, limit int) (*Page[Product], error) {
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	return c.ListProducts(ctx, ProductQuery{Search: query, Page: page, Limit: limit})
}

// GetProduct fetches a product by numeric id or slug
func (c *Client) GetProduct(ctx context.Context, idOrSlug string) (*Product, error) {
	var p Product
	err := c.do(ctx, nil, request{method: http.MethodGet, path: "/products/" + url.PathEscape(idOrSlug)}, &p)
	return &p, err
}

func setPaging(q url.Values, page, limit int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}
